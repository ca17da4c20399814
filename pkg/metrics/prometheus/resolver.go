package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type resolverMetrics struct {
	resolves   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	fetchBytes *prometheus.CounterVec
	coalesced  prometheus.Counter
	inflight   prometheus.Gauge
}

var resolverMemo memo[*resolverMetrics]

func resolverFor(reg *prometheus.Registry) *resolverMetrics {
	return resolverMemo.get(reg, newResolverMetrics)
}

func newResolverMetrics(reg *prometheus.Registry) *resolverMetrics {
	f := promauto.With(reg)
	return &resolverMetrics{
		resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolves_total",
			Help:      "Resolutions by serving tier and outcome",
		}, []string{"tier", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolve_duration_milliseconds",
			Help:      "Resolution latency by serving tier",
			Buckets:   latencyBuckets,
		}, []string{"tier"}),
		fetchBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "fetched_bytes_total",
			Help:      "Bytes written to the local cache by source tier",
		}, []string{"tier"}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "coalesced_total",
			Help:      "Callers that waited on an in-flight fetch",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "inflight_fetches",
			Help:      "Fetches currently running",
		}),
	}
}

func (m *resolverMetrics) ObserveResolve(tier string, duration time.Duration, err error) {
	m.resolves.WithLabelValues(tier, outcome(err)).Inc()
	m.duration.WithLabelValues(tier).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *resolverMetrics) RecordFetchBytes(tier string, bytes int64) {
	m.fetchBytes.WithLabelValues(tier).Add(float64(bytes))
}

func (m *resolverMetrics) RecordCoalesced() {
	m.coalesced.Inc()
}

func (m *resolverMetrics) SetInflight(n int) {
	m.inflight.Set(float64(n))
}
