package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type fsMetrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inflight  *prometheus.GaugeVec
	bytesRead prometheus.Counter
}

var fsMemo memo[*fsMetrics]

func fsFor(reg *prometheus.Registry) *fsMetrics {
	return fsMemo.get(reg, func(reg *prometheus.Registry) *fsMetrics {
		f := promauto.With(reg)
		return &fsMetrics{
			requests: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fs",
				Name:      "requests_total",
				Help:      "Filesystem requests by operation and returned errno",
			}, []string{"op", "errno"}),
			duration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fs",
				Name:      "request_duration_milliseconds",
				Help:      "Filesystem request latency",
				Buckets:   latencyBuckets,
			}, []string{"op"}),
			inflight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fs",
				Name:      "requests_in_flight",
				Help:      "Filesystem requests being processed",
			}, []string{"op"}),
			bytesRead: f.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fs",
				Name:      "read_bytes_total",
				Help:      "Bytes returned by READ",
			}),
		}
	})
}

func (m *fsMetrics) RecordRequest(op string, duration time.Duration, errno string) {
	if errno == "" {
		errno = "OK"
	}
	m.requests.WithLabelValues(op, errno).Inc()
	m.duration.WithLabelValues(op).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *fsMetrics) RecordRequestStart(op string) {
	m.inflight.WithLabelValues(op).Inc()
}

func (m *fsMetrics) RecordRequestEnd(op string) {
	m.inflight.WithLabelValues(op).Dec()
}

func (m *fsMetrics) RecordBytesRead(bytes int64) {
	m.bytesRead.Add(float64(bytes))
}
