package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type peerMetrics struct {
	served      *prometheus.CounterVec
	servedBytes prometheus.Counter
	serveTime   prometheus.Histogram
	queries     *prometheus.CounterVec
	queryTime   *prometheus.HistogramVec
}

var peerMemo memo[*peerMetrics]

func peerFor(reg *prometheus.Registry) *peerMetrics {
	return peerMemo.get(reg, func(reg *prometheus.Registry) *peerMetrics {
		f := promauto.With(reg)
		return &peerMetrics{
			served: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "served_total",
				Help:      "Object requests answered by this node",
			}, []string{"status"}),
			servedBytes: f.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "served_bytes_total",
				Help:      "Object bytes sent to peers",
			}),
			serveTime: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "serve_duration_milliseconds",
				Help:      "Time to answer a peer request",
				Buckets:   latencyBuckets,
			}),
			queries: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "queries_total",
				Help:      "Object requests sent to peers",
			}, []string{"peer", "status"}),
			queryTime: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "peer",
				Name:      "query_duration_milliseconds",
				Help:      "Peer request latency",
				Buckets:   latencyBuckets,
			}, []string{"peer"}),
		}
	})
}

func (m *peerMetrics) ObserveServe(status string, bytes int64, duration time.Duration) {
	m.served.WithLabelValues(status).Inc()
	m.servedBytes.Add(float64(bytes))
	m.serveTime.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *peerMetrics) ObserveQuery(peer, status string, duration time.Duration) {
	m.queries.WithLabelValues(peer, status).Inc()
	m.queryTime.WithLabelValues(peer).Observe(float64(duration.Microseconds()) / 1000)
}
