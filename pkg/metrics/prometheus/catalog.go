package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type catalogMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var catalogMemo memo[*catalogMetrics]

func catalogFor(reg *prometheus.Registry) *catalogMetrics {
	return catalogMemo.get(reg, func(reg *prometheus.Registry) *catalogMetrics {
		f := promauto.With(reg)
		return &catalogMetrics{
			operations: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "operations_total",
				Help:      "Catalog operations by backend, method and outcome",
			}, []string{"backend", "op", "outcome"}),
			duration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "operation_duration_milliseconds",
				Help:      "Catalog operation latency",
				Buckets:   latencyBuckets[:9],
			}, []string{"backend", "op"}),
		}
	})
}

func (m *catalogMetrics) ObserveOperation(backend, op string, duration time.Duration, err error) {
	m.operations.WithLabelValues(backend, op, outcome(err)).Inc()
	m.duration.WithLabelValues(backend, op).Observe(float64(duration.Microseconds()) / 1000)
}
