// Package prometheus implements the metrics interfaces on top of
// client_golang. Importing it (usually blank) makes the metrics
// constructors return live implementations once metrics.InitRegistry has
// run.
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inftyai/mantafs/pkg/metrics"
)

const namespace = "mantafs"

var latencyBuckets = []float64{
	0.1, // 100us - local hits
	0.5,
	1,
	5,
	10,
	50,
	100,
	500,
	1000,   // 1s
	10000,  // 10s - large origin fetches
	60000,  // 1m
	600000, // 10m
}

func init() {
	metrics.RegisterResolverMetricsConstructor(func() metrics.ResolverMetrics { return resolverFor(metrics.GetRegistry()) })
	metrics.RegisterCatalogMetricsConstructor(func() metrics.CatalogMetrics { return catalogFor(metrics.GetRegistry()) })
	metrics.RegisterFSMetricsConstructor(func() metrics.FSMetrics { return fsFor(metrics.GetRegistry()) })
	metrics.RegisterPeerMetricsConstructor(func() metrics.PeerMetrics { return peerFor(metrics.GetRegistry()) })
}

// memo builds one collector set per registry; registering twice would
// panic.
type memo[T any] struct {
	mu    sync.Mutex
	built map[*prometheus.Registry]T
}

func (m *memo[T]) get(reg *prometheus.Registry, build func(*prometheus.Registry) T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built == nil {
		m.built = make(map[*prometheus.Registry]T)
	}
	if v, ok := m.built[reg]; ok {
		return v
	}
	v := build(reg)
	m.built[reg] = v
	return v
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
