package metrics

import "time"

// CatalogMetrics observes catalog backend operations.
type CatalogMetrics interface {
	// ObserveOperation records one catalog call. backend is the store type
	// ("badger", "sqlite", ...), op the method name.
	ObserveOperation(backend, op string, duration time.Duration, err error)
}

// NewCatalogMetrics returns the Prometheus implementation, or nil when
// metrics are disabled.
func NewCatalogMetrics() CatalogMetrics {
	if !IsEnabled() || newCatalogMetrics == nil {
		return nil
	}
	return newCatalogMetrics()
}

var newCatalogMetrics func() CatalogMetrics

// RegisterCatalogMetricsConstructor is called by the prometheus package
// during initialization.
func RegisterCatalogMetricsConstructor(fn func() CatalogMetrics) {
	newCatalogMetrics = fn
}
