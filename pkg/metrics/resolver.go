package metrics

import "time"

// Tiers a read can be served from.
const (
	TierLocal  = "local"
	TierPeer   = "peer"
	TierOrigin = "origin"
)

// ResolverMetrics observes cache resolution.
type ResolverMetrics interface {
	// ObserveResolve records a finished resolution, the tier that served it
	// and whether it failed.
	ObserveResolve(tier string, duration time.Duration, err error)

	// RecordFetchBytes records bytes brought into the local cache.
	RecordFetchBytes(tier string, bytes int64)

	// RecordCoalesced counts a caller that waited on another caller's fetch
	// instead of starting its own.
	RecordCoalesced()

	// SetInflight reports the number of fetches currently running.
	SetInflight(n int)
}

// NewResolverMetrics returns the Prometheus implementation, or nil when
// metrics are disabled.
func NewResolverMetrics() ResolverMetrics {
	if !IsEnabled() || newResolverMetrics == nil {
		return nil
	}
	return newResolverMetrics()
}

var newResolverMetrics func() ResolverMetrics

// RegisterResolverMetricsConstructor is called by the prometheus package
// during initialization.
func RegisterResolverMetricsConstructor(fn func() ResolverMetrics) {
	newResolverMetrics = fn
}

// ObserveResolve is a nil-safe ResolverMetrics.ObserveResolve.
func ObserveResolve(m ResolverMetrics, tier string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveResolve(tier, duration, err)
	}
}

// RecordFetchBytes is a nil-safe ResolverMetrics.RecordFetchBytes.
func RecordFetchBytes(m ResolverMetrics, tier string, bytes int64) {
	if m != nil {
		m.RecordFetchBytes(tier, bytes)
	}
}

// RecordCoalesced is a nil-safe ResolverMetrics.RecordCoalesced.
func RecordCoalesced(m ResolverMetrics) {
	if m != nil {
		m.RecordCoalesced()
	}
}

// SetInflight is a nil-safe ResolverMetrics.SetInflight.
func SetInflight(m ResolverMetrics, n int) {
	if m != nil {
		m.SetInflight(n)
	}
}
