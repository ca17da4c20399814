package metrics

import "time"

// PeerMetrics observes the peer cache protocol from both ends.
type PeerMetrics interface {
	// ObserveServe records a request answered by the local peer server.
	// status is "hit" or "miss".
	ObserveServe(status string, bytes int64, duration time.Duration)

	// ObserveQuery records a request to a remote peer. status is "hit",
	// "miss" or "error".
	ObserveQuery(peer, status string, duration time.Duration)
}

// NewPeerMetrics returns the Prometheus implementation, or nil when
// metrics are disabled.
func NewPeerMetrics() PeerMetrics {
	if !IsEnabled() || newPeerMetrics == nil {
		return nil
	}
	return newPeerMetrics()
}

var newPeerMetrics func() PeerMetrics

// RegisterPeerMetricsConstructor is called by the prometheus package during
// initialization.
func RegisterPeerMetricsConstructor(fn func() PeerMetrics) {
	newPeerMetrics = fn
}
