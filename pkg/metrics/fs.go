package metrics

import (
	"time"
)

// FSMetrics observes filesystem requests arriving from the kernel.
//
// Pass nil to disable collection:
//
//	adapter := fsadapter.New(cat, res, origins, fsadapter.Options{Metrics: nil})
type FSMetrics interface {
	// RecordRequest records a completed request. errno is the symbolic
	// error returned to the kernel ("ENOENT", ...), empty on success.
	RecordRequest(op string, duration time.Duration, errno string)

	// RecordRequestStart increments the in-flight gauge for op.
	RecordRequestStart(op string)

	// RecordRequestEnd decrements the in-flight gauge for op.
	RecordRequestEnd(op string)

	// RecordBytesRead records bytes returned by READ.
	RecordBytesRead(bytes int64)
}

// NewFSMetrics returns the Prometheus implementation, or nil when metrics
// are disabled.
func NewFSMetrics() FSMetrics {
	if !IsEnabled() || newFSMetrics == nil {
		return nil
	}
	return newFSMetrics()
}

var newFSMetrics func() FSMetrics

// RegisterFSMetricsConstructor is called by the prometheus package during
// initialization.
func RegisterFSMetricsConstructor(fn func() FSMetrics) {
	newFSMetrics = fn
}
