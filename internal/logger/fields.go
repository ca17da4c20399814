package logger

import (
	"log/slog"
)

// Standard field keys. Use these consistently so log queries work across
// the catalog, resolver, peer and FUSE layers.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Filesystem request
	KeyOperation = "operation" // LOOKUP, GETATTR, READ, ...
	KeyInodeID   = "inode_id"
	KeyParentID  = "parent_id"
	KeyName      = "name"
	KeyPath      = "path"
	KeyPID       = "pid"
	KeyUID       = "uid"
	KeyOffset    = "offset"
	KeyCount     = "count"     // bytes requested
	KeyBytesRead = "bytes_read"
	KeyEntries   = "entries"

	// Resolution
	KeySource    = "source"     // protocol path
	KeyStoreType = "store_type" // hf, ms, s3, oss, gcs
	KeyTier      = "tier"       // local, peer, origin
	KeyPeer      = "peer"
	KeyCacheHit  = "cache_hit"
	KeySize      = "size"
	KeyAttempt   = "attempt"
	KeyWaiters   = "waiters"

	// Storage
	KeyBucket   = "bucket"
	KeyKey      = "key"
	KeyEndpoint = "endpoint"

	// Outcome
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// InodeID returns a slog.Attr for an inode id.
func InodeID(id uint64) slog.Attr {
	return slog.Uint64(KeyInodeID, id)
}

// Source returns a slog.Attr for a protocol path.
func Source(p string) slog.Attr {
	return slog.String(KeySource, p)
}

// Tier returns a slog.Attr for the resolution tier that served a request.
func Tier(t string) slog.Attr {
	return slog.String(KeyTier, t)
}

// Peer returns a slog.Attr for a peer endpoint.
func Peer(endpoint string) slog.Attr {
	return slog.String(KeyPeer, endpoint)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or an empty Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
