package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Filesystem keys use the "fs." prefix, resolution keys
// "mantafs.".
const (
	AttrOperation = "fs.operation"
	AttrInodeID   = "fs.inode"
	AttrName      = "fs.name"
	AttrOffset    = "fs.offset"
	AttrCount     = "fs.count"
	AttrBytesRead = "fs.bytes_read"
	AttrErrno     = "fs.errno"

	AttrSource    = "mantafs.source"
	AttrStoreType = "mantafs.store_type"
	AttrTier      = "mantafs.tier"
	AttrPeer      = "mantafs.peer"
	AttrSize      = "mantafs.size"
	AttrCoalesced = "mantafs.coalesced"
)

// InodeID returns an inode id attribute.
func InodeID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrInodeID, int64(id))
}

// Name returns a directory entry name attribute.
func Name(name string) attribute.KeyValue {
	return attribute.String(AttrName, name)
}

// Offset returns a read offset attribute.
func Offset(off int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, off)
}

// Count returns a requested byte count attribute.
func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

// BytesRead returns a returned byte count attribute.
func BytesRead(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesRead, n)
}

// Errno returns a filesystem error attribute.
func Errno(name string) attribute.KeyValue {
	return attribute.String(AttrErrno, name)
}

// Source returns a protocol path attribute.
func Source(p string) attribute.KeyValue {
	return attribute.String(AttrSource, p)
}

// StoreType returns an origin scheme attribute.
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Tier returns the attribute naming the tier that served a read.
func Tier(t string) attribute.KeyValue {
	return attribute.String(AttrTier, t)
}

// Peer returns a peer endpoint attribute.
func Peer(endpoint string) attribute.KeyValue {
	return attribute.String(AttrPeer, endpoint)
}

// Size returns an object size attribute.
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Coalesced marks a caller that waited on another caller's fetch.
func Coalesced(v bool) attribute.KeyValue {
	return attribute.Bool(AttrCoalesced, v)
}

// StartFSSpan starts a server span for a kernel request.
func StartFSSpan(ctx context.Context, op string, inode uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "fs."+op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String(AttrOperation, op), InodeID(inode)}, attrs...)...),
	)
}

// StartResolveSpan starts an internal span for a resolver step.
func StartResolveSpan(ctx context.Context, step string, inode uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "resolver."+step,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{InodeID(inode)}, attrs...)...),
	)
}

// StartClientSpan starts a client span for a call to a peer or origin.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}
