package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "mantafs", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Profiling.Enabled)
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.False(t, IsEnabled())
}

func TestNoopSpans(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.NoError(t, err)

	ctx, span := StartFSSpan(context.Background(), "READ", 42, Offset(0), Count(4096))
	require.NotNil(t, span)
	defer span.End()

	AddEvent(ctx, "cache.hit", Tier("local"))
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	SetAttributes(ctx, BytesRead(10))

	assert.Empty(t, TraceID(ctx), "no-op spans carry no trace id")
	assert.Empty(t, SpanID(ctx))
}

func TestSpanHelpers(t *testing.T) {
	_, span := StartResolveSpan(context.Background(), "fetch", 7, Source("hf://a/b/c"))
	span.End()
	_, span = StartClientSpan(context.Background(), "origin.fetch", StoreType("hf"))
	span.End()
}

func TestAttributes(t *testing.T) {
	assert.Equal(t, AttrInodeID, string(InodeID(5).Key))
	assert.Equal(t, int64(5), InodeID(5).Value.AsInt64())
	assert.Equal(t, "hf://a/b/c", Source("hf://a/b/c").Value.AsString())
	assert.Equal(t, "peer", Tier("peer").Value.AsString())
	assert.Equal(t, "http://p:7070", Peer("http://p:7070").Value.AsString())
	assert.Equal(t, int64(10), Size(10).Value.AsInt64())
	assert.True(t, Coalesced(true).Value.AsBool())
	assert.Equal(t, "ENOENT", Errno("ENOENT").Value.AsString())
	assert.Equal(t, "x", Name("x").Value.AsString())
}

func TestInitProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{}, "mantafs", "dev")
	require.NoError(t, err)
	assert.NoError(t, stop())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"heap"}}, "mantafs", "dev")
	assert.Error(t, err)
	assert.False(t, IsProfilingEnabled())
}
