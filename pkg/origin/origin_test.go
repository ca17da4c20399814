package origin_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/origin/memory"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

func fastRetry(n int) origin.RetryConfig {
	return origin.RetryConfig{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRegistry(t *testing.T) {
	r := origin.NewRegistry()
	m := memory.New()

	_, err := r.Get(catalog.StoreTypeS3)
	require.ErrorIs(t, err, origin.ErrNoOrigin)
	assert.False(t, r.Has(catalog.StoreTypeS3))

	r.Register(catalog.StoreTypeS3, m)
	r.Register(catalog.StoreTypeHF, m)

	got, err := r.Get(catalog.StoreTypeS3)
	require.NoError(t, err)
	assert.Same(t, m, got)
	assert.Equal(t, []catalog.StoreType{catalog.StoreTypeHF, catalog.StoreTypeS3}, r.Types())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", fmt.Errorf("wrap: %w", origin.ErrNotFound), false},
		{"denied", origin.ErrAccessDenied, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
		{"invalid", caterrors.NewInvalidFormatError("x", "bad"), false},
		{"transient", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, origin.IsRetryable(tt.err))
		})
	}
}

func TestWithRetry_RecoversFromTransientErrors(t *testing.T) {
	m := memory.New()
	m.Put("s3://bucket/weights.bin", []byte("data"))

	failures := 2
	m.BeforeFetch = func(context.Context, protocolpath.Path) error {
		if failures > 0 {
			failures--
			return errors.New("503 slow down")
		}
		return nil
	}

	o := origin.WithRetry("s3", m, fastRetry(3))
	rc, size, err := o.Fetch(context.Background(), protocolpath.MustParse("s3://bucket/weights.bin"))
	require.NoError(t, err)
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(data))
	assert.EqualValues(t, 4, size)
	assert.EqualValues(t, 3, m.Fetches())
}

func TestWithRetry_GivesUp(t *testing.T) {
	m := memory.New()
	m.BeforeFetch = func(context.Context, protocolpath.Path) error {
		return errors.New("connection refused")
	}

	o := origin.WithRetry("s3", m, fastRetry(2))
	_, _, err := o.Fetch(context.Background(), protocolpath.MustParse("s3://bucket/k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.EqualValues(t, 3, m.Fetches(), "one attempt plus two retries")
}

func TestWithRetry_NotFoundIsPermanent(t *testing.T) {
	m := memory.New()

	o := origin.WithRetry("s3", m, fastRetry(5))
	_, _, err := o.Fetch(context.Background(), protocolpath.MustParse("s3://bucket/missing"))
	require.ErrorIs(t, err, origin.ErrNotFound)
	assert.EqualValues(t, 1, m.Fetches())
}

func TestWithRetry_PreservesLister(t *testing.T) {
	m := memory.New()
	m.Put("hf://Qwen/Qwen3-8B/config.json", []byte("{}"))
	m.Put("hf://Qwen/Qwen3-8B/onnx/model.onnx", []byte("x"))

	o := origin.WithRetry("hf", m, fastRetry(1))
	l, ok := o.(origin.Lister)
	require.True(t, ok)

	entries, err := l.List(context.Background(), protocolpath.MustParse("hf://Qwen/Qwen3-8B"))
	require.NoError(t, err)
	assert.Equal(t, []origin.Entry{
		{Name: "config.json", Size: 2},
		{Name: "onnx", Dir: true},
	}, entries)

	info, err := o.Stat(context.Background(), protocolpath.MustParse("hf://Qwen/Qwen3-8B/onnx"))
	require.NoError(t, err)
	assert.True(t, info.Dir)
}
