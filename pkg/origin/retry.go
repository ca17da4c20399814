package origin

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// RetryConfig controls how transient origin failures are retried.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

type retrying struct {
	Origin
	name string
	cfg  RetryConfig
}

type retryingLister struct {
	*retrying
	lister Lister
}

// WithRetry wraps o so Fetch, Stat and List are retried with exponential
// backoff while IsRetryable holds. The returned origin implements Lister
// when o does.
func WithRetry(name string, o Origin, cfg RetryConfig) Origin {
	r := &retrying{Origin: o, name: name, cfg: cfg}
	if l, ok := o.(Lister); ok {
		return &retryingLister{retrying: r, lister: l}
	}
	return r
}

func (r *retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(r.cfg.MaxRetries, 0))), ctx)
}

func (r *retrying) do(ctx context.Context, op string, p protocolpath.Path, fn func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx), func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Origin request failed, retrying",
			"origin", r.name,
			"op", op,
			logger.KeySource, p.String(),
			logger.KeyAttempt, attempt,
			"next", next,
			logger.KeyError, err)
	})
}

func (r *retrying) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	var (
		rc   io.ReadCloser
		size int64
	)
	err := r.do(ctx, "fetch", p, func() error {
		var err error
		rc, size, err = r.Origin.Fetch(ctx, p)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}

func (r *retrying) Stat(ctx context.Context, p protocolpath.Path) (ObjectInfo, error) {
	var info ObjectInfo
	err := r.do(ctx, "stat", p, func() error {
		var err error
		info, err = r.Origin.Stat(ctx, p)
		return err
	})
	return info, err
}

func (r *retryingLister) List(ctx context.Context, dir protocolpath.Path) ([]Entry, error) {
	var entries []Entry
	err := r.do(ctx, "list", dir, func() error {
		var err error
		entries, err = r.lister.List(ctx, dir)
		return err
	})
	return entries, err
}
