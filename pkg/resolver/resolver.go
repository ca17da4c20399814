// Package resolver makes remote objects local. A read is served from the
// local cache, then from a peer, then from the object's origin, and at most
// one fetch per object runs at a time.
//
// Within a process the flight table is authoritative: the first caller for
// an inode starts the fetch and later callers wait on it. The catalog lock
// is also taken so that processes sharing a catalog do not fetch the same
// object twice; it is treated as a hint and cleared on startup.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/internal/telemetry"
	"github.com/inftyai/mantafs/pkg/cache"
	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/metrics"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/peer"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

const unlockTimeout = 10 * time.Second

// PeerFetcher asks cooperating caches for an object. It returns peer.ErrMiss
// when none holds it. *peer.Client implements it.
type PeerFetcher interface {
	Fetch(ctx context.Context, id catalog.InodeID) (io.ReadCloser, int64, string, error)
}

// Config tunes the resolver.
type Config struct {
	// FetchTimeout bounds one fetch, including time spent waiting for
	// another process to release the catalog lock.
	// Default: 30m
	FetchTimeout time.Duration

	// LockPollInitial and LockPollMax bound the backoff used while another
	// process holds the catalog lock.
	// Default: 50ms and 2s
	LockPollInitial time.Duration
	LockPollMax     time.Duration

	// LockWait is the longest a fetch waits for another process.
	// Default: 5m
	LockWait time.Duration
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Minute
	}
	if c.LockPollInitial <= 0 {
		c.LockPollInitial = 50 * time.Millisecond
	}
	if c.LockPollMax <= 0 {
		c.LockPollMax = 2 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 5 * time.Minute
	}
}

// flight is one in-progress fetch. Its result fields are written before
// done is closed and read only after.
type flight struct {
	done    chan struct{}
	size    int64
	tier    string
	err     error
	waiters int
}

// Resolver is the cache resolver. It is safe for concurrent use.
type Resolver struct {
	catalog catalog.Catalog
	cache   *cache.Store
	peers   PeerFetcher
	origins *origin.Registry
	cfg     Config
	metrics metrics.ResolverMetrics

	mu      sync.Mutex
	flights map[catalog.InodeID]*flight
	wg      sync.WaitGroup
}

// New returns a resolver. peers may be nil; m may be nil.
func New(c catalog.Catalog, store *cache.Store, peers PeerFetcher, origins *origin.Registry, cfg Config, m metrics.ResolverMetrics) *Resolver {
	cfg.ApplyDefaults()
	return &Resolver{
		catalog: c,
		cache:   store,
		peers:   peers,
		origins: origins,
		cfg:     cfg,
		metrics: m,
		flights: make(map[catalog.InodeID]*flight),
	}
}

// Resolve returns the whole object for inode.
func (r *Resolver) Resolve(ctx context.Context, inode *catalog.Inode) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if _, err := r.Ensure(ctx, inode); err != nil {
			return nil, err
		}
		data, err := r.cache.Get(ctx, inode.ID)
		if errors.Is(err, cache.ErrObjectNotFound) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, r.cacheError(ctx, "read cached object", err)
		}
		return data, nil
	}
}

// ReadAt returns up to size bytes of inode starting at offset, clamped to
// the object. An offset at or past the end yields an empty slice.
func (r *Resolver) ReadAt(ctx context.Context, inode *catalog.Inode, offset int64, size int) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if _, err := r.Ensure(ctx, inode); err != nil {
			return nil, err
		}
		data, err := r.cache.ReadAt(ctx, inode.ID, offset, size)
		if errors.Is(err, cache.ErrObjectNotFound) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, r.cacheError(ctx, "read cached object", err)
		}
		return data, nil
	}
}

// Ensure makes inode's object local and returns its size.
//
// If ctx is cancelled while this caller leads a fetch, Ensure returns
// ctx.Err() and the fetch keeps running for the other waiters.
func (r *Resolver) Ensure(ctx context.Context, inode *catalog.Inode) (int64, error) {
	if inode.IsDir() {
		return 0, caterrors.NewIsDirectoryError(inode.Path)
	}
	if inode.Source == "" {
		return 0, caterrors.NewNotFoundError(inode.Path, "object source")
	}

	start := time.Now()
	ctx, span := telemetry.StartResolveSpan(ctx, "ensure", uint64(inode.ID), telemetry.Source(inode.Source))
	defer span.End()

	for {
		size, err := r.cache.Stat(ctx, inode.ID)
		if err == nil {
			r.catalog.Touch(ctx, inode.ID)
			telemetry.SetAttributes(ctx, telemetry.Tier(metrics.TierLocal), telemetry.Size(size))
			metrics.ObserveResolve(r.metrics, metrics.TierLocal, time.Since(start), nil)
			return size, nil
		}
		if !errors.Is(err, cache.ErrObjectNotFound) {
			return 0, r.cacheError(ctx, "stat cached object", err)
		}

		f, leader := r.join(ctx, inode)
		if !leader {
			metrics.RecordCoalesced(r.metrics)
			telemetry.SetAttributes(ctx, telemetry.Coalesced(true))
		}

		select {
		case <-f.done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}

		if leader {
			tier := f.tier
			if tier == "" {
				tier = metrics.TierOrigin
			}
			metrics.ObserveResolve(r.metrics, tier, time.Since(start), f.err)
			if f.err != nil {
				telemetry.RecordError(ctx, f.err)
				return 0, f.err
			}
			telemetry.SetAttributes(ctx, telemetry.Tier(tier), telemetry.Size(f.size))
			return f.size, nil
		}

		if f.err != nil {
			if size, err := r.cache.Stat(ctx, inode.ID); err == nil {
				r.catalog.Touch(ctx, inode.ID)
				return size, nil
			}
			telemetry.RecordError(ctx, f.err)
			return 0, f.err
		}
	}
}

// Wait blocks until every running fetch has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Inflight returns the number of running fetches.
func (r *Resolver) Inflight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}

// join returns the flight for inode, starting one if none is running. The
// boolean is true for the caller that started it.
func (r *Resolver) join(ctx context.Context, inode *catalog.Inode) (*flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.flights[inode.ID]; ok {
		f.waiters++
		logger.DebugCtx(ctx, "Waiting on in-flight fetch",
			logger.InodeID(uint64(inode.ID)), logger.KeyWaiters, f.waiters)
		return f, false
	}

	f := &flight{done: make(chan struct{})}
	r.flights[inode.ID] = f
	metrics.SetInflight(r.metrics, len(r.flights))

	r.wg.Add(1)
	go r.lead(context.WithoutCancel(ctx), inode.Clone(), f)
	return f, true
}

func (r *Resolver) lead(parent context.Context, inode *catalog.Inode, f *flight) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(parent, r.cfg.FetchTimeout)
	defer cancel()

	ctx, span := telemetry.StartResolveSpan(ctx, "fetch", uint64(inode.ID),
		telemetry.Source(inode.Source), telemetry.StoreType(string(inode.StoreType)))
	defer span.End()

	start := time.Now()
	size, tier, err := r.fetch(ctx, inode)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Fetch failed",
			logger.InodeID(uint64(inode.ID)), logger.Source(inode.Source), logger.Err(err))
	} else {
		r.catalog.Touch(ctx, inode.ID)
		telemetry.SetAttributes(ctx, telemetry.Tier(tier), telemetry.Size(size))
		logger.DebugCtx(ctx, "Fetch complete",
			logger.InodeID(uint64(inode.ID)), logger.Tier(tier),
			logger.KeySize, size, logger.DurationMs(logger.Duration(start)))
	}

	r.finish(inode.ID, f, size, tier, err)
}

func (r *Resolver) finish(id catalog.InodeID, f *flight, size int64, tier string, err error) {
	f.size, f.tier, f.err = size, tier, err

	r.mu.Lock()
	delete(r.flights, id)
	n := len(r.flights)
	r.mu.Unlock()

	metrics.SetInflight(r.metrics, n)
	close(f.done)
}

// fetch runs under the catalog lock. The lock is released before fetch
// returns, whatever the outcome.
func (r *Resolver) fetch(ctx context.Context, inode *catalog.Inode) (int64, string, error) {
	size, cached, err := r.acquire(ctx, inode)
	if err != nil {
		return 0, "", err
	}
	if cached {
		return size, metrics.TierLocal, nil
	}
	defer r.unlock(ctx, inode)

	// A fetch that finished between our miss and the lock.
	if size, err := r.cache.Stat(ctx, inode.ID); err == nil {
		return size, metrics.TierLocal, nil
	}

	size, tier, err := r.fill(ctx, inode)
	if err != nil {
		return 0, tier, err
	}

	if uint64(size) != inode.Size {
		if err := r.catalog.SetSize(ctx, inode.ID, uint64(size)); err != nil {
			logger.WarnCtx(ctx, "Failed to record object size",
				logger.InodeID(uint64(inode.ID)), logger.KeySize, size, logger.Err(err))
		}
	}
	return size, tier, nil
}

// acquire takes the catalog lock. If another process holds it, acquire
// polls the cache with backoff until that process fills it or the lock
// comes free. cached is true when the object appeared meanwhile; the lock
// is then not held.
func (r *Resolver) acquire(ctx context.Context, inode *catalog.Inode) (size int64, cached bool, err error) {
	err = r.catalog.TryLock(ctx, inode.ID)
	if err == nil {
		return 0, false, nil
	}
	if !caterrors.IsAlreadyLockedError(err) {
		return 0, false, err
	}

	logger.DebugCtx(ctx, "Object locked by another process, waiting",
		logger.InodeID(uint64(inode.ID)), logger.Source(inode.Source))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.LockPollInitial
	b.MaxInterval = r.cfg.LockPollMax
	b.MaxElapsedTime = r.cfg.LockWait

	op := func() error {
		if s, err := r.cache.Stat(ctx, inode.ID); err == nil {
			size, cached = s, true
			return nil
		}
		err := r.catalog.TryLock(ctx, inode.ID)
		if err == nil || caterrors.IsAlreadyLockedError(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	err = backoff.Retry(op, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return size, cached, nil
	case caterrors.IsAlreadyLockedError(err), ctx.Err() != nil:
		return 0, false, caterrors.NewOriginUnavailableError(inode.Source,
			fmt.Errorf("waiting for fetch lock: %w", err))
	default:
		return 0, false, err
	}
}

func (r *Resolver) unlock(ctx context.Context, inode *catalog.Inode) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()

	if err := r.catalog.Unlock(ctx, inode.ID); err != nil {
		logger.ErrorCtx(ctx, "Failed to release fetch lock",
			logger.InodeID(uint64(inode.ID)), logger.Err(err))
	}
}

// fill brings the object into the cache from a peer or, failing that, the
// origin.
func (r *Resolver) fill(ctx context.Context, inode *catalog.Inode) (int64, string, error) {
	if r.peers != nil {
		size, err := r.fromPeers(ctx, inode)
		if err == nil {
			return size, metrics.TierPeer, nil
		}
		if !errors.Is(err, peer.ErrMiss) {
			logger.WarnCtx(ctx, "Peer fetch failed, falling back to origin",
				logger.InodeID(uint64(inode.ID)), logger.Err(err))
		}
	}

	size, err := r.fromOrigin(ctx, inode)
	return size, metrics.TierOrigin, err
}

func (r *Resolver) fromPeers(ctx context.Context, inode *catalog.Inode) (int64, error) {
	ctx, span := telemetry.StartClientSpan(ctx, "peer.fetch", telemetry.InodeID(uint64(inode.ID)))
	defer span.End()

	body, _, endpoint, err := r.peers.Fetch(ctx, inode.ID)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	telemetry.SetAttributes(ctx, telemetry.Peer(endpoint))

	n, err := r.cache.Put(ctx, inode.ID, body)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, fmt.Errorf("copy from peer %s: %w", endpoint, err)
	}

	metrics.RecordFetchBytes(r.metrics, metrics.TierPeer, n)
	logger.DebugCtx(ctx, "Object served by peer",
		logger.InodeID(uint64(inode.ID)), logger.Peer(endpoint), logger.KeySize, n)
	return n, nil
}

func (r *Resolver) fromOrigin(ctx context.Context, inode *catalog.Inode) (int64, error) {
	p, err := protocolpath.Parse(inode.Source)
	if err != nil {
		return 0, err
	}
	o, err := r.origins.Get(inode.StoreType)
	if err != nil {
		return 0, caterrors.NewOriginUnavailableError(inode.Source, err)
	}

	ctx, span := telemetry.StartClientSpan(ctx, "origin.fetch",
		telemetry.Source(inode.Source), telemetry.StoreType(string(inode.StoreType)))
	defer span.End()

	body, size, err := o.Fetch(ctx, p)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, originError(inode, err)
	}
	defer body.Close()

	n, err := r.cache.Put(ctx, inode.ID, &sourceReader{r: body, remaining: size})
	if err != nil {
		telemetry.RecordError(ctx, err)
		var se *sourceError
		if errors.As(err, &se) {
			return 0, caterrors.NewOriginUnavailableError(inode.Source, se.err)
		}
		return 0, r.cacheError(ctx, "write cached object", err)
	}

	metrics.RecordFetchBytes(r.metrics, metrics.TierOrigin, n)
	return n, nil
}

// originError maps an origin failure onto the catalog error kinds.
func originError(inode *catalog.Inode, err error) error {
	switch {
	case origin.IsNotFound(err):
		return caterrors.NewNotFoundError(inode.Source, "object")
	case caterrors.IsInvalidFormatError(err), caterrors.IsIsDirectoryError(err):
		return err
	default:
		return caterrors.NewOriginUnavailableError(inode.Source, err)
	}
}

// cacheError wraps local cache failures. Context errors pass through.
func (r *Resolver) cacheError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return caterrors.NewStoreError(op, err)
}

// sourceError marks an error raised while reading from the origin, as
// opposed to writing the cache.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// sourceReader tags read errors and rejects bodies that do not match the
// size the origin announced. remaining < 0 means unknown.
type sourceReader struct {
	r         io.Reader
	remaining int64
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if s.remaining >= 0 {
		s.remaining -= int64(n)
		if s.remaining < 0 {
			return n, &sourceError{errors.New("origin sent more bytes than announced")}
		}
	}
	switch {
	case err == io.EOF && s.remaining > 0:
		return n, &sourceError{io.ErrUnexpectedEOF}
	case err != nil && err != io.EOF:
		return n, &sourceError{err}
	}
	return n, err
}
