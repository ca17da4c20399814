package resolver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inftyai/mantafs/pkg/cache"
	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	catmemory "github.com/inftyai/mantafs/pkg/catalog/store/memory"
	"github.com/inftyai/mantafs/pkg/metrics"
	"github.com/inftyai/mantafs/pkg/origin"
	memorigin "github.com/inftyai/mantafs/pkg/origin/memory"
	"github.com/inftyai/mantafs/pkg/peer"
	"github.com/inftyai/mantafs/pkg/protocolpath"
	"github.com/inftyai/mantafs/pkg/resolver"
)

// ============================================================================
// Test Helpers
// ============================================================================

type recordingMetrics struct {
	mu        sync.Mutex
	tiers     []string
	errs      int
	coalesced atomic.Int32
	bytes     map[string]int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{bytes: make(map[string]int64)}
}

func (m *recordingMetrics) ObserveResolve(tier string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append(m.tiers, tier)
	if err != nil {
		m.errs++
	}
}

func (m *recordingMetrics) RecordFetchBytes(tier string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[tier] += n
}

func (m *recordingMetrics) RecordCoalesced() { m.coalesced.Add(1) }
func (m *recordingMetrics) SetInflight(int)  {}

func (m *recordingMetrics) lastTier() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tiers) == 0 {
		return ""
	}
	return m.tiers[len(m.tiers)-1]
}

type fixture struct {
	resolver *resolver.Resolver
	catalog  *catmemory.Store
	cache    *cache.Store
	origin   *memorigin.Origin
	metrics  *recordingMetrics
	root     *catalog.Inode
}

func newFixture(t *testing.T, peers resolver.PeerFetcher, cfg resolver.Config) *fixture {
	t.Helper()

	c := catmemory.New()
	root, err := catalog.EnsureRoot(context.Background(), c)
	require.NoError(t, err)

	store, err := cache.NewWithPath(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	o := memorigin.New()
	reg := origin.NewRegistry()
	reg.Register(catalog.StoreTypeHF, o)

	m := newRecordingMetrics()
	return &fixture{
		resolver: resolver.New(c, store, peers, reg, cfg, m),
		catalog:  c,
		cache:    store,
		origin:   o,
		metrics:  m,
		root:     root,
	}
}

// addFile registers raw under the root and returns the stored inode.
func (f *fixture) addFile(t *testing.T, raw string) *catalog.Inode {
	t.Helper()
	p := protocolpath.MustParse(raw)
	inode, err := catalog.NewInode(f.root, p.Base(), p, catalog.KindFile, 0, time.Now())
	require.NoError(t, err)
	_, err = f.catalog.Create(context.Background(), inode)
	require.NoError(t, err)
	return inode
}

func (f *fixture) assertUnlocked(t *testing.T, id catalog.InodeID) {
	t.Helper()
	inode, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, inode.Lock, "fetch lock must be released")
}

// assertNoTempFiles checks that no partial object is left in the cache.
func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	err := filepath.Walk(f.cache.Dir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".tmp") {
			t.Errorf("temp file left behind: %s", path)
		}
		return nil
	})
	require.NoError(t, err)
}

// gate blocks origin fetches until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(ctx context.Context, _ protocolpath.Path) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return nil
}

type stubPeers struct {
	data  []byte
	err   error
	calls atomic.Int32
}

func (s *stubPeers) Fetch(ctx context.Context, id catalog.InodeID) (io.ReadCloser, int64, string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, 0, "", s.err
	}
	return io.NopCloser(bytes.NewReader(s.data)), int64(len(s.data)), "http://peer-a:7070", nil
}

// shortOrigin announces more bytes than it sends.
type shortOrigin struct{}

func (shortOrigin) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("abc")), 10, nil
}

func (shortOrigin) Stat(ctx context.Context, p protocolpath.Path) (origin.ObjectInfo, error) {
	return origin.ObjectInfo{Size: 10}, nil
}

// ============================================================================
// Resolution Tiers
// ============================================================================

func TestResolve_OriginThenLocal(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	ctx := context.Background()
	f.origin.Put("hf://org/model/config.json", []byte(`{"dim":4096}`))
	inode := f.addFile(t, "hf://org/model/config.json:main")

	data, err := f.resolver.Resolve(ctx, inode)
	require.NoError(t, err)
	assert.Equal(t, `{"dim":4096}`, string(data))
	assert.Equal(t, metrics.TierOrigin, f.metrics.lastTier())

	data, err = f.resolver.Resolve(ctx, inode)
	require.NoError(t, err)
	assert.Equal(t, `{"dim":4096}`, string(data))
	assert.Equal(t, metrics.TierLocal, f.metrics.lastTier())

	assert.Equal(t, int64(1), f.origin.Fetches(), "second resolve must be served locally")

	stored, err := f.catalog.Get(ctx, inode.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), stored.Size)
	assert.False(t, stored.Lock)
}

func TestResolve_PeerHit(t *testing.T) {
	peers := &stubPeers{data: []byte("from a peer")}
	f := newFixture(t, peers, resolver.Config{})
	inode := f.addFile(t, "hf://org/model/weights.bin")

	data, err := f.resolver.Resolve(context.Background(), inode)
	require.NoError(t, err)
	assert.Equal(t, "from a peer", string(data))
	assert.Equal(t, int64(0), f.origin.Fetches())
	assert.Equal(t, metrics.TierPeer, f.metrics.lastTier())
	assert.Equal(t, int64(len("from a peer")), f.metrics.bytes[metrics.TierPeer])
	f.assertUnlocked(t, inode.ID)
}

func TestResolve_PeerMissFallsBackToOrigin(t *testing.T) {
	for _, peerErr := range []error{peer.ErrMiss, errors.New("connection refused")} {
		t.Run(peerErr.Error(), func(t *testing.T) {
			peers := &stubPeers{err: peerErr}
			f := newFixture(t, peers, resolver.Config{})
			f.origin.Put("hf://org/model/a.bin", []byte("origin bytes"))
			inode := f.addFile(t, "hf://org/model/a.bin")

			data, err := f.resolver.Resolve(context.Background(), inode)
			require.NoError(t, err)
			assert.Equal(t, "origin bytes", string(data))
			assert.Equal(t, int32(1), peers.calls.Load())
			assert.Equal(t, int64(1), f.origin.Fetches())
		})
	}
}

// ============================================================================
// Coalescing
// ============================================================================

func TestResolve_ConcurrentCallersShareOneFetch(t *testing.T) {
	const readers = 16

	f := newFixture(t, nil, resolver.Config{})
	payload := bytes.Repeat([]byte("0123456789"), 1000)
	f.origin.Put("hf://org/model/shard-00001.safetensors", payload)
	g := newGate()
	f.origin.BeforeFetch = g.hook
	inode := f.addFile(t, "hf://org/model/shard-00001.safetensors")

	results := make([][]byte, readers)
	errs := make([]error, readers)
	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.resolver.Resolve(context.Background(), inode)
		}()
	}

	<-g.entered
	require.Eventually(t, func() bool {
		return f.metrics.coalesced.Load() == readers-1
	}, 5*time.Second, time.Millisecond)
	close(g.release)
	wg.Wait()

	for i := range readers {
		require.NoError(t, errs[i])
		assert.Equal(t, payload, results[i])
	}
	assert.Equal(t, int64(1), f.origin.Fetches())
	assert.Equal(t, 0, f.resolver.Inflight())
	f.assertUnlocked(t, inode.ID)
}

func TestResolve_TwoReaders(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model", []byte("model bytes"))
	inode := f.addFile(t, "hf://org/model:main")

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		out   [2][]byte
	)
	for i := range out {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			data, err := f.resolver.Resolve(context.Background(), inode)
			assert.NoError(t, err)
			out[i] = data
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, out[0], out[1])
	assert.Equal(t, "model bytes", string(out[0]))
	assert.Equal(t, int64(1), f.origin.Fetches())
	f.assertUnlocked(t, inode.ID)
}

// ============================================================================
// Cancellation
// ============================================================================

func TestEnsure_LeaderCancelKeepsFetching(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model/big.bin", []byte("big"))
	g := newGate()
	f.origin.BeforeFetch = g.hook
	inode := f.addFile(t, "hf://org/model/big.bin")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.Ensure(ctx, inode)
		done <- err
	}()

	<-g.entered
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, f.resolver.Inflight(), "fetch must outlive its caller")

	close(g.release)
	f.resolver.Wait()

	assert.True(t, f.cache.Exists(context.Background(), inode.ID))
	f.assertUnlocked(t, inode.ID)

	// The next reader is served from the cache.
	data, err := f.resolver.Resolve(context.Background(), inode)
	require.NoError(t, err)
	assert.Equal(t, "big", string(data))
	assert.Equal(t, int64(1), f.origin.Fetches())
}

func TestEnsure_WaiterCancelStopsWaiting(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model/big.bin", []byte("big"))
	g := newGate()
	f.origin.BeforeFetch = g.hook
	inode := f.addFile(t, "hf://org/model/big.bin")

	leader := make(chan error, 1)
	go func() {
		_, err := f.resolver.Ensure(context.Background(), inode)
		leader <- err
	}()
	<-g.entered

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := f.resolver.Ensure(ctx, inode)
		waiter <- err
	}()
	require.Eventually(t, func() bool { return f.metrics.coalesced.Load() == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-waiter, context.Canceled)

	close(g.release)
	require.NoError(t, <-leader)
	assert.Equal(t, int64(1), f.origin.Fetches())
}

// ============================================================================
// Failures
// ============================================================================

func TestResolve_OriginNotFound(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	inode := f.addFile(t, "hf://org/model/missing.bin")

	_, err := f.resolver.Resolve(context.Background(), inode)
	require.Error(t, err)
	assert.True(t, caterrors.IsNotFoundError(err), "got %v", err)

	f.assertUnlocked(t, inode.ID)
	assert.False(t, f.cache.Exists(context.Background(), inode.ID))
}

func TestResolve_OriginFailure(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model/a.bin", []byte("a"))
	f.origin.BeforeFetch = func(context.Context, protocolpath.Path) error {
		return errors.New("503 service unavailable")
	}
	inode := f.addFile(t, "hf://org/model/a.bin")

	_, err := f.resolver.Resolve(context.Background(), inode)
	require.Error(t, err)
	assert.True(t, caterrors.IsOriginUnavailableError(err), "got %v", err)
	f.assertUnlocked(t, inode.ID)
	assert.Equal(t, 1, f.metrics.errs)

	// A later attempt starts a new fetch.
	f.origin.BeforeFetch = nil
	data, err := f.resolver.Resolve(context.Background(), inode)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestResolve_TruncatedBodyLeavesNothing(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	reg := origin.NewRegistry()
	reg.Register(catalog.StoreTypeHF, shortOrigin{})
	r := resolver.New(f.catalog, f.cache, nil, reg, resolver.Config{}, nil)
	inode := f.addFile(t, "hf://org/model/short.bin")

	_, err := r.Resolve(context.Background(), inode)
	require.Error(t, err)
	assert.True(t, caterrors.IsOriginUnavailableError(err), "got %v", err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.False(t, f.cache.Exists(context.Background(), inode.ID))
	f.assertNoTempFiles(t)
	f.assertUnlocked(t, inode.ID)
}

func TestResolve_UnregisteredStoreType(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	inode := f.addFile(t, "s3://bucket/key")

	_, err := f.resolver.Resolve(context.Background(), inode)
	require.Error(t, err)
	assert.True(t, caterrors.IsOriginUnavailableError(err), "got %v", err)
	assert.ErrorIs(t, err, origin.ErrNoOrigin)
	f.assertUnlocked(t, inode.ID)
}

func TestEnsure_RejectsNonObjects(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})

	_, err := f.resolver.Ensure(context.Background(), f.root)
	assert.True(t, caterrors.IsIsDirectoryError(err), "got %v", err)

	local := &catalog.Inode{ID: 42, Name: "x", Path: "/x", Kind: catalog.KindFile}
	_, err = f.resolver.Ensure(context.Background(), local)
	assert.True(t, caterrors.IsNotFoundError(err), "got %v", err)

	assert.Equal(t, int64(0), f.origin.Fetches())
}

// ============================================================================
// Cross-Process Lock
// ============================================================================

func fastLock(wait time.Duration) resolver.Config {
	return resolver.Config{
		LockPollInitial: time.Millisecond,
		LockPollMax:     5 * time.Millisecond,
		LockWait:        wait,
	}
}

func TestEnsure_WaitsForOtherProcessToFill(t *testing.T) {
	f := newFixture(t, nil, fastLock(5*time.Second))
	f.origin.Put("hf://org/model/a.bin", []byte("origin"))
	inode := f.addFile(t, "hf://org/model/a.bin")
	ctx := context.Background()

	// Another process holds the lock.
	require.NoError(t, f.catalog.TryLock(ctx, inode.ID))

	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.Ensure(ctx, inode)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := f.cache.Put(ctx, inode.ID, strings.NewReader("written elsewhere"))
	require.NoError(t, err)

	require.NoError(t, <-done)
	data, err := f.resolver.Resolve(ctx, inode)
	require.NoError(t, err)
	assert.Equal(t, "written elsewhere", string(data))
	assert.Equal(t, int64(0), f.origin.Fetches())
}

func TestEnsure_TakesLockWhenOtherProcessGivesUp(t *testing.T) {
	f := newFixture(t, nil, fastLock(5*time.Second))
	f.origin.Put("hf://org/model/a.bin", []byte("origin"))
	inode := f.addFile(t, "hf://org/model/a.bin")
	ctx := context.Background()

	require.NoError(t, f.catalog.TryLock(ctx, inode.ID))

	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.Ensure(ctx, inode)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.catalog.Unlock(ctx, inode.ID))

	require.NoError(t, <-done)
	assert.Equal(t, int64(1), f.origin.Fetches())
	f.assertUnlocked(t, inode.ID)
}

func TestEnsure_LockWaitExpires(t *testing.T) {
	f := newFixture(t, nil, fastLock(30*time.Millisecond))
	inode := f.addFile(t, "hf://org/model/a.bin")
	require.NoError(t, f.catalog.TryLock(context.Background(), inode.ID))

	_, err := f.resolver.Ensure(context.Background(), inode)
	require.Error(t, err)
	assert.True(t, caterrors.IsOriginUnavailableError(err), "got %v", err)
	assert.False(t, caterrors.IsAlreadyLockedError(err))
}

// ============================================================================
// Reads and Timestamps
// ============================================================================

func TestReadAt(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model/a.bin", []byte("0123456789"))
	inode := f.addFile(t, "hf://org/model/a.bin")

	tests := []struct {
		name   string
		offset int64
		size   int
		want   string
	}{
		{"whole", 0, 10, "0123456789"},
		{"middle", 3, 4, "3456"},
		{"clamped", 8, 100, "89"},
		{"at end", 10, 4, ""},
		{"past end", 50, 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := f.resolver.ReadAt(context.Background(), inode, tt.offset, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
	assert.Equal(t, int64(1), f.origin.Fetches())
}

func TestResolve_AdvancesLastVisited(t *testing.T) {
	f := newFixture(t, nil, resolver.Config{})
	f.origin.Put("hf://org/model/a.bin", []byte("a"))
	inode := f.addFile(t, "hf://org/model/a.bin")
	ctx := context.Background()

	prev := inode.LastVisitedAt
	for range 3 {
		time.Sleep(2 * time.Millisecond)
		_, err := f.resolver.Resolve(ctx, inode)
		require.NoError(t, err)

		got, err := f.catalog.Get(ctx, inode.ID)
		require.NoError(t, err)
		assert.False(t, got.LastVisitedAt.Before(prev), "last_visited_at moved backwards")
		prev = got.LastVisitedAt
	}
	assert.True(t, prev.After(inode.LastVisitedAt))
}
