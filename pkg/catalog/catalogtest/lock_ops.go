package catalogtest

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

// runLockOpsTests runs the fetch-lock conformance tests.
func runLockOpsTests(t *testing.T, factory CatalogFactory) {
	t.Run("TryLockThenAlreadyLocked", func(t *testing.T) { testTryLockThenAlreadyLocked(t, factory) })
	t.Run("UnlockIdempotent", func(t *testing.T) { testUnlockIdempotent(t, factory) })
	t.Run("TryLockMissing", func(t *testing.T) { testTryLockMissing(t, factory) })
	t.Run("TryLockContention", func(t *testing.T) { testTryLockContention(t, factory) })
	t.Run("ClearStaleLocks", func(t *testing.T) { testClearStaleLocks(t, factory) })
	t.Run("Healthcheck", func(t *testing.T) { testHealthcheck(t, factory) })
}

// testTryLockThenAlreadyLocked verifies the false -> true transition happens once.
func testTryLockThenAlreadyLocked(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()
	inode := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")

	if err := c.TryLock(ctx, inode.ID); err != nil {
		t.Fatalf("first TryLock() failed: %v", err)
	}
	if err := c.TryLock(ctx, inode.ID); !errors.IsAlreadyLockedError(err) {
		t.Fatalf("second TryLock() error = %v, want AlreadyLocked", err)
	}

	got, err := c.Get(ctx, inode.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.Lock {
		t.Error("lock = false after TryLock(), want true")
	}

	if err := c.Unlock(ctx, inode.ID); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
	if err := c.TryLock(ctx, inode.ID); err != nil {
		t.Fatalf("TryLock() after Unlock() failed: %v", err)
	}
}

// testUnlockIdempotent verifies unlocking twice, or unlocking a missing row, succeeds.
func testUnlockIdempotent(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()
	inode := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")

	for i := 0; i < 2; i++ {
		if err := c.Unlock(ctx, inode.ID); err != nil {
			t.Fatalf("Unlock() #%d failed: %v", i, err)
		}
	}
	if err := c.Unlock(ctx, catalog.NewID("s3://bucket/none")); err != nil {
		t.Fatalf("Unlock(missing) failed: %v", err)
	}

	got, err := c.Get(ctx, inode.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Lock {
		t.Error("lock = true after Unlock(), want false")
	}
}

// testTryLockMissing verifies TryLock on an unknown id returns NotFound.
func testTryLockMissing(t *testing.T, factory CatalogFactory) {
	c, _ := newRootedCatalog(t, factory)

	if err := c.TryLock(t.Context(), catalog.NewID("s3://bucket/none")); !errors.IsNotFoundError(err) {
		t.Fatalf("TryLock() error = %v, want NotFound", err)
	}
}

// testTryLockContention verifies exactly one of N concurrent callers acquires the lock.
func testTryLockContention(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()
	inode := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")

	const workers = 16
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		failures atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := c.TryLock(ctx, inode.ID); {
			case err == nil:
				acquired.Add(1)
			case errors.IsAlreadyLockedError(err):
			default:
				failures.Add(1)
				t.Errorf("TryLock() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if failures.Load() == 0 && acquired.Load() != 1 {
		t.Fatalf("%d callers acquired the lock, want exactly 1", acquired.Load())
	}
}

// testClearStaleLocks verifies persisted locks are reset in bulk.
func testClearStaleLocks(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	a := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")
	b := createFile(t, c, root, "b.bin", "s3://bucket/b.bin")
	createFile(t, c, root, "c.bin", "s3://bucket/c.bin")

	for _, id := range []catalog.InodeID{a.ID, b.ID} {
		if err := c.TryLock(ctx, id); err != nil {
			t.Fatalf("TryLock() failed: %v", err)
		}
	}

	n, err := c.ClearStaleLocks(ctx)
	if err != nil {
		t.Fatalf("ClearStaleLocks() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ClearStaleLocks() = %d, want 2", n)
	}

	for _, id := range []catalog.InodeID{a.ID, b.ID} {
		if err := c.TryLock(ctx, id); err != nil {
			t.Errorf("TryLock() after ClearStaleLocks() failed: %v", err)
		}
	}

	n, err = c.ClearStaleLocks(ctx)
	if err != nil {
		t.Fatalf("second ClearStaleLocks() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("second ClearStaleLocks() = %d, want 2", n)
	}
}

// testHealthcheck verifies an open catalog reports healthy.
func testHealthcheck(t *testing.T, factory CatalogFactory) {
	c := factory(t)

	if err := c.Healthcheck(t.Context()); err != nil {
		t.Fatalf("Healthcheck() failed: %v", err)
	}
}
