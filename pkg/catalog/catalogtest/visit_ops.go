package catalogtest

import (
	"testing"
	"time"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

// runVisitOpsTests runs the access-time and size conformance tests.
func runVisitOpsTests(t *testing.T, factory CatalogFactory) {
	t.Run("TouchMonotonic", func(t *testing.T) { testTouchMonotonic(t, factory) })
	t.Run("TouchFutureTimestamp", func(t *testing.T) { testTouchFutureTimestamp(t, factory) })
	t.Run("TouchMissingIsSilent", func(t *testing.T) { testTouchMissingIsSilent(t, factory) })
	t.Run("SetSize", func(t *testing.T) { testSetSize(t, factory) })
}

// testTouchMonotonic verifies repeated touches never move last_visited_at back.
func testTouchMonotonic(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	inode := newInode(t, root, "a.bin", "s3://bucket/a.bin", catalog.KindFile)
	inode.LastVisitedAt = time.Now().Add(-time.Hour)
	if _, err := c.Create(ctx, inode); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	prev := inode.LastVisitedAt
	for i := 0; i < 3; i++ {
		c.Touch(ctx, inode.ID)

		got, err := c.Get(ctx, inode.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.LastVisitedAt.Before(prev) {
			t.Fatalf("touch %d moved last_visited_at back: %v < %v", i, got.LastVisitedAt, prev)
		}
		prev = got.LastVisitedAt
	}

	if time.Since(prev) > time.Minute {
		t.Errorf("last_visited_at = %v, want close to now", prev)
	}
}

// testTouchFutureTimestamp verifies touch keeps a later timestamp it finds.
func testTouchFutureTimestamp(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	future := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	inode := newInode(t, root, "a.bin", "s3://bucket/a.bin", catalog.KindFile)
	inode.LastVisitedAt = future
	if _, err := c.Create(ctx, inode); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	c.Touch(ctx, inode.ID)

	got, err := c.Get(ctx, inode.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.LastVisitedAt.Before(future) {
		t.Errorf("last_visited_at = %v, want >= %v", got.LastVisitedAt, future)
	}
}

// testTouchMissingIsSilent verifies touch on an unknown id neither panics nor creates a row.
func testTouchMissingIsSilent(t *testing.T, factory CatalogFactory) {
	c, _ := newRootedCatalog(t, factory)
	id := catalog.NewID("s3://bucket/none")

	c.Touch(t.Context(), id)

	if _, err := c.Get(t.Context(), id); !errors.IsNotFoundError(err) {
		t.Fatalf("Get() after Touch() error = %v, want NotFound", err)
	}
}

// testSetSize verifies SetSize persists the new size.
func testSetSize(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	inode := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")
	if err := c.SetSize(ctx, inode.ID, 1<<20); err != nil {
		t.Fatalf("SetSize() failed: %v", err)
	}

	got, err := c.Get(ctx, inode.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Size != 1<<20 {
		t.Errorf("Size = %d, want %d", got.Size, 1<<20)
	}

	if err := c.SetSize(ctx, catalog.NewID("s3://bucket/none"), 1); !errors.IsNotFoundError(err) {
		t.Errorf("SetSize(missing) error = %v, want NotFound", err)
	}
}
