package catalogtest

import (
	"testing"
	"time"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// CatalogFactory creates a fresh, empty Catalog for each test.
type CatalogFactory func(t *testing.T) catalog.Catalog

// RunConformanceSuite runs the full conformance suite against factory. Each
// test gets a fresh catalog.
//
// The suite covers three categories:
//   - InodeOps: root bootstrap, get, lookup, create idempotence, listing
//   - VisitOps: touch monotonicity and size updates
//   - LockOps: try-lock/unlock semantics, contention and stale-lock recovery
func RunConformanceSuite(t *testing.T, factory CatalogFactory) {
	t.Helper()

	t.Run("InodeOps", func(t *testing.T) {
		runInodeOpsTests(t, factory)
	})

	t.Run("VisitOps", func(t *testing.T) {
		runVisitOpsTests(t, factory)
	})

	t.Run("LockOps", func(t *testing.T) {
		runLockOpsTests(t, factory)
	})
}

// newRootedCatalog returns a fresh catalog with the root inode in place.
func newRootedCatalog(t *testing.T, factory CatalogFactory) (catalog.Catalog, *catalog.Inode) {
	t.Helper()

	c := factory(t)
	root, err := catalog.EnsureRoot(t.Context(), c)
	if err != nil {
		t.Fatalf("EnsureRoot() failed: %v", err)
	}
	return c, root
}

// createFile registers source as a file named name under parent.
func createFile(t *testing.T, c catalog.Catalog, parent *catalog.Inode, name, source string) *catalog.Inode {
	t.Helper()

	inode := newInode(t, parent, name, source, catalog.KindFile)
	if _, err := c.Create(t.Context(), inode); err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	return inode
}

// createDir registers source as a directory named name under parent.
func createDir(t *testing.T, c catalog.Catalog, parent *catalog.Inode, name, source string) *catalog.Inode {
	t.Helper()

	inode := newInode(t, parent, name, source, catalog.KindDirectory)
	if _, err := c.Create(t.Context(), inode); err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	return inode
}

func newInode(t *testing.T, parent *catalog.Inode, name, source string, kind catalog.Kind) *catalog.Inode {
	t.Helper()

	p, err := protocolpath.Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", source, err)
	}
	inode, err := catalog.NewInode(parent, name, p, kind, 0, time.Now())
	if err != nil {
		t.Fatalf("NewInode(%q) failed: %v", source, err)
	}
	return inode
}
