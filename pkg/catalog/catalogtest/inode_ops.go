package catalogtest

import (
	"testing"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

// runInodeOpsTests runs all inode CRUD conformance tests.
func runInodeOpsTests(t *testing.T, factory CatalogFactory) {
	t.Run("EnsureRootIdempotent", func(t *testing.T) { testEnsureRootIdempotent(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("LookupMissing", func(t *testing.T) { testLookupMissing(t, factory) })
	t.Run("CreateThenLookup", func(t *testing.T) { testCreateThenLookup(t, factory) })
	t.Run("CreateIdempotent", func(t *testing.T) { testCreateIdempotent(t, factory) })
	t.Run("CreateNameTaken", func(t *testing.T) { testCreateNameTaken(t, factory) })
	t.Run("CreateMissingParent", func(t *testing.T) { testCreateMissingParent(t, factory) })
	t.Run("CreateUnderFile", func(t *testing.T) { testCreateUnderFile(t, factory) })
	t.Run("SameNameDifferentParents", func(t *testing.T) { testSameNameDifferentParents(t, factory) })
	t.Run("ListChildrenSorted", func(t *testing.T) { testListChildrenSorted(t, factory) })
}

// testEnsureRootIdempotent verifies the root is created once and is its own parent.
func testEnsureRootIdempotent(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)

	again, err := catalog.EnsureRoot(t.Context(), c)
	if err != nil {
		t.Fatalf("second EnsureRoot() failed: %v", err)
	}
	if again.ID != catalog.RootID || root.ID != catalog.RootID {
		t.Errorf("root id = %d/%d, want %d", root.ID, again.ID, catalog.RootID)
	}
	if again.ParentID != catalog.RootID {
		t.Errorf("root parent = %d, want %d", again.ParentID, catalog.RootID)
	}
	if !again.IsDir() {
		t.Errorf("root kind = %v, want directory", again.Kind)
	}
	if again.Path != "/" {
		t.Errorf("root path = %q, want /", again.Path)
	}
}

// testGetMissing verifies Get on an unknown id returns NotFound.
func testGetMissing(t *testing.T, factory CatalogFactory) {
	c, _ := newRootedCatalog(t, factory)

	_, err := c.Get(t.Context(), catalog.NewID("s3://bucket/missing"))
	if !errors.IsNotFoundError(err) {
		t.Fatalf("Get() error = %v, want NotFound", err)
	}
}

// testLookupMissing verifies Lookup on an empty catalog returns NotFound.
func testLookupMissing(t *testing.T, factory CatalogFactory) {
	c, _ := newRootedCatalog(t, factory)

	_, err := c.Lookup(t.Context(), catalog.RootID, "model.bin")
	if !errors.IsNotFoundError(err) {
		t.Fatalf("Lookup() error = %v, want NotFound", err)
	}
}

// testCreateThenLookup verifies every persisted field survives a round trip.
func testCreateThenLookup(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	want := newInode(t, root, "model.bin", "hf://org/model:main", catalog.KindFile)
	want.Size = 4096

	id, err := c.Create(ctx, want)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != catalog.NewID("hf://org/model:main") {
		t.Errorf("Create() id = %d, want identity hash", id)
	}

	for _, getter := range []struct {
		name string
		get  func() (*catalog.Inode, error)
	}{
		{"Get", func() (*catalog.Inode, error) { return c.Get(ctx, id) }},
		{"Lookup", func() (*catalog.Inode, error) { return c.Lookup(ctx, catalog.RootID, "model.bin") }},
	} {
		got, err := getter.get()
		if err != nil {
			t.Fatalf("%s() failed: %v", getter.name, err)
		}
		if got.ID != id || got.Name != "model.bin" || got.Path != "/model.bin" {
			t.Errorf("%s() = {id:%d name:%q path:%q}", getter.name, got.ID, got.Name, got.Path)
		}
		if got.ParentID != catalog.RootID {
			t.Errorf("%s() parent = %d, want root", getter.name, got.ParentID)
		}
		if got.Kind != catalog.KindFile || got.StoreType != catalog.StoreTypeHF {
			t.Errorf("%s() kind/store = %v/%v", getter.name, got.Kind, got.StoreType)
		}
		if got.Source != "hf://org/model:main" || got.Size != 4096 {
			t.Errorf("%s() source/size = %q/%d", getter.name, got.Source, got.Size)
		}
		if got.Lock {
			t.Errorf("%s() lock = true, want false", getter.name)
		}
		if got.CreatedAt.IsZero() || got.LastVisitedAt.IsZero() {
			t.Errorf("%s() timestamps not persisted", getter.name)
		}
	}
}

// testCreateIdempotent verifies two creates for the same object leave one row.
func testCreateIdempotent(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	first := newInode(t, root, "model.bin", "hf://org/model:main", catalog.KindFile)
	second := newInode(t, root, "model.bin", "hf://org/model:main", catalog.KindFile)
	if first.ID != second.ID {
		t.Fatalf("identity hash differs: %d vs %d", first.ID, second.ID)
	}

	if _, err := c.Create(ctx, first); err != nil {
		t.Fatalf("first Create() failed: %v", err)
	}
	if _, err := c.Create(ctx, second); !errors.IsAlreadyExistsError(err) {
		t.Fatalf("second Create() error = %v, want AlreadyExists", err)
	}

	children, err := c.ListChildren(ctx, catalog.RootID)
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("ListChildren() returned %d rows, want 1", len(children))
	}
}

// testCreateNameTaken verifies the (parent_id, name) index rejects a second object.
func testCreateNameTaken(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)

	createFile(t, c, root, "weights", "s3://bucket/a")
	other := newInode(t, root, "weights", "s3://bucket/b", catalog.KindFile)

	if _, err := c.Create(t.Context(), other); !errors.IsAlreadyExistsError(err) {
		t.Fatalf("Create() error = %v, want AlreadyExists", err)
	}
	if _, err := c.Get(t.Context(), other.ID); !errors.IsNotFoundError(err) {
		t.Fatalf("rejected inode is visible: %v", err)
	}
}

// testCreateMissingParent verifies creates under an unknown parent fail.
func testCreateMissingParent(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)

	ghost := newInode(t, root, "ghost", "s3://bucket/ghost/", catalog.KindDirectory)
	child := newInode(t, ghost, "x", "s3://bucket/ghost/x", catalog.KindFile)

	if _, err := c.Create(t.Context(), child); !errors.IsNotFoundError(err) {
		t.Fatalf("Create() error = %v, want NotFound", err)
	}
}

// testCreateUnderFile verifies files cannot have children.
func testCreateUnderFile(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)

	file := createFile(t, c, root, "a.bin", "s3://bucket/a.bin")
	child := newInode(t, file, "x", "s3://bucket/a.bin/x", catalog.KindFile)

	_, err := c.Create(t.Context(), child)
	if errors.CodeOf(err) != errors.ErrNotDirectory {
		t.Fatalf("Create() error = %v, want NotDirectory", err)
	}
}

// testSameNameDifferentParents verifies the index is scoped to the parent.
func testSameNameDifferentParents(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)
	ctx := t.Context()

	a := createDir(t, c, root, "a", "s3://bucket/a")
	b := createDir(t, c, root, "b", "s3://bucket/b")
	fa := createFile(t, c, a, "config.json", "s3://bucket/a/config.json")
	fb := createFile(t, c, b, "config.json", "s3://bucket/b/config.json")

	got, err := c.Lookup(ctx, a.ID, "config.json")
	if err != nil || got.ID != fa.ID {
		t.Fatalf("Lookup(a) = %v, %v; want %d", got, err, fa.ID)
	}
	got, err = c.Lookup(ctx, b.ID, "config.json")
	if err != nil || got.ID != fb.ID {
		t.Fatalf("Lookup(b) = %v, %v; want %d", got, err, fb.ID)
	}
	if got.Path != "/b/config.json" {
		t.Errorf("nested path = %q, want /b/config.json", got.Path)
	}
}

// testListChildrenSorted verifies children come back ordered by name.
func testListChildrenSorted(t *testing.T, factory CatalogFactory) {
	c, root := newRootedCatalog(t, factory)

	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		createFile(t, c, root, name, "oss://bucket/"+name)
	}

	children, err := c.ListChildren(t.Context(), catalog.RootID)
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	var names []string
	for _, child := range children {
		names = append(names, child.Name)
	}
	if len(names) != 3 || names[0] != "a.bin" || names[1] != "b.bin" || names[2] != "c.bin" {
		t.Fatalf("ListChildren() names = %v, want [a.bin b.bin c.bin]", names)
	}

	empty, err := c.ListChildren(t.Context(), children[0].ID)
	if err != nil {
		t.Fatalf("ListChildren(file) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListChildren(file) = %d entries, want 0", len(empty))
	}
}
