// Package catalog defines the persistent inode catalog: the mapping from
// inode identity to metadata that backs the mounted namespace.
//
// Implementations live under catalog/store and are chosen at startup; every
// implementation must pass catalogtest.RunConformanceSuite.
package catalog

import (
	"context"
	"time"

	"github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// Catalog is the persistent inode catalog.
//
// All methods are safe for concurrent use. Methods return *errors.Error
// values with codes NotFound, AlreadyExists, AlreadyLocked or StoreError.
type Catalog interface {
	// Get returns the inode with the given id.
	Get(ctx context.Context, id InodeID) (*Inode, error)

	// Lookup returns the child of parentID named name. At most one row
	// matches a (parent_id, name) pair.
	Lookup(ctx context.Context, parentID InodeID, name string) (*Inode, error)

	// Create inserts a new row and returns its id. It fails with
	// AlreadyExists if the id or the (parent_id, name) pair is taken, so
	// repeating a create for the same object never yields a second row.
	// The parent must exist and be a directory, except for the root.
	Create(ctx context.Context, inode *Inode) (InodeID, error)

	// Touch advances last_visited_at to now. It never moves it backwards.
	// Failures are logged and swallowed.
	Touch(ctx context.Context, id InodeID)

	// TryLock atomically sets lock from false to true. It returns nil when
	// the lock was acquired and AlreadyLocked when it was already set.
	TryLock(ctx context.Context, id InodeID) error

	// Unlock clears the lock. It is idempotent.
	Unlock(ctx context.Context, id InodeID) error

	// ListChildren returns the children of parentID ordered by name.
	ListChildren(ctx context.Context, parentID InodeID) ([]*Inode, error)

	// SetSize records the size of a fetched object.
	SetSize(ctx context.Context, id InodeID, size uint64) error

	// ClearStaleLocks clears every persisted lock and returns how many were
	// set. Locks never survive a restart, so this runs once at startup.
	ClearStaleLocks(ctx context.Context) (int, error)

	// Healthcheck verifies the backend is operational.
	Healthcheck(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// NewRoot returns the root directory inode.
func NewRoot(now time.Time) *Inode {
	return &Inode{
		ID:            RootID,
		Name:          "",
		Path:          "/",
		ParentID:      RootID,
		StoreType:     StoreTypeNone,
		Kind:          KindDirectory,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastVisitedAt: now,
	}
}

// EnsureRoot creates the root inode unless it exists.
func EnsureRoot(ctx context.Context, c Catalog) (*Inode, error) {
	root, err := c.Get(ctx, RootID)
	if err == nil {
		return root, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}

	root = NewRoot(time.Now())
	if _, err := c.Create(ctx, root); err != nil && !errors.IsAlreadyExistsError(err) {
		return nil, err
	}
	return c.Get(ctx, RootID)
}

// NewInode builds the row for a remote object named name under parent. The
// id is derived from the canonical form of source, so two independent
// callers describing the same object produce the same row.
func NewInode(parent *Inode, name string, source protocolpath.Path, kind Kind, size uint64, now time.Time) (*Inode, error) {
	st, err := ParseStoreType(source.Scheme)
	if err != nil {
		return nil, errors.NewInvalidFormatError(source.String(), err.Error())
	}

	return &Inode{
		ID:            NewID(source.String()),
		Name:          name,
		Path:          JoinPath(parent.Path, name),
		Size:          size,
		ParentID:      parent.ID,
		StoreType:     st,
		Kind:          kind,
		Source:        source.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastVisitedAt: now,
	}, nil
}

// JoinPath joins a catalog path and a child name.
func JoinPath(dir, name string) string {
	if dir == "" || dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// ValidateNew checks the fields Create relies on.
func ValidateNew(inode *Inode) error {
	if inode == nil {
		return errors.NewStoreError("create inode", errNilInode)
	}
	if inode.ID == 0 {
		return errors.NewInvalidFormatError(inode.Name, "inode id must be non-zero")
	}
	if inode.ID != RootID && inode.Name == "" {
		return errors.NewInvalidFormatError(inode.Path, "inode name must be non-empty")
	}
	return nil
}
