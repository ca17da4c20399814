// Package memory implements an in-memory catalog.
//
// It is used by tests and by ephemeral mounts; nothing survives Close.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

type childKey struct {
	parent catalog.InodeID
	name   string
}

// Store is an in-memory catalog.Catalog.
type Store struct {
	mu       sync.RWMutex
	inodes   map[catalog.InodeID]*catalog.Inode
	children map[childKey]catalog.InodeID
	closed   bool

	now func() time.Time
}

var _ catalog.Catalog = (*Store)(nil)

// New creates an empty in-memory catalog.
func New() *Store {
	return &Store{
		inodes:   make(map[catalog.InodeID]*catalog.Inode),
		children: make(map[childKey]catalog.InodeID),
		now:      time.Now,
	}
}

func (s *Store) checkOpen() error {
	if s.closed {
		return errors.NewStoreError("memory catalog", errClosed)
	}
	return nil
}

// Get returns the inode with the given id.
func (s *Store) Get(ctx context.Context, id catalog.InodeID) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	inode, ok := s.inodes[id]
	if !ok {
		return nil, catalog.NewInodeNotFoundError(id)
	}
	return inode.Clone(), nil
}

// Lookup returns the child of parentID named name.
func (s *Store) Lookup(ctx context.Context, parentID catalog.InodeID, name string) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	id, ok := s.children[childKey{parentID, name}]
	if !ok {
		return nil, catalog.NewChildNotFoundError(parentID, name)
	}
	return s.inodes[id].Clone(), nil
}

// Create inserts a new inode.
func (s *Store) Create(ctx context.Context, inode *catalog.Inode) (catalog.InodeID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := catalog.ValidateNew(inode); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if _, exists := s.inodes[inode.ID]; exists {
		return 0, errors.NewAlreadyExistsError(inode.ID.String())
	}

	isRoot := inode.ID == catalog.RootID
	if !isRoot {
		parent, ok := s.inodes[inode.ParentID]
		if !ok {
			return 0, catalog.NewInodeNotFoundError(inode.ParentID)
		}
		if !parent.IsDir() {
			return 0, errors.NewNotDirectoryError(parent.Path)
		}
		key := childKey{inode.ParentID, inode.Name}
		if _, taken := s.children[key]; taken {
			return 0, errors.NewAlreadyExistsError(inode.Path)
		}
		s.children[key] = inode.ID
	}

	s.inodes[inode.ID] = inode.Clone()
	return inode.ID, nil
}

// Touch advances last_visited_at.
func (s *Store) Touch(ctx context.Context, id catalog.InodeID) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inode, ok := s.inodes[id]; ok {
		if now := s.now(); now.After(inode.LastVisitedAt) {
			inode.LastVisitedAt = now
		}
	}
}

// TryLock sets the lock if it is clear.
func (s *Store) TryLock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	inode, ok := s.inodes[id]
	if !ok {
		return catalog.NewInodeNotFoundError(id)
	}
	if inode.Lock {
		return errors.NewAlreadyLockedError(inode.Path)
	}
	inode.Lock = true
	return nil
}

// Unlock clears the lock.
func (s *Store) Unlock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if inode, ok := s.inodes[id]; ok {
		inode.Lock = false
	}
	return nil
}

// ListChildren returns the children of parentID ordered by name.
func (s *Store) ListChildren(ctx context.Context, parentID catalog.InodeID) ([]*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := s.inodes[parentID]; !ok {
		return nil, catalog.NewInodeNotFoundError(parentID)
	}

	var out []*catalog.Inode
	for key, id := range s.children {
		if key.parent == parentID {
			out = append(out, s.inodes[id].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetSize records the size of a fetched object.
func (s *Store) SetSize(ctx context.Context, id catalog.InodeID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	inode, ok := s.inodes[id]
	if !ok {
		return catalog.NewInodeNotFoundError(id)
	}
	inode.Size = size
	inode.UpdatedAt = s.now()
	return nil
}

// ClearStaleLocks clears every lock.
func (s *Store) ClearStaleLocks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	for _, inode := range s.inodes {
		if inode.Lock {
			inode.Lock = false
			n++
		}
	}
	return n, nil
}

// Healthcheck reports whether the store is open.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen()
}

// Close marks the store closed. Subsequent calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
