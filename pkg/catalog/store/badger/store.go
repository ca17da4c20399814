// Package badger implements the catalog on BadgerDB, the embedded key-value
// backend.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
)

// maxConflictRetries bounds how often an update transaction is replayed after
// badger reports a write conflict.
const maxConflictRetries = 32

// Config configures the BadgerDB catalog.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory only.
	InMemory bool
}

// Store is a catalog.Catalog backed by BadgerDB.
type Store struct {
	db  *badgerdb.DB
	now func() time.Time
}

var _ catalog.Catalog = (*Store)(nil)

// New opens (or creates) a BadgerDB catalog.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger catalog: path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger catalog at %q: %w", cfg.Path, err)
	}

	logger.Debug("Opened badger catalog", logger.KeyPath, cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db, now: time.Now}, nil
}

// NewWithPath opens a BadgerDB catalog in dbPath.
func NewWithPath(ctx context.Context, dbPath string) (*Store, error) {
	return New(ctx, Config{Path: dbPath})
}

// update runs fn in a read-write transaction, replaying it on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

// getInode reads an inode inside txn.
func getInode(txn *badgerdb.Txn, id catalog.InodeID) (*catalog.Inode, error) {
	item, err := txn.Get(keyInode(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, catalog.NewInodeNotFoundError(id)
	}
	if err != nil {
		return nil, caterrors.NewStoreError("get inode", err)
	}

	var inode *catalog.Inode
	err = item.Value(func(val []byte) error {
		inode, err = decodeInode(val)
		return err
	})
	if err != nil {
		return nil, caterrors.NewStoreError("decode inode", err)
	}
	return inode, nil
}

func putInode(txn *badgerdb.Txn, inode *catalog.Inode) error {
	data, err := encodeInode(inode)
	if err != nil {
		return err
	}
	return txn.Set(keyInode(inode.ID), data)
}

// wrapStoreError leaves coded errors alone and marks everything else as a
// backend failure.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if caterrors.CodeOf(err) != 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return caterrors.NewStoreError(op, err)
}

// Get returns the inode with the given id.
func (s *Store) Get(ctx context.Context, id catalog.InodeID) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *catalog.Inode
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		inode, err = getInode(txn, id)
		return err
	})
	if err != nil {
		return nil, wrapStoreError("get inode", err)
	}
	return inode, nil
}

// Lookup resolves (parentID, name) through the children index.
func (s *Store) Lookup(ctx context.Context, parentID catalog.InodeID, name string) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *catalog.Inode
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyChild(parentID, name))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return catalog.NewChildNotFoundError(parentID, name)
		}
		if err != nil {
			return err
		}

		var childID catalog.InodeID
		if err := item.Value(func(val []byte) error {
			childID, err = decodeID(val)
			return err
		}); err != nil {
			return err
		}

		inode, err = getInode(txn, childID)
		return err
	})
	if err != nil {
		return nil, wrapStoreError("lookup", err)
	}
	return inode, nil
}

// Create inserts the inode and its children-index entry in one transaction.
func (s *Store) Create(ctx context.Context, inode *catalog.Inode) (catalog.InodeID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := catalog.ValidateNew(inode); err != nil {
		return 0, err
	}

	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyInode(inode.ID)); err == nil {
			return caterrors.NewAlreadyExistsError(inode.ID.String())
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		if inode.ID != catalog.RootID {
			parent, err := getInode(txn, inode.ParentID)
			if err != nil {
				return err
			}
			if !parent.IsDir() {
				return caterrors.NewNotDirectoryError(parent.Path)
			}

			childKey := keyChild(inode.ParentID, inode.Name)
			if _, err := txn.Get(childKey); err == nil {
				return caterrors.NewAlreadyExistsError(inode.Path)
			} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(childKey, encodeID(inode.ID)); err != nil {
				return err
			}
		}

		return putInode(txn, inode)
	})
	if err != nil {
		return 0, wrapStoreError("create inode", err)
	}
	return inode.ID, nil
}

// Touch advances last_visited_at. Failures are logged.
func (s *Store) Touch(ctx context.Context, id catalog.InodeID) {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, id)
		if err != nil {
			return err
		}
		now := s.now()
		if !now.After(inode.LastVisitedAt) {
			return nil
		}
		inode.LastVisitedAt = now
		return putInode(txn, inode)
	})
	if err != nil && !caterrors.IsNotFoundError(err) {
		logger.WarnCtx(ctx, "Touch failed", logger.KeyInodeID, uint64(id), logger.KeyError, err)
	}
}

// TryLock sets the lock inside a single conditional update transaction.
// Concurrent callers conflict at commit; the replay observes the winner's
// lock and reports AlreadyLocked.
func (s *Store) TryLock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, id)
		if err != nil {
			return err
		}
		if inode.Lock {
			return caterrors.NewAlreadyLockedError(inode.Path)
		}
		inode.Lock = true
		return putInode(txn, inode)
	})
	return wrapStoreError("try lock", err)
}

// Unlock clears the lock. A missing inode is not an error.
func (s *Store) Unlock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, id)
		if caterrors.IsNotFoundError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !inode.Lock {
			return nil
		}
		inode.Lock = false
		return putInode(txn, inode)
	})
	return wrapStoreError("unlock", err)
}

// ListChildren scans the children index of parentID.
func (s *Store) ListChildren(ctx context.Context, parentID catalog.InodeID) ([]*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var children []*catalog.Inode
	err := s.db.View(func(txn *badgerdb.Txn) error {
		if _, err := getInode(txn, parentID); err != nil {
			return err
		}

		prefix := keyChildPrefix(parentID)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if len(children)%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var childID catalog.InodeID
			err := it.Item().Value(func(val []byte) error {
				var err error
				childID, err = decodeID(val)
				return err
			})
			if err != nil {
				return err
			}

			child, err := getInode(txn, childID)
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreError("list children", err)
	}
	return children, nil
}

// SetSize records the size of a fetched object.
func (s *Store) SetSize(ctx context.Context, id catalog.InodeID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		inode, err := getInode(txn, id)
		if err != nil {
			return err
		}
		inode.Size = size
		inode.UpdatedAt = s.now()
		return putInode(txn, inode)
	})
	return wrapStoreError("set size", err)
}

// ClearStaleLocks resets every persisted lock.
func (s *Store) ClearStaleLocks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var cleared int
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		cleared = 0

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixInode)

		it := txn.NewIterator(opts)
		defer it.Close()

		var locked []*catalog.Inode
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				inode, err := decodeInode(val)
				if err != nil {
					return err
				}
				if inode.Lock {
					locked = append(locked, inode)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, inode := range locked {
			inode.Lock = false
			if err := putInode(txn, inode); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreError("clear stale locks", err)
	}
	return cleared, nil
}

// Healthcheck verifies BadgerDB can serve a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return caterrors.NewStoreError("healthcheck", errors.New("database is closed"))
	}
	if err := s.db.View(func(txn *badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
