// Package cache provides the local on-disk object cache.
//
// Objects are immutable once written and addressed only by InodeID:
//
//	<dir>/objects/<first two hex digits>/<16 hex digit id>
//
// Writes land in a uniquely named temp file in the same directory and are
// renamed into place, so a reader sees either nothing or the whole object.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
)

const (
	objectsDir = "objects"
	tmpSuffix  = ".tmp"
)

var (
	// ErrObjectNotFound is returned when an object is not in the cache.
	ErrObjectNotFound = errors.New("object not found in cache")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("cache store is closed")
)

// Config holds configuration for the object cache.
type Config struct {
	// Dir is the cache root. Created if it does not exist.
	Dir string

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for cached objects.
	// Default: 0644
	FileMode os.FileMode
}

// Store is the on-disk object cache. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	dir      string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// New creates a store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, objectsDir), cfg.DirMode); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache dir %q is not a directory", cfg.Dir)
	}

	return &Store{
		dir:      cfg.Dir,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithPath creates a store with default modes.
func NewWithPath(dir string) (*Store, error) {
	return New(Config{Dir: dir})
}

// Dir returns the cache root.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of the object for id. It depends on nothing but
// the id.
func (s *Store) Path(id catalog.InodeID) string {
	hex := id.String()
	return filepath.Join(s.dir, objectsDir, hex[:2], hex)
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stat returns the size of a cached object.
func (s *Store) Stat(ctx context.Context, id catalog.InodeID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrObjectNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Exists reports whether id is cached.
func (s *Store) Exists(ctx context.Context, id catalog.InodeID) bool {
	_, err := s.Stat(ctx, id)
	return err == nil
}

// Get reads a whole cached object.
func (s *Store) Get(ctx context.Context, id catalog.InodeID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

// ReadAt reads up to length bytes at offset. The range is clamped to the
// object; an offset at or past the end yields an empty slice.
func (s *Store) ReadAt(ctx context.Context, id catalog.InodeID, offset int64, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range offset=%d length=%d", offset, length)
	}

	f, size, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset >= size || length == 0 {
		return []byte{}, nil
	}
	if remaining := size - offset; int64(length) > remaining {
		length = int(remaining)
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Open returns a handle on a cached object together with its size. The
// caller closes it.
func (s *Store) Open(ctx context.Context, id catalog.InodeID) (*os.File, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrObjectNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Put streams r into the cache under id and returns the number of bytes
// written. If Put fails or ctx is cancelled nothing is left behind.
//
// Concurrent Puts for the same id are safe; each writes its own temp file
// and the last rename wins.
func (s *Store) Put(ctx context.Context, id catalog.InodeID, r io.Reader) (n int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	final := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(final), s.dirMode); err != nil {
		return 0, err
	}

	tmp := filepath.Join(filepath.Dir(final), "."+id.String()+"."+uuid.NewString()+tmpSuffix)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				logger.Warn("Failed to remove temp object", logger.KeyPath, tmp, logger.KeyError, rmErr)
			}
		}
	}()

	n, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return n, err
	}
	if err = f.Sync(); err != nil {
		return n, err
	}
	if err = f.Close(); err != nil {
		return n, err
	}
	if err = os.Rename(tmp, final); err != nil {
		return n, err
	}
	return n, nil
}

// List returns the ids of every cached object in ascending order.
func (s *Store) List(ctx context.Context) ([]catalog.InodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var ids []catalog.InodeID
	err := s.walk(ctx, func(path string, d fs.DirEntry) error {
		name := d.Name()
		if strings.HasSuffix(name, tmpSuffix) || strings.HasPrefix(name, ".") {
			return nil
		}
		v, err := strconv.ParseUint(name, 16, 64)
		if err != nil {
			return nil
		}
		ids = append(ids, catalog.InodeID(v))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Usage returns the bytes held by complete objects.
func (s *Store) Usage(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	var total int64
	err := s.walk(ctx, func(path string, d fs.DirEntry) error {
		if strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// RemoveTemp deletes temp files left by a previous process that died
// mid-write. It must only run before any Put of this process starts.
func (s *Store) RemoveTemp(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}

	removed := 0
	err := s.walk(ctx, func(path string, d fs.DirEntry) error {
		if !strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if removed > 0 {
		logger.Info("Removed stale temp objects", logger.KeyCount, removed, logger.KeyPath, s.dir)
	}
	return removed, err
}

// walk visits every regular file under objects/.
func (s *Store) walk(ctx context.Context, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(filepath.Join(s.dir, objectsDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return fn(path, d)
	})
}

// HealthCheck verifies the cache directory is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	_, err := os.Stat(filepath.Join(s.dir, objectsDir))
	return err
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
