// Package origin defines the clients that fetch objects from their
// authoritative store (model hubs and object stores) and a registry that
// selects one by store type.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

var (
	// ErrNotFound is wrapped by origins when the object does not exist.
	ErrNotFound = errors.New("object not found at origin")

	// ErrAccessDenied is wrapped by origins when credentials are missing or
	// rejected. It is not retried.
	ErrAccessDenied = errors.New("access denied by origin")

	// ErrNoOrigin is returned by the registry for unregistered store types.
	ErrNoOrigin = errors.New("no origin registered for store type")
)

// ObjectInfo describes a remote object or directory.
type ObjectInfo struct {
	Size    int64
	Dir     bool
	ETag    string
	Version string
}

// Entry is one child returned by a Lister.
type Entry struct {
	Name string
	Dir  bool
	Size int64
}

// Origin fetches objects from one kind of authoritative store.
type Origin interface {
	// Fetch opens the object at p. The returned size is -1 when the origin
	// did not report one. The caller closes the reader.
	Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error)

	// Stat describes the object or directory at p.
	Stat(ctx context.Context, p protocolpath.Path) (ObjectInfo, error)
}

// Lister is implemented by origins that can enumerate a directory.
type Lister interface {
	List(ctx context.Context, dir protocolpath.Path) ([]Entry, error)
}

// Registry maps store types to origins. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	origins map[catalog.StoreType]Origin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{origins: make(map[catalog.StoreType]Origin)}
}

// Register installs o for st, replacing any previous origin.
func (r *Registry) Register(st catalog.StoreType, o Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.origins[st] = o
}

// Get returns the origin for st.
func (r *Registry) Get(st catalog.StoreType) (Origin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.origins[st]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoOrigin, st)
	}
	return o, nil
}

// Has reports whether an origin is registered for st.
func (r *Registry) Has(st catalog.StoreType) bool {
	_, err := r.Get(st)
	return err == nil
}

// Types returns the registered store types in sorted order.
func (r *Registry) Types() []catalog.StoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.StoreType, 0, len(r.origins))
	for st := range r.origins {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether an origin error is worth another attempt.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrNoOrigin),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var ce *catalog.Error
	if errors.As(err, &ce) && ce.Code == catalog.ErrInvalidFormat {
		return false
	}
	return true
}
