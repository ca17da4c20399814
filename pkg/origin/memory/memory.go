// Package memory provides an in-process origin backed by a map. Mounts use
// it for scratch namespaces; tests use it to count and script fetches.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// Origin is a map-backed origin.Origin and origin.Lister. Objects are keyed
// by scheme and path; a version, if any, is ignored. Directories are
// implied by object paths.
type Origin struct {
	mu      sync.RWMutex
	objects map[string][]byte

	fetches atomic.Int64

	// BeforeFetch, when set, runs at the start of every Fetch. A non-nil
	// return fails the fetch.
	BeforeFetch func(ctx context.Context, p protocolpath.Path) error
}

var (
	_ origin.Origin = (*Origin)(nil)
	_ origin.Lister = (*Origin)(nil)
)

// New returns an empty origin.
func New() *Origin {
	return &Origin{objects: make(map[string][]byte)}
}

func key(p protocolpath.Path) string {
	return p.Scheme + protocolpath.Separator + strings.Trim(p.Path, "/")
}

// Put stores data at the location named by raw, a protocol path.
func (o *Origin) Put(raw string, data []byte) {
	p := protocolpath.MustParse(raw)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key(p)] = append([]byte(nil), data...)
}

// Fetches returns how many times Fetch has been called.
func (o *Origin) Fetches() int64 {
	return o.fetches.Load()
}

// Fetch returns the stored object.
func (o *Origin) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	o.fetches.Add(1)
	if o.BeforeFetch != nil {
		if err := o.BeforeFetch(ctx, p); err != nil {
			return nil, 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	o.mu.RLock()
	data, ok := o.objects[key(p)]
	o.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", origin.ErrNotFound, p)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Stat reports an object, or a directory when p is a prefix of one.
func (o *Origin) Stat(ctx context.Context, p protocolpath.Path) (origin.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return origin.ObjectInfo{}, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	k := key(p)
	if data, ok := o.objects[k]; ok {
		return origin.ObjectInfo{Size: int64(len(data)), Version: p.Version}, nil
	}
	for other := range o.objects {
		if strings.HasPrefix(other, k+"/") {
			return origin.ObjectInfo{Dir: true, Version: p.Version}, nil
		}
	}
	return origin.ObjectInfo{}, fmt.Errorf("%w: %s", origin.ErrNotFound, p)
}

// List returns the immediate children of dir ordered by name.
func (o *Origin) List(ctx context.Context, dir protocolpath.Path) ([]origin.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	prefix := key(dir) + "/"
	seen := make(map[string]origin.Entry)
	for k, data := range o.objects {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			seen[name] = origin.Entry{Name: name, Dir: true}
		} else {
			seen[name] = origin.Entry{Name: name, Size: int64(len(data))}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: %s", origin.ErrNotFound, dir)
	}

	out := make([]origin.Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
