package store

import (
	"context"
	"time"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/metrics"
)

type instrumented struct {
	catalog.Catalog
	backend string
	m       metrics.CatalogMetrics
}

// Instrument wraps c so every call is reported to m. It returns c unchanged
// when m is nil.
func Instrument(c catalog.Catalog, backend string, m metrics.CatalogMetrics) catalog.Catalog {
	if m == nil {
		return c
	}
	return &instrumented{Catalog: c, backend: backend, m: m}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.ObserveOperation(i.backend, op, time.Since(start), err)
}

func (i *instrumented) Get(ctx context.Context, id catalog.InodeID) (*catalog.Inode, error) {
	start := time.Now()
	inode, err := i.Catalog.Get(ctx, id)
	i.observe("Get", start, err)
	return inode, err
}

func (i *instrumented) Lookup(ctx context.Context, parentID catalog.InodeID, name string) (*catalog.Inode, error) {
	start := time.Now()
	inode, err := i.Catalog.Lookup(ctx, parentID, name)
	i.observe("Lookup", start, err)
	return inode, err
}

func (i *instrumented) Create(ctx context.Context, inode *catalog.Inode) (catalog.InodeID, error) {
	start := time.Now()
	id, err := i.Catalog.Create(ctx, inode)
	i.observe("Create", start, err)
	return id, err
}

func (i *instrumented) Touch(ctx context.Context, id catalog.InodeID) {
	start := time.Now()
	i.Catalog.Touch(ctx, id)
	i.observe("Touch", start, nil)
}

func (i *instrumented) TryLock(ctx context.Context, id catalog.InodeID) error {
	start := time.Now()
	err := i.Catalog.TryLock(ctx, id)
	i.observe("TryLock", start, err)
	return err
}

func (i *instrumented) Unlock(ctx context.Context, id catalog.InodeID) error {
	start := time.Now()
	err := i.Catalog.Unlock(ctx, id)
	i.observe("Unlock", start, err)
	return err
}

func (i *instrumented) ListChildren(ctx context.Context, parentID catalog.InodeID) ([]*catalog.Inode, error) {
	start := time.Now()
	children, err := i.Catalog.ListChildren(ctx, parentID)
	i.observe("ListChildren", start, err)
	return children, err
}

func (i *instrumented) SetSize(ctx context.Context, id catalog.InodeID, size uint64) error {
	start := time.Now()
	err := i.Catalog.SetSize(ctx, id, size)
	i.observe("SetSize", start, err)
	return err
}
