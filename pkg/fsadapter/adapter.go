// Package fsadapter translates filesystem operations into catalog and
// resolver calls. It holds no process-wide state: the catalog, resolver and
// origins are passed in, so it can be driven directly in tests without a
// mount.
package fsadapter

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/internal/telemetry"
	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/metrics"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// Resolver serves object bytes. *resolver.Resolver implements it.
type Resolver interface {
	Ensure(ctx context.Context, inode *catalog.Inode) (int64, error)
	ReadAt(ctx context.Context, inode *catalog.Inode, offset int64, size int) ([]byte, error)
}

// Options configures an Adapter.
type Options struct {
	// UID and GID own every entry.
	// Default: 1000
	UID uint32
	GID uint32

	// Metrics may be nil.
	Metrics metrics.FSMetrics
}

// Adapter implements the filesystem operations of a mount.
type Adapter struct {
	catalog  catalog.Catalog
	resolver Resolver
	origins  *origin.Registry
	metrics  metrics.FSMetrics
	uid, gid uint32
	now      func() time.Time
}

// New returns an adapter. origins may be nil, in which case lookups never
// discover entries that are not already in the catalog.
func New(c catalog.Catalog, r Resolver, origins *origin.Registry, opts Options) *Adapter {
	if opts.UID == 0 {
		opts.UID = 1000
	}
	if opts.GID == 0 {
		opts.GID = 1000
	}
	if origins == nil {
		origins = origin.NewRegistry()
	}
	return &Adapter{
		catalog:  c,
		resolver: r,
		origins:  origins,
		metrics:  opts.Metrics,
		uid:      opts.UID,
		gid:      opts.GID,
		now:      time.Now,
	}
}

// Attr returns the attributes reported for inode.
func (a *Adapter) Attr(inode *catalog.Inode) catalog.Attr {
	return inode.Attr(a.uid, a.gid)
}

// Lookup returns the child of parentID named name.
//
// A name missing from the catalog is looked up at the parent's origin; if
// the object exists there it is added to the catalog and returned.
func (a *Adapter) Lookup(ctx context.Context, parentID catalog.InodeID, name string) (inode *catalog.Inode, err error) {
	ctx, done := a.begin(ctx, "LOOKUP", parentID, telemetry.Name(name))
	defer func() { done(err) }()

	if name == "" || strings.Contains(name, "/") {
		return nil, caterrors.NewInvalidFormatError(name, "invalid entry name")
	}

	inode, err = a.catalog.Lookup(ctx, parentID, name)
	if caterrors.IsNotFoundError(err) {
		inode, err = a.discover(ctx, parentID, name, err)
	}
	if err != nil {
		return nil, err
	}

	a.catalog.Touch(ctx, inode.ID)
	return inode, nil
}

// discover creates the catalog row for name if the parent's origin has it.
// notFound is returned unchanged when there is nowhere to look.
func (a *Adapter) discover(ctx context.Context, parentID catalog.InodeID, name string, notFound error) (*catalog.Inode, error) {
	parent, err := a.catalog.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, caterrors.NewNotDirectoryError(parent.Path)
	}
	if parent.Source == "" {
		return nil, notFound
	}
	o, err := a.origins.Get(parent.StoreType)
	if err != nil {
		return nil, notFound
	}

	src, err := protocolpath.Parse(parent.Source)
	if err != nil {
		return nil, err
	}
	child := src.Join(name)

	info, err := o.Stat(ctx, child)
	if err != nil {
		if origin.IsNotFound(err) {
			return nil, notFound
		}
		return nil, caterrors.NewOriginUnavailableError(child.String(), err)
	}

	kind := catalog.KindFile
	if info.Dir {
		kind = catalog.KindDirectory
	}
	size := uint64(0)
	if info.Size > 0 && !info.Dir {
		size = uint64(info.Size)
	}

	inode, err := catalog.NewInode(parent, name, child, kind, size, a.now())
	if err != nil {
		return nil, err
	}
	if _, err := a.catalog.Create(ctx, inode); err != nil {
		if caterrors.IsAlreadyExistsError(err) {
			return a.catalog.Lookup(ctx, parentID, name)
		}
		return nil, err
	}

	logger.DebugCtx(ctx, "Discovered entry at origin",
		logger.InodeID(uint64(inode.ID)), logger.KeyName, name, logger.Source(inode.Source))
	return inode, nil
}

// GetAttr returns the attributes of id.
func (a *Adapter) GetAttr(ctx context.Context, id catalog.InodeID) (attr catalog.Attr, err error) {
	ctx, done := a.begin(ctx, "GETATTR", id)
	defer func() { done(err) }()

	inode, err := a.catalog.Get(ctx, id)
	if err != nil {
		return catalog.Attr{}, err
	}
	return a.Attr(inode), nil
}

// Open prepares id for reading and returns its inode. Files are fetched
// here so that reads are served from the local cache.
func (a *Adapter) Open(ctx context.Context, id catalog.InodeID) (inode *catalog.Inode, err error) {
	ctx, done := a.begin(ctx, "OPEN", id)
	defer func() { done(err) }()

	inode, err = a.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inode.IsDir() {
		return inode, nil
	}

	size, err := a.resolver.Ensure(ctx, inode)
	if err != nil {
		return nil, err
	}
	inode.Size = uint64(size)
	return inode, nil
}

// Read returns up to size bytes of id at offset. The range is clamped to
// the object and an offset past the end yields no bytes.
func (a *Adapter) Read(ctx context.Context, id catalog.InodeID, offset int64, size int) (data []byte, err error) {
	ctx, done := a.begin(ctx, "READ", id, telemetry.Offset(offset), telemetry.Count(size))
	defer func() { done(err) }()

	if offset < 0 || size < 0 {
		return nil, caterrors.NewInvalidFormatError(id.String(), "negative read range")
	}

	inode, err := a.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inode.IsDir() {
		return nil, caterrors.NewIsDirectoryError(inode.Path)
	}

	data, err = a.resolver.ReadAt(ctx, inode, offset, size)
	if err != nil {
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.RecordBytesRead(int64(len(data)))
	}
	telemetry.SetAttributes(ctx, telemetry.BytesRead(len(data)))
	return data, nil
}

// ReadDir returns the entries of directory id ordered by name.
//
// When the directory mirrors a listable origin location, its immediate
// children are added to the catalog first. Listing failures are logged and
// the catalog view is returned.
func (a *Adapter) ReadDir(ctx context.Context, id catalog.InodeID) (entries []*catalog.Inode, err error) {
	ctx, done := a.begin(ctx, "READDIR", id)
	defer func() { done(err) }()

	dir, err := a.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, caterrors.NewNotDirectoryError(dir.Path)
	}

	if dir.Source != "" {
		if err := a.populate(ctx, dir); err != nil {
			logger.WarnCtx(ctx, "Failed to list directory at origin",
				logger.InodeID(uint64(dir.ID)), logger.Source(dir.Source), logger.Err(err))
		}
	}

	entries, err = a.catalog.ListChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	a.catalog.Touch(ctx, id)
	return entries, nil
}

func (a *Adapter) populate(ctx context.Context, dir *catalog.Inode) error {
	o, err := a.origins.Get(dir.StoreType)
	if err != nil {
		return nil
	}
	lister, ok := o.(origin.Lister)
	if !ok {
		return nil
	}

	src, err := protocolpath.Parse(dir.Source)
	if err != nil {
		return err
	}
	listed, err := lister.List(ctx, src)
	if err != nil {
		return err
	}

	now := a.now()
	for _, e := range listed {
		if e.Name == "" || strings.Contains(e.Name, "/") {
			continue
		}
		kind, size := catalog.KindFile, uint64(0)
		if e.Dir {
			kind = catalog.KindDirectory
		} else if e.Size > 0 {
			size = uint64(e.Size)
		}
		inode, err := catalog.NewInode(dir, e.Name, src.Join(e.Name), kind, size, now)
		if err != nil {
			return err
		}
		if _, err := a.catalog.Create(ctx, inode); err != nil && !caterrors.IsAlreadyExistsError(err) {
			return err
		}
	}
	return nil
}

// Mkdir is not supported: no origin allows creating directories.
func (a *Adapter) Mkdir(ctx context.Context, parentID catalog.InodeID, name string) (err error) {
	_, done := a.begin(ctx, "MKDIR", parentID, telemetry.Name(name))
	defer func() { done(err) }()

	return caterrors.NewUnsupportedError("mkdir")
}

// Register adds the object at source to the catalog as name under
// parentID. A source ending in "/" is registered as a directory. If the
// same object is already registered there, the existing row is returned.
func (a *Adapter) Register(ctx context.Context, parentID catalog.InodeID, name, source string) (*catalog.Inode, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, caterrors.NewInvalidFormatError(name, "invalid entry name")
	}

	p, err := protocolpath.Parse(source)
	if err != nil {
		return nil, err
	}
	kind := catalog.KindFile
	if strings.HasSuffix(p.Path, "/") {
		kind = catalog.KindDirectory
		p.Path = strings.TrimRight(p.Path, "/")
		if p.Path == "" {
			return nil, caterrors.NewInvalidFormatError(source, "empty path")
		}
	}

	parent, err := a.catalog.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, caterrors.NewNotDirectoryError(parent.Path)
	}

	inode, err := catalog.NewInode(parent, name, p, kind, 0, a.now())
	if err != nil {
		return nil, err
	}
	if kind == catalog.KindFile {
		inode.Size = a.statSize(ctx, inode.StoreType, p)
	}
	if _, err := a.catalog.Create(ctx, inode); err != nil {
		if !caterrors.IsAlreadyExistsError(err) {
			return nil, err
		}
		existing, lerr := a.catalog.Lookup(ctx, parentID, name)
		if lerr != nil || existing.ID != inode.ID {
			return nil, err
		}
		return existing, nil
	}

	logger.InfoCtx(ctx, "Registered entry",
		logger.InodeID(uint64(inode.ID)), logger.KeyPath, inode.Path, logger.Source(inode.Source))
	return inode, nil
}

// statSize asks the origin for the size of a file being registered. Zero
// means unknown; the size is then learned on the first open.
func (a *Adapter) statSize(ctx context.Context, st catalog.StoreType, p protocolpath.Path) uint64 {
	o, err := a.origins.Get(st)
	if err != nil {
		return 0
	}
	info, err := o.Stat(ctx, p)
	if err != nil {
		logger.DebugCtx(ctx, "Origin stat failed during register", logger.Source(p.String()), logger.KeyError, err)
		return 0
	}
	if info.Dir || info.Size <= 0 {
		return 0
	}
	return uint64(info.Size)
}

// Walk resolves a slash-separated catalog path from the root, discovering
// entries at their origins as Lookup does.
func (a *Adapter) Walk(ctx context.Context, path string) (*catalog.Inode, error) {
	inode, err := a.catalog.Get(ctx, catalog.RootID)
	if err != nil {
		return nil, err
	}
	for _, name := range strings.Split(path, "/") {
		if name == "" || name == "." {
			continue
		}
		if inode, err = a.Lookup(ctx, inode.ID, name); err != nil {
			return nil, err
		}
	}
	return inode, nil
}

// begin starts the log context, span and metrics for one request. The
// returned function ends them with the request's outcome.
func (a *Adapter) begin(ctx context.Context, op string, id catalog.InodeID, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(op, uint64(id))
	} else {
		lc = lc.Clone()
		lc.Operation = op
		lc.InodeID = uint64(id)
	}
	ctx, span := telemetry.StartFSSpan(ctx, op, uint64(id), attrs...)
	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	if a.metrics != nil {
		a.metrics.RecordRequestStart(op)
	}

	return ctx, func(err error) {
		errno := ""
		if err != nil {
			errno = ErrnoName(Errno(err))
			telemetry.SetAttributes(ctx, telemetry.Errno(errno))
			telemetry.RecordError(ctx, err)
			if errno == "EIO" {
				logger.WarnCtx(ctx, "Request failed", logger.Err(err))
			} else {
				logger.DebugCtx(ctx, "Request failed", logger.KeyError, errno)
			}
		}
		span.End()

		if a.metrics != nil {
			a.metrics.RecordRequestEnd(op)
			a.metrics.RecordRequest(op, time.Since(start), errno)
		}
	}
}
