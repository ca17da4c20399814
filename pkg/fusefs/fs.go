// Package fusefs binds the filesystem adapter to the kernel through
// go-fuse. Each kernel inode is a node carrying a catalog id; all
// behaviour lives in the adapter.
package fusefs

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/fsadapter"
)

// Options configures a mount.
type Options struct {
	// AllowOther lets other users access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// EntryTimeout and AttrTimeout control kernel caching of lookups and
	// attributes. NegativeTimeout caches failed lookups.
	EntryTimeout    time.Duration
	AttrTimeout     time.Duration
	NegativeTimeout time.Duration

	// CacheDir is reported by statfs. CacheSize, when non-zero, caps the
	// reported capacity.
	CacheDir  string
	CacheSize uint64

	// Debug logs every kernel request.
	Debug bool

	// DirectMount calls mount(2) directly instead of running fusermount.
	// It needs CAP_SYS_ADMIN and falls back to fusermount on failure.
	DirectMount bool
}

// Mount mounts the filesystem at mountpoint and serves it until ctx is
// done or the returned server is unmounted.
func Mount(ctx context.Context, mountpoint string, a *fsadapter.Adapter, opts Options) (*fuse.Server, error) {
	if mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", mountpoint, err)
	}

	fsys := &filesystem{adapter: a, opts: opts}
	root := &node{fsys: fsys, id: catalog.RootID}

	entryTimeout := opts.EntryTimeout
	attrTimeout := opts.AttrTimeout
	negativeTimeout := opts.NegativeTimeout

	server, err := gofuse.Mount(mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		RootStableAttr:  &gofuse.StableAttr{Ino: uint64(catalog.RootID), Mode: syscall.S_IFDIR},
		MountOptions: fuse.MountOptions{
			FsName:     "mantafs",
			Name:       "mantafs",
			AllowOther:  opts.AllowOther,
			Debug:       opts.Debug,
			DirectMount: opts.DirectMount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", mountpoint, err)
	}

	go func() {
		select {
		case <-ctx.Done():
			if err := server.Unmount(); err != nil {
				logger.Warn("Unmount failed", logger.KeyPath, mountpoint, logger.KeyError, err)
			}
		case <-serverDone(server):
		}
	}()

	logger.Info("Filesystem mounted", logger.KeyPath, mountpoint)
	return server, nil
}

func serverDone(s *fuse.Server) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	return done
}

type filesystem struct {
	adapter *fsadapter.Adapter
	opts    Options
}

// node is one catalog entry as seen by the kernel.
type node struct {
	gofuse.Inode
	fsys *filesystem
	id   catalog.InodeID

	// size is the file size last reported to the kernel.
	size atomic.Uint64
}

var (
	_ gofuse.InodeEmbedder  = (*node)(nil)
	_ gofuse.NodeLookuper   = (*node)(nil)
	_ gofuse.NodeGetattrer  = (*node)(nil)
	_ gofuse.NodeReaddirer  = (*node)(nil)
	_ gofuse.NodeOpener     = (*node)(nil)
	_ gofuse.NodeReader     = (*node)(nil)
	_ gofuse.NodeMkdirer    = (*node)(nil)
	_ gofuse.NodeStatfser   = (*node)(nil)
	_ gofuse.NodeSetattrer  = (*node)(nil)
	_ gofuse.NodeCreater    = (*node)(nil)
	_ gofuse.NodeUnlinker   = (*node)(nil)
	_ gofuse.NodeRmdirer    = (*node)(nil)
	_ gofuse.NodeRenamer    = (*node)(nil)
	_ gofuse.NodeSymlinker  = (*node)(nil)
	_ gofuse.NodeLinker     = (*node)(nil)
	_ gofuse.NodeReadlinker = (*node)(nil)
)

// withCaller records the requesting process in the log context.
func withCaller(ctx context.Context, op string, id catalog.InodeID) context.Context {
	lc := logger.NewLogContext(op, uint64(id))
	if caller, ok := fuse.FromContext(ctx); ok {
		lc = lc.WithCaller(caller.Pid, caller.Uid)
	}
	return logger.WithContext(ctx, lc)
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	ctx = withCaller(ctx, "LOOKUP", n.id)

	inode, err := n.fsys.adapter.Lookup(ctx, n.id, name)
	if err != nil {
		return nil, fsadapter.Errno(err)
	}

	fillAttr(n.fsys.adapter.Attr(inode), &out.Attr)
	child := n.NewInode(ctx, &node{fsys: n.fsys, id: inode.ID}, gofuse.StableAttr{Mode: fileType(inode.Kind), Ino: uint64(inode.ID)})
	// NewInode may hand back an existing node for the same id.
	if cn, ok := child.Operations().(*node); ok {
		cn.size.Store(out.Attr.Size)
	}
	return child, 0
}

func (n *node) Getattr(ctx context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ctx = withCaller(ctx, "GETATTR", n.id)

	attr, err := n.fsys.adapter.GetAttr(ctx, n.id)
	if err != nil {
		return fsadapter.Errno(err)
	}
	fillAttr(attr, &out.Attr)
	n.size.Store(out.Attr.Size)
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	ctx = withCaller(ctx, "READDIR", n.id)

	children, err := n.fsys.adapter.ReadDir(ctx, n.id)
	if err != nil {
		return nil, fsadapter.Errno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		entries = append(entries, fuse.DirEntry{
			Name: c.Name,
			Ino:  uint64(c.ID),
			Mode: fileType(c.Kind),
		})
	}
	return gofuse.NewListDirStream(entries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	ctx = withCaller(ctx, "OPEN", n.id)

	inode, err := n.fsys.adapter.Open(ctx, n.id)
	if err != nil {
		return nil, 0, fsadapter.Errno(err)
	}
	if reported := n.size.Load(); inode.Size != reported {
		// The kernel clamps page-cache reads to the size it holds, so a
		// size first learned by this fetch must invalidate its attributes.
		if errno := n.NotifyContent(0, 0); errno != 0 {
			logger.DebugCtx(ctx, "Attribute invalidation failed, using direct I/O",
				logger.KeyError, errno, "reported", reported, logger.KeySize, inode.Size)
			return nil, fuse.FOPEN_DIRECT_IO, 0
		}
		return nil, 0, 0
	}
	// Objects are immutable once cached.
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Read(ctx context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	ctx = withCaller(ctx, "READ", n.id)

	data, err := n.fsys.adapter.Read(ctx, n.id, off, len(dest))
	if err != nil {
		return nil, fsadapter.Errno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *node) Mkdir(ctx context.Context, name string, _ uint32, _ *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	ctx = withCaller(ctx, "MKDIR", n.id)
	return nil, fsadapter.Errno(n.fsys.adapter.Mkdir(ctx, n.id, name))
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	dir := n.fsys.opts.CacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fsadapter.Errno(err)
	}
	*out = statfs(&st, n.fsys.opts.CacheSize)
	return 0
}

// The mount is read-only.

func (n *node) Setattr(context.Context, gofuse.FileHandle, *fuse.SetAttrIn, *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (n *node) Create(context.Context, string, uint32, uint32, *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (n *node) Unlink(context.Context, string) syscall.Errno { return syscall.EROFS }

func (n *node) Rmdir(context.Context, string) syscall.Errno { return syscall.EROFS }

func (n *node) Rename(context.Context, string, gofuse.InodeEmbedder, string, uint32) syscall.Errno {
	return syscall.EROFS
}

func (n *node) Symlink(context.Context, string, string, *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (n *node) Link(context.Context, gofuse.InodeEmbedder, string, *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.ENOTSUP
}

func (n *node) Readlink(context.Context) ([]byte, syscall.Errno) {
	return nil, syscall.EINVAL
}

func fileType(k catalog.Kind) uint32 {
	switch k {
	case catalog.KindDirectory:
		return syscall.S_IFDIR
	case catalog.KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

func fillAttr(a catalog.Attr, out *fuse.Attr) {
	out.Ino = a.Ino
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.Mode = fileType(a.Kind) | uint32(a.Mode.Perm())
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.UID, Gid: a.GID}
	out.Blksize = a.BlkSize
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}

// statfs reports the cache filesystem, capped at capacity bytes when
// capacity is non-zero.
func statfs(st *unix.Statfs_t, capacity uint64) fuse.StatfsOut {
	bsize := uint64(st.Bsize)
	if bsize == 0 {
		bsize = catalog.BlockSize
	}

	out := fuse.StatfsOut{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(bsize),
		Frsize:  uint32(bsize),
		NameLen: 255,
	}
	if capacity > 0 {
		limit := capacity / bsize
		out.Blocks = min(out.Blocks, limit)
		out.Bfree = min(out.Bfree, limit)
		out.Bavail = min(out.Bavail, limit)
	}
	return out
}
