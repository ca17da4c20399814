package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// InodeID identifies a catalog row. It is derived from the identity of the
// remote object (see NewID) so it is stable across restarts.
type InodeID uint64

// RootID is the identifier of the mount root. The root is its own parent.
const RootID InodeID = 1

// String renders the id as fixed-width hex, matching the on-disk cache layout.
func (id InodeID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Kind is the type of a catalog entry.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StoreType is the origin scheme an inode resolves from.
type StoreType string

const (
	// StoreTypeNone marks local directories, including the root.
	StoreTypeNone StoreType = "none"
	StoreTypeHF   StoreType = "hf"
	StoreTypeMS   StoreType = "ms"
	StoreTypeS3   StoreType = "s3"
	StoreTypeOSS  StoreType = "oss"
	StoreTypeGCS  StoreType = "gcs"
)

// ParseStoreType maps a protocol scheme to a StoreType.
func ParseStoreType(scheme string) (StoreType, error) {
	switch st := StoreType(strings.ToLower(scheme)); st {
	case StoreTypeHF, StoreTypeMS, StoreTypeS3, StoreTypeOSS, StoreTypeGCS:
		return st, nil
	default:
		return "", fmt.Errorf("unsupported store type %q", scheme)
	}
}

// Inode is one catalog row.
type Inode struct {
	ID   InodeID
	Name string

	// Path is the location inside the mounted tree. It is never used to
	// locate cached bytes.
	Path string

	Size      uint64
	ParentID  InodeID
	StoreType StoreType
	Kind      Kind

	// Source is the canonical protocol path this inode resolves from.
	// Empty for the root and for local directories.
	Source string

	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastVisitedAt time.Time

	// Lock is true while a fetch is in flight. On startup every persisted
	// true value is stale and cleared via ClearStaleLocks.
	Lock bool
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Kind == KindDirectory
}

// Clone returns a copy safe to hand out from in-memory stores.
func (i *Inode) Clone() *Inode {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Attributes exposed for every entry. Permissions are fixed; there is no
// enforcement beyond the mode.
const (
	FileMode      os.FileMode = 0o444
	DirectoryMode os.FileMode = 0o555
	SymlinkMode   os.FileMode = 0o777
	BlockSize                 = 4096
)

// Attr holds filesystem attributes derived from an Inode.
type Attr struct {
	Ino     uint64
	Size    uint64
	Blocks  uint64
	Mode    os.FileMode
	Kind    Kind
	Nlink   uint32
	UID     uint32
	GID     uint32
	BlkSize uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
}

// Attr builds the attributes for i, owned by uid/gid.
func (i *Inode) Attr(uid, gid uint32) Attr {
	a := Attr{
		Ino:     uint64(i.ID),
		Size:    i.Size,
		Blocks:  (i.Size + 511) / 512,
		Kind:    i.Kind,
		Nlink:   1,
		UID:     uid,
		GID:     gid,
		BlkSize: BlockSize,
		Atime:   i.LastVisitedAt,
		Mtime:   i.UpdatedAt,
		Ctime:   i.UpdatedAt,
		Crtime:  i.CreatedAt,
	}
	switch i.Kind {
	case KindDirectory:
		a.Mode = os.ModeDir | DirectoryMode
		a.Nlink = 2
	case KindSymlink:
		a.Mode = os.ModeSymlink | SymlinkMode
	default:
		a.Mode = FileMode
	}
	return a
}
