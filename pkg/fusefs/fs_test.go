package fusefs

import (
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/inftyai/mantafs/pkg/catalog"
)

func TestFillAttr(t *testing.T) {
	now := time.Unix(1735689600, 500)
	inode := &catalog.Inode{
		ID:            0xabc,
		Kind:          catalog.KindFile,
		Size:          1025,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastVisitedAt: now.Add(time.Hour),
	}

	var out fuse.Attr
	fillAttr(inode.Attr(1000, 1000), &out)

	if out.Ino != 0xabc {
		t.Errorf("Ino = %#x, want 0xabc", out.Ino)
	}
	if out.Mode != syscall.S_IFREG|0o444 {
		t.Errorf("Mode = %o, want %o", out.Mode, syscall.S_IFREG|0o444)
	}
	if out.Size != 1025 || out.Blocks != 3 {
		t.Errorf("Size/Blocks = %d/%d, want 1025/3", out.Size, out.Blocks)
	}
	if out.Uid != 1000 || out.Gid != 1000 {
		t.Errorf("owner = %d:%d, want 1000:1000", out.Uid, out.Gid)
	}
	if out.Atime != uint64(now.Add(time.Hour).Unix()) {
		t.Errorf("Atime = %d, want last visit", out.Atime)
	}
	if out.Mtime != uint64(now.Unix()) || out.Mtimensec != 500 {
		t.Errorf("Mtime = %d.%d, want %d.500", out.Mtime, out.Mtimensec, now.Unix())
	}

	dir := catalog.NewRoot(now)
	fillAttr(dir.Attr(0, 0), &out)
	if out.Mode != syscall.S_IFDIR|0o555 {
		t.Errorf("directory Mode = %o", out.Mode)
	}
	if out.Nlink != 2 {
		t.Errorf("directory Nlink = %d, want 2", out.Nlink)
	}
}

func TestFileType(t *testing.T) {
	tests := map[catalog.Kind]uint32{
		catalog.KindFile:      syscall.S_IFREG,
		catalog.KindDirectory: syscall.S_IFDIR,
		catalog.KindSymlink:   syscall.S_IFLNK,
	}
	for kind, want := range tests {
		if got := fileType(kind); got != want {
			t.Errorf("fileType(%s) = %o, want %o", kind, got, want)
		}
	}
}

func TestStatfs(t *testing.T) {
	st := &unix.Statfs_t{Bsize: 4096, Blocks: 1000, Bfree: 600, Bavail: 500, Files: 10, Ffree: 5}

	out := statfs(st, 0)
	if out.Blocks != 1000 || out.Bavail != 500 || out.Bsize != 4096 {
		t.Errorf("uncapped statfs = %+v", out)
	}

	out = statfs(st, 400*4096)
	if out.Blocks != 400 || out.Bfree != 400 || out.Bavail != 400 {
		t.Errorf("capped statfs = %+v, want 400 blocks", out)
	}

	out = statfs(st, 2000*4096)
	if out.Blocks != 1000 {
		t.Errorf("capacity above disk size: Blocks = %d, want 1000", out.Blocks)
	}
}

func TestMountRequiresMountpoint(t *testing.T) {
	if _, err := Mount(t.Context(), "", nil, Options{}); err == nil {
		t.Fatal("expected error for empty mountpoint")
	}
}
