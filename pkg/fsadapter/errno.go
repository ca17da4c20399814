package fsadapter

import (
	"context"
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
)

// Errno maps an adapter error to the errno returned to the kernel. nil maps
// to 0. Unknown errors are I/O failures.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return unix.EINTR
	}

	switch caterrors.CodeOf(err) {
	case caterrors.ErrNotFound:
		return unix.ENOENT
	case caterrors.ErrUnsupported:
		return unix.ENOTSUP
	case caterrors.ErrIsDirectory:
		return unix.EISDIR
	case caterrors.ErrNotDirectory:
		return unix.ENOTDIR
	case caterrors.ErrInvalidFormat:
		return unix.EINVAL
	case caterrors.ErrAlreadyExists:
		return unix.EEXIST
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// ErrnoName returns the symbolic name of e, such as "ENOENT".
func ErrnoName(e syscall.Errno) string {
	if e == 0 {
		return ""
	}
	if name := unix.ErrnoName(e); name != "" {
		return name
	}
	return "EIO"
}
