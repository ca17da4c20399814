package catalog

import (
	stderrors "errors"

	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

// Error is re-exported from the errors package for callers that only import
// catalog.
type Error = errors.Error

// ErrorCode is re-exported from the errors package.
type ErrorCode = errors.ErrorCode

const (
	ErrInvalidFormat     = errors.ErrInvalidFormat
	ErrNotFound          = errors.ErrNotFound
	ErrAlreadyExists     = errors.ErrAlreadyExists
	ErrAlreadyLocked     = errors.ErrAlreadyLocked
	ErrStore             = errors.ErrStore
	ErrOriginUnavailable = errors.ErrOriginUnavailable
	ErrUnsupported       = errors.ErrUnsupported
	ErrIsDirectory       = errors.ErrIsDirectory
	ErrNotDirectory      = errors.ErrNotDirectory
)

var errNilInode = stderrors.New("nil inode")

// NewInodeNotFoundError reports a missing inode id.
func NewInodeNotFoundError(id InodeID) *Error {
	return errors.NewNotFoundError(id.String(), "inode")
}

// NewChildNotFoundError reports a missing (parent_id, name) pair.
func NewChildNotFoundError(parentID InodeID, name string) *Error {
	return errors.NewNotFoundError(parentID.String()+"/"+name, "child")
}
