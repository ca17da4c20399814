// Package errors provides error types and error codes shared by the catalog,
// the resolver and the filesystem adapter. It is a leaf package with no
// internal dependencies so that protocolpath, catalog store implementations
// and origin clients can all import it without causing circular imports.
//
// Import graph: errors <- protocolpath <- catalog <- store implementations
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrInvalidFormat indicates a malformed protocol path. Never retried.
	ErrInvalidFormat ErrorCode = iota + 1

	// ErrNotFound indicates there is no catalog entry or origin object.
	ErrNotFound

	// ErrAlreadyExists indicates a create collided with an existing row,
	// either on the inode id or on the (parent_id, name) index.
	ErrAlreadyExists

	// ErrAlreadyLocked indicates another fetcher holds the inode lock.
	// It is transient and handled inside the resolver.
	ErrAlreadyLocked

	// ErrStore indicates a catalog backend failure.
	ErrStore

	// ErrOriginUnavailable indicates both peers and the origin failed.
	ErrOriginUnavailable

	// ErrUnsupported indicates an operation that is intentionally not
	// implemented, such as mkdir.
	ErrUnsupported

	// ErrIsDirectory indicates a data operation on a directory.
	ErrIsDirectory

	// ErrNotDirectory indicates a directory operation on a non-directory.
	ErrNotDirectory
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidFormat:
		return "InvalidFormat"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrAlreadyLocked:
		return "AlreadyLocked"
	case ErrStore:
		return "StoreError"
	case ErrOriginUnavailable:
		return "OriginUnavailable"
	case ErrUnsupported:
		return "Unsupported"
	case ErrIsDirectory:
		return "IsDirectory"
	case ErrNotDirectory:
		return "NotDirectory"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// Error is a coded error returned by the catalog and the layers above it.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewInvalidFormatError creates an InvalidFormat error for a raw protocol path.
func NewInvalidFormatError(raw, reason string) *Error {
	return &Error{
		Code:    ErrInvalidFormat,
		Message: reason,
		Path:    raw,
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path, resourceType string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Path:    path,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *Error {
	return &Error{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewAlreadyLockedError creates an AlreadyLocked error.
func NewAlreadyLockedError(path string) *Error {
	return &Error{
		Code:    ErrAlreadyLocked,
		Message: "fetch already in progress",
		Path:    path,
	}
}

// NewStoreError wraps a backend failure.
func NewStoreError(op string, err error) *Error {
	return &Error{
		Code:    ErrStore,
		Message: op,
		Err:     err,
	}
}

// NewOriginUnavailableError creates an OriginUnavailable error.
func NewOriginUnavailableError(source string, err error) *Error {
	return &Error{
		Code:    ErrOriginUnavailable,
		Message: "peers and origin failed",
		Path:    source,
		Err:     err,
	}
}

// NewUnsupportedError creates an Unsupported error.
func NewUnsupportedError(operation string) *Error {
	return &Error{
		Code:    ErrUnsupported,
		Message: fmt.Sprintf("%s is not supported", operation),
	}
}

// NewIsDirectoryError creates an IsDirectory error.
func NewIsDirectoryError(path string) *Error {
	return &Error{
		Code:    ErrIsDirectory,
		Message: "is a directory",
		Path:    path,
	}
}

// NewNotDirectoryError creates a NotDirectory error.
func NewNotDirectoryError(path string) *Error {
	return &Error{
		Code:    ErrNotDirectory,
		Message: "not a directory",
		Path:    path,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsInvalidFormatError returns true if the error is an InvalidFormat error.
func IsInvalidFormatError(err error) bool { return CodeOf(err) == ErrInvalidFormat }

// IsNotFoundError returns true if the error is a NotFound error.
func IsNotFoundError(err error) bool { return CodeOf(err) == ErrNotFound }

// IsAlreadyExistsError returns true if the error is an AlreadyExists error.
func IsAlreadyExistsError(err error) bool { return CodeOf(err) == ErrAlreadyExists }

// IsAlreadyLockedError returns true if the error is an AlreadyLocked error.
func IsAlreadyLockedError(err error) bool { return CodeOf(err) == ErrAlreadyLocked }

// IsStoreError returns true if the error is a catalog backend error.
func IsStoreError(err error) bool { return CodeOf(err) == ErrStore }

// IsOriginUnavailableError returns true if the error is an OriginUnavailable error.
func IsOriginUnavailableError(err error) bool { return CodeOf(err) == ErrOriginUnavailable }

// IsUnsupportedError returns true if the error is an Unsupported error.
func IsUnsupportedError(err error) bool { return CodeOf(err) == ErrUnsupported }

// IsIsDirectoryError returns true if the error is an IsDirectory error.
func IsIsDirectoryError(err error) bool { return CodeOf(err) == ErrIsDirectory }

// IsNotDirectoryError returns true if the error is a NotDirectory error.
func IsNotDirectoryError(err error) bool { return CodeOf(err) == ErrNotDirectory }
