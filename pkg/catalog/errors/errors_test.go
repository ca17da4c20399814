package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	t.Run("WithPath", func(t *testing.T) {
		err := NewNotFoundError("/model.bin", "inode")
		assert.Equal(t, "NotFound: inode not found (path: /model.bin)", err.Error())
	})

	t.Run("WithCause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := NewStoreError("create inode", cause)
		assert.Equal(t, "StoreError: create inode: disk full", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("lookup failed: %w", NewNotFoundError("x", "inode"))

	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsStoreError(err))
	assert.Equal(t, ErrNotFound, CodeOf(err))
	assert.Equal(t, ErrorCode(0), CodeOf(errors.New("plain")))
}

func TestErrorCodeString(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrInvalidFormat:     "InvalidFormat",
		ErrAlreadyLocked:     "AlreadyLocked",
		ErrStore:             "StoreError",
		ErrOriginUnavailable: "OriginUnavailable",
		ErrUnsupported:       "Unsupported",
		ErrorCode(99):        "Unknown(99)",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}
