package s3

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		raw    string
		bucket string
		key    string
	}{
		{"s3://bucket/a/b.bin", "bucket", "a/b.bin"},
		{"s3://bucket/a/b.bin:v7", "bucket", "a/b.bin"},
		{"s3://bucket", "bucket", ""},
		{"s3://bucket/dir/", "bucket", "dir"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, key, err := split(protocolpath.MustParse(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}

	_, _, err := split(protocolpath.Path{Scheme: "s3", Path: "/"})
	assert.True(t, caterrors.IsInvalidFormatError(err))
}

func TestVersionID(t *testing.T) {
	assert.Nil(t, versionID(protocolpath.MustParse("s3://b/k")))
	assert.Equal(t, "v1", *versionID(protocolpath.MustParse("s3://b/k:v1")))
}

func TestMapError(t *testing.T) {
	p := protocolpath.MustParse("s3://b/k")

	notFound := mapError("get object", p, fmt.Errorf("op: %w", &types.NoSuchKey{}))
	assert.ErrorIs(t, notFound, origin.ErrNotFound)
	assert.False(t, origin.IsRetryable(notFound))

	denied := mapError("get object", p, &smithy.GenericAPIError{Code: "AccessDenied"})
	assert.ErrorIs(t, denied, origin.ErrAccessDenied)
	assert.False(t, origin.IsRetryable(denied))

	throttled := mapError("get object", p, &smithy.GenericAPIError{Code: "SlowDown"})
	assert.False(t, errors.Is(throttled, origin.ErrNotFound))
	assert.True(t, origin.IsRetryable(throttled))
}
