// Package s3 implements an origin over S3 and S3-compatible object stores
// (Aliyun OSS and GCS through their interoperability endpoints).
//
// A protocol path s3://bucket/some/key:version maps to Bucket "bucket", Key
// "some/key" and VersionId "version".
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// Config holds configuration for an S3-compatible origin.
type Config struct {
	// Region is the AWS region (optional, uses SDK default if empty).
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK default chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// Origin is an S3-backed origin.Origin and origin.Lister.
type Origin struct {
	client *s3.Client
}

var (
	_ origin.Origin = (*Origin)(nil)
	_ origin.Lister = (*Origin)(nil)
)

// New wraps an existing client.
func New(client *s3.Client) *Origin {
	return &Origin{client: client}
}

// NewFromConfig builds a client from cfg.
func NewFromConfig(ctx context.Context, cfg Config) (*Origin, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return New(client), nil
}

// split returns bucket and key. The key is "" for the bucket root.
func split(p protocolpath.Path) (bucket, key string, err error) {
	bucket, key, _ = strings.Cut(strings.TrimPrefix(p.Path, "/"), "/")
	if bucket == "" {
		return "", "", caterrors.NewInvalidFormatError(p.String(), "missing bucket")
	}
	return bucket, strings.TrimSuffix(key, "/"), nil
}

func versionID(p protocolpath.Path) *string {
	if p.Version == "" {
		return nil
	}
	return aws.String(p.Version)
}

// Fetch streams the object body.
func (o *Origin) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	bucket, key, err := split(p)
	if err != nil {
		return nil, 0, err
	}
	if key == "" {
		return nil, 0, caterrors.NewIsDirectoryError(p.String())
	}

	resp, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(key),
		VersionId: versionID(p),
	})
	if err != nil {
		return nil, 0, mapError("get object", p, err)
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

// Stat heads the object. A key with no object but with children under
// key/ is reported as a directory.
func (o *Origin) Stat(ctx context.Context, p protocolpath.Path) (origin.ObjectInfo, error) {
	bucket, key, err := split(p)
	if err != nil {
		return origin.ObjectInfo{}, err
	}
	if key == "" {
		return origin.ObjectInfo{Dir: true}, nil
	}

	resp, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:    aws.String(bucket),
		Key:       aws.String(key),
		VersionId: versionID(p),
	})
	if err == nil {
		info := origin.ObjectInfo{
			ETag:    strings.Trim(aws.ToString(resp.ETag), `"`),
			Version: aws.ToString(resp.VersionId),
		}
		if resp.ContentLength != nil {
			info.Size = *resp.ContentLength
		}
		return info, nil
	}
	if !isNotFoundError(err) {
		return origin.ObjectInfo{}, mapError("head object", p, err)
	}

	list, err := o.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return origin.ObjectInfo{}, mapError("list objects", p, err)
	}
	if len(list.Contents) == 0 && len(list.CommonPrefixes) == 0 {
		return origin.ObjectInfo{}, fmt.Errorf("%w: %s", origin.ErrNotFound, p)
	}
	return origin.ObjectInfo{Dir: true}, nil
}

// List returns the immediate children of dir using a "/" delimiter.
func (o *Origin) List(ctx context.Context, dir protocolpath.Path) ([]origin.Entry, error) {
	bucket, key, err := split(dir)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if key != "" {
		prefix = key + "/"
	}

	var entries []origin.Entry
	pages := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, mapError("list objects", dir, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				entries = append(entries, origin.Entry{Name: name, Dir: true})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			entries = append(entries, origin.Entry{Name: name, Size: aws.ToInt64(obj.Size)})
		}
	}

	if len(entries) == 0 && key != "" {
		return nil, fmt.Errorf("%w: %s", origin.ErrNotFound, dir)
	}
	return entries, nil
}

func mapError(op string, p protocolpath.Path, err error) error {
	switch {
	case isNotFoundError(err):
		return fmt.Errorf("%w: %s", origin.ErrNotFound, p)
	case isAccessDenied(err):
		return fmt.Errorf("%w: s3 %s %s: %v", origin.ErrAccessDenied, op, p, err)
	default:
		return fmt.Errorf("s3 %s %s: %w", op, p, err)
	}
}

func isNotFoundError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "NoSuchVersion", "404":
			return true
		}
	}
	return false
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "403":
			return true
		}
	}
	return false
}
