//go:build integration

package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// startLocalstack returns an S3 endpoint, reusing LOCALSTACK_ENDPOINT when set.
func startLocalstack(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env: map[string]string{
				"SERVICES":              "s3",
				"DEFAULT_REGION":        "us-east-1",
				"EAGER_SERVICE_LOADING": "1",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4566/tcp"),
				wait.ForHTTP("/_localstack/health").
					WithPort("4566/tcp").
					WithStartupTimeout(60*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func newTestOrigin(t *testing.T) (*Origin, *s3.Client) {
	t.Helper()
	ctx := context.Background()

	o, err := NewFromConfig(ctx, Config{
		Region:          "us-east-1",
		Endpoint:        startLocalstack(t),
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	return o, o.client
}

func putObject(t *testing.T, client *s3.Client, bucket, key, body string) *string {
	t.Helper()
	out, err := client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	return out.VersionId
}

func TestOrigin_Localstack(t *testing.T) {
	ctx := context.Background()
	o, client := newTestOrigin(t)

	bucket := fmt.Sprintf("mantafs-%d", time.Now().UnixNano())
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	putObject(t, client, bucket, "models/qwen/config.json", `{"a":1}`)
	putObject(t, client, bucket, "models/qwen/shards/0.bin", "shard")
	putObject(t, client, bucket, "README", "hi")

	t.Run("Fetch", func(t *testing.T) {
		rc, size, err := o.Fetch(ctx, protocolpath.MustParse("s3://"+bucket+"/models/qwen/config.json"))
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != `{"a":1}` || size != 7 {
			t.Errorf("Fetch = %q (%d)", data, size)
		}
	})

	t.Run("FetchMissing", func(t *testing.T) {
		_, _, err := o.Fetch(ctx, protocolpath.MustParse("s3://"+bucket+"/nope"))
		if !origin.IsNotFound(err) {
			t.Errorf("Fetch missing error = %v, want not found", err)
		}
	})

	t.Run("StatFileAndDir", func(t *testing.T) {
		info, err := o.Stat(ctx, protocolpath.MustParse("s3://"+bucket+"/README"))
		if err != nil || info.Dir || info.Size != 2 {
			t.Errorf("Stat file = %+v, %v", info, err)
		}
		info, err = o.Stat(ctx, protocolpath.MustParse("s3://"+bucket+"/models/qwen"))
		if err != nil || !info.Dir {
			t.Errorf("Stat dir = %+v, %v", info, err)
		}
		if _, err := o.Stat(ctx, protocolpath.MustParse("s3://"+bucket+"/absent")); !origin.IsNotFound(err) {
			t.Errorf("Stat absent error = %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		entries, err := o.List(ctx, protocolpath.MustParse("s3://"+bucket+"/models/qwen"))
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		got := map[string]bool{}
		for _, e := range entries {
			got[e.Name] = e.Dir
		}
		if len(got) != 2 || got["config.json"] || !got["shards"] {
			t.Errorf("List = %+v", entries)
		}
	})
}
