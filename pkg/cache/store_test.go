//go:build integration

package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/inftyai/mantafs/pkg/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("NewWithPath failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tmpFiles(t *testing.T, s *Store) []string {
	t.Helper()
	var out []string
	_ = filepath.WalkDir(s.Dir(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, tmpSuffix) {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := catalog.InodeID(0xabcdef0123456789)

	n, err := s.Put(ctx, id, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n != 11 {
		t.Errorf("Put wrote %d bytes, want 11", n)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("Get returned %q", got)
	}

	want := filepath.Join(s.Dir(), "objects", "ab", "abcdef0123456789")
	if s.Path(id) != want {
		t.Errorf("Path = %q, want %q", s.Path(id), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("object missing on disk: %v", err)
	}
	if files := tmpFiles(t, s); len(files) != 0 {
		t.Errorf("temp files left behind: %v", files)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), 42); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get error = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.Stat(context.Background(), 42); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Stat error = %v, want ErrObjectNotFound", err)
	}
	if s.Exists(context.Background(), 42) {
		t.Error("Exists returned true for a missing object")
	}
}

func TestStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := catalog.InodeID(7)

	if _, err := s.Put(ctx, id, strings.NewReader("0123456789")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	tests := []struct {
		name   string
		offset int64
		length int
		want   string
	}{
		{"head", 0, 4, "0123"},
		{"middle", 3, 3, "345"},
		{"clamped", 8, 10, "89"},
		{"at end", 10, 5, ""},
		{"past end", 20, 5, ""},
		{"zero length", 2, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadAt(ctx, id, tt.offset, tt.length)
			if err != nil {
				t.Fatalf("ReadAt failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ReadAt(%d, %d) = %q, want %q", tt.offset, tt.length, got, tt.want)
			}
		})
	}

	if _, err := s.ReadAt(ctx, id, -1, 1); err == nil {
		t.Error("ReadAt with negative offset should fail")
	}
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), f.after)
	f.after -= n
	return n, nil
}

func TestStore_FailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := catalog.InodeID(99)

	if _, err := s.Put(ctx, id, &failingReader{after: 1024}); err == nil {
		t.Fatal("Put should fail")
	}
	if s.Exists(ctx, id) {
		t.Error("failed Put left a visible object")
	}
	if files := tmpFiles(t, s); len(files) != 0 {
		t.Errorf("failed Put left temp files: %v", files)
	}
}

func TestStore_CancelledPut(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Put(ctx, 5, strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put error = %v, want context.Canceled", err)
	}
	if s.Exists(context.Background(), 5) {
		t.Error("cancelled Put left an object")
	}
}

func TestStore_ConcurrentPutSameID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := catalog.InodeID(1234)
	payload := bytes.Repeat([]byte("m"), 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, id, bytes.NewReader(payload)); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("content mismatch after concurrent Puts")
	}
}

func TestStore_ListUsageAndRemoveTemp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []catalog.InodeID{300, 2, 0xff00000000000000} {
		if _, err := s.Put(ctx, id, strings.NewReader("abc")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	stale := filepath.Join(filepath.Dir(s.Path(2)), ".0000000000000002.dead"+tmpSuffix)
	if err := os.WriteFile(stale, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []catalog.InodeID{2, 300, 0xff00000000000000}
	if len(ids) != len(want) {
		t.Fatalf("List = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("List[%d] = %v, want %v", i, ids[i], want[i])
		}
	}

	usage, err := s.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage != 9 {
		t.Errorf("Usage = %d, want 9", usage)
	}

	removed, err := s.RemoveTemp(ctx)
	if err != nil {
		t.Fatalf("RemoveTemp failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("RemoveTemp removed %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file still present")
	}
}

func TestStore_Open(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Put(ctx, 11, strings.NewReader("streamed")); err != nil {
		t.Fatal(err)
	}

	f, size, err := s.Open(ctx, 11)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if size != 8 {
		t.Errorf("size = %d, want 8", size)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "streamed" {
		t.Errorf("read %q", data)
	}
}

func TestStore_ClosedOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Close()

	if _, err := s.Put(ctx, 1, strings.NewReader("x")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Put after Close: %v", err)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Get after Close: %v", err)
	}
	if _, err := s.List(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("List after Close: %v", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("HealthCheck after Close: %v", err)
	}
}

func TestStore_InvalidDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty dir should fail")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWithPath(file); err == nil {
		t.Error("file as cache dir should fail")
	}
}

func BenchmarkPut(b *testing.B) {
	s, err := NewWithPath(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	data := bytes.Repeat([]byte("x"), 64*1024)
	ctx := context.Background()

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Put(ctx, catalog.InodeID(i+2), bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
}
