package catalog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "cache:\n  dir: " + filepath.ToSlash(filepath.Join(dir, "cache")) + "\n" +
		"catalog:\n  type: sqlite\n  sqlite:\n    path: " + filepath.ToSlash(filepath.Join(dir, "catalog.db")) + "\n" +
		strings.Join(extra, "")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "mantafs", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(Cmd)
	t.Cleanup(func() { root.RemoveCommand(Cmd) })

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", configPath, "catalog"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestAddAndList(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, cfg, "add", "/", "models", "hf://Qwen/", "--offline", "-o", "json")
	require.NoError(t, err)
	_, err = run(t, cfg, "add", "/models", "config.json", "hf://Qwen/Qwen3-8B/config.json", "--offline", "-o", "json")
	require.NoError(t, err)

	out, err := run(t, cfg, "ls", "/models", "-o", "json")
	require.NoError(t, err)

	var entries []entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "config.json", entries[0].Name)
	assert.Equal(t, "/models/config.json", entries[0].Path)
	assert.Equal(t, "file", entries[0].Kind)
	assert.Equal(t, "hf://Qwen/Qwen3-8B/config.json", entries[0].Source)
}

func TestAddIsIdempotent(t *testing.T) {
	cfg := writeTestConfig(t)

	first, err := run(t, cfg, "add", "/", "weights.bin", "s3://bucket/weights.bin", "--offline", "-o", "json")
	require.NoError(t, err)
	second, err := run(t, cfg, "add", "/", "weights.bin", "s3://bucket/weights.bin", "--offline", "-o", "json")
	require.NoError(t, err)

	var a, b []entry
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.Equal(t, a[0].Path, b[0].Path)

	out, err := run(t, cfg, "ls", "-o", "json")
	require.NoError(t, err)
	var all []entry
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all, 1)
}

func TestAddRecordsOriginSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.URL.EscapedPath() != "/org/model/resolve/refs%2Fpr%2F1/weights.bin" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "10")
	}))
	defer srv.Close()

	cfg := writeTestConfig(t, "origins:\n  max_retries: 0\n  hf:\n    endpoint: "+srv.URL+"\n")

	out, err := run(t, cfg, "add", "/", "weights.bin", "hf://org/model/weights.bin:refs/pr/1", "--offline=false", "-o", "json")
	require.NoError(t, err)

	var entries []entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.EqualValues(t, 10, entries[0].Size)
	assert.Equal(t, "hf://org/model/weights.bin:refs/pr/1", entries[0].Source)
}

func TestAddRejectsMissingParent(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, cfg, "add", "/missing", "x", "s3://bucket/x", "--offline", "-o", "json")
	assert.Error(t, err)
}

func TestListEmptyRoot(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "ls", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "No entries.")
}

func TestUnlockStaleForce(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, cfg, "unlock-stale", "--force", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "No fetch locks were set")
}

func TestEntryListRows(t *testing.T) {
	l := entryList{
		{ID: "01", Name: "models", Kind: "directory"},
		{ID: "02", Name: "w.bin", Kind: "file", Size: 2048, Locked: true},
	}
	rows := l.Rows()
	require.Len(t, rows, 2)
	assert.Len(t, l.Headers(), len(rows[0]))
	assert.Equal(t, "-", rows[0][3])
	assert.Equal(t, "2.0 KiB", rows[1][3])
	assert.Equal(t, "yes", rows[1][5])
	assert.Equal(t, "-", rows[1][6])
}
