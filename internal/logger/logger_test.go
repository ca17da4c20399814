package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and restores the
// previous writer, level and format on cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	prevOut, prevColor := output, useColor
	output, useColor = buf, false
	mu.Unlock()
	prevLevel := GetLevel()
	prevFormat, _ := currentFormat.Load().(string)
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = prevOut, prevColor
		mu.Unlock()
		SetLevel(prevLevel.String())
		SetFormat(prevFormat)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"d-msg", "i-msg", "w-msg", "e-msg"}, nil},
		{"INFO", []string{"i-msg", "w-msg", "e-msg"}, []string{"d-msg"}},
		{"WARN", []string{"w-msg", "e-msg"}, []string{"d-msg", "i-msg"}},
		{"ERROR", []string{"e-msg"}, []string{"d-msg", "i-msg", "w-msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("d-msg")
			Info("i-msg")
			Warn("w-msg")
			Error("e-msg")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	captureOutput(t)

	SetLevel("warning")
	assert.Equal(t, LevelWarn, GetLevel())

	SetLevel("debug")
	assert.Equal(t, LevelDebug, GetLevel())

	SetLevel("verbose")
	assert.Equal(t, LevelDebug, GetLevel(), "unknown level must be ignored")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("text")
	SetLevel("INFO")

	Info("resolved", KeyInodeID, uint64(42), KeyTier, "peer", KeyName, "model 1.bin", KeyCacheHit, true)

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "resolved")
	assert.Contains(t, line, "inode_id=42")
	assert.Contains(t, line, "tier=peer")
	assert.Contains(t, line, `name="model 1.bin"`)
	assert.Contains(t, line, "cache_hit=true")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestTextFormatGroupsAndWith(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("text")
	SetLevel("INFO")

	With(KeyPeer, "10.0.0.2:7070").WithGroup("fetch").Info("served", KeySize, 10)

	line := buf.String()
	assert.Contains(t, line, "peer=10.0.0.2:7070")
	assert.Contains(t, line, "fetch.size=10")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")
	SetLevel("INFO")

	Info("fetched", KeySource, "hf://Qwen/Qwen3-8B/config.json", KeySize, 1024)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "fetched", rec["msg"])
	assert.Equal(t, "hf://Qwen/Qwen3-8B/config.json", rec["source"])
	assert.EqualValues(t, 1024, rec["size"])
}

func TestFormatSwitching(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")

	SetFormat("json")
	Info("one")
	SetFormat("text")
	Info("two")
	SetFormat("yaml")
	Info("three")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, json.Valid([]byte(lines[0])))
	assert.False(t, json.Valid([]byte(lines[1])))
	assert.False(t, json.Valid([]byte(lines[2])), "unknown format keeps text")
}

func TestContextLogging(t *testing.T) {
	t.Run("WithLogContext", func(t *testing.T) {
		buf := captureOutput(t)
		SetFormat("text")
		SetLevel("DEBUG")

		lc := NewLogContext("READ", 42).WithCaller(1234, 1000).WithTrace("abc", "def")
		ctx := WithContext(context.Background(), lc)

		DebugCtx(ctx, "read served", KeyOffset, 0)

		line := buf.String()
		assert.Contains(t, line, "trace_id=abc")
		assert.Contains(t, line, "span_id=def")
		assert.Contains(t, line, "operation=READ")
		assert.Contains(t, line, "inode_id=42")
		assert.Contains(t, line, "pid=1234")
		assert.Contains(t, line, "uid=1000")
		assert.Contains(t, line, "offset=0")
	})

	t.Run("WithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)
		SetFormat("text")
		SetLevel("INFO")

		InfoCtx(context.Background(), "plain")
		WarnCtx(context.Background(), "warned")
		ErrorCtx(context.Background(), "failed")

		out := buf.String()
		assert.Contains(t, out, "plain")
		assert.Contains(t, out, "warned")
		assert.Contains(t, out, "failed")
		assert.NotContains(t, out, "operation=")
	})
}

func TestLogContext(t *testing.T) {
	lc := NewLogContext("LOOKUP", 7)
	assert.Equal(t, "LOOKUP", lc.Operation)
	assert.Equal(t, uint64(7), lc.InodeID)
	assert.False(t, lc.StartTime.IsZero())

	c := lc.WithCaller(1, 2)
	assert.Zero(t, lc.PID, "WithCaller must not modify the receiver")
	assert.Equal(t, uint32(1), c.PID)
	assert.Equal(t, uint32(2), c.UID)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Nil(t, nilCtx.WithTrace("a", "b"))
	assert.Zero(t, nilCtx.DurationMs())

	assert.Nil(t, FromContext(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Nil(t, FromContext(nil))

	lc.StartTime = time.Now().Add(-50 * time.Millisecond)
	assert.GreaterOrEqual(t, lc.DurationMs(), 50.0)
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, KeyInodeID, InodeID(5).Key)
	assert.Equal(t, uint64(5), InodeID(5).Value.Uint64())
	assert.Equal(t, "s3://b/k", Source("s3://b/k").Value.String())
	assert.Equal(t, "origin", Tier("origin").Value.String())
	assert.Equal(t, KeyPeer, Peer("p:1").Key)
	assert.Equal(t, 1.5, DurationMs(1.5).Value.Float64())

	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.True(t, Err(nil).Equal(Err(nil)))
	assert.Empty(t, Err(nil).Key)
}

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("text")
	SetLevel("INFO")

	const goroutines, perG = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				Info("concurrent", "g", g, "i", i)
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, goroutines*perG)
	for _, l := range lines {
		assert.Contains(t, l, "concurrent")
	}
}

func TestInit(t *testing.T) {
	captureOutput(t)

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mantafs.log")
		require.NoError(t, Init(Config{Level: "INFO", Format: "json", Output: path}))
		Info("to file")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"to file"`)
	})

	t.Run("BadPath", func(t *testing.T) {
		err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
		assert.Error(t, err)
	})

	t.Run("WithWriter", func(t *testing.T) {
		var buf bytes.Buffer
		InitWithWriter(&buf, "WARN", "text", false)
		Info("hidden")
		Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func BenchmarkLogDisabled(b *testing.B) {
	InitWithWriter(new(bytes.Buffer), "ERROR", "text", false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Debug("disabled", KeyInodeID, uint64(i))
	}
}

func BenchmarkLogText(b *testing.B) {
	InitWithWriter(new(bytes.Buffer), "INFO", "text", false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("bench", KeyInodeID, uint64(i), KeyTier, "local")
	}
}

func BenchmarkLogCtx(b *testing.B) {
	InitWithWriter(new(bytes.Buffer), "INFO", "json", false)
	ctx := WithContext(context.Background(), NewLogContext("READ", 1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InfoCtx(ctx, "bench", KeyOffset, i)
	}
}
