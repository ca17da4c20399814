package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/inftyai/mantafs/internal/bytesize"
	"github.com/inftyai/mantafs/pkg/catalog/store"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", xdg)

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cache.Dir != filepath.Join(xdg, "mantafs") {
		t.Errorf("Expected cache dir under XDG_CACHE_HOME, got %q", cfg.Cache.Dir)
	}
	if cfg.Cache.Size != 100*bytesize.GiB {
		t.Errorf("Expected default size 100GiB, got %v", cfg.Cache.Size)
	}
	if cfg.Cache.FetchTimeout != 30*time.Minute {
		t.Errorf("Expected default fetch timeout 30m, got %v", cfg.Cache.FetchTimeout)
	}
	if cfg.Cache.LockWait != 5*time.Minute {
		t.Errorf("Expected default lock wait 5m, got %v", cfg.Cache.LockWait)
	}
}

func TestApplyDefaults_Catalog(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Dir: "/data/mantafs"}}
	ApplyDefaults(cfg)

	if cfg.Catalog.Type != store.TypeBadger {
		t.Errorf("Expected default catalog badger, got %q", cfg.Catalog.Type)
	}
	if cfg.Catalog.Badger.Path != filepath.Join("/data/mantafs", "catalog") {
		t.Errorf("Expected badger under the cache dir, got %q", cfg.Catalog.Badger.Path)
	}

	cfg = &Config{Catalog: store.Config{Type: "Postgres"}}
	ApplyDefaults(cfg)
	if cfg.Catalog.Type != store.TypePostgres {
		t.Errorf("Expected catalog type normalized to postgres, got %q", cfg.Catalog.Type)
	}
	if cfg.Catalog.Postgres.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Catalog.Postgres.Port)
	}
}

func TestApplyDefaults_Mount(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Mount.Root != "/mnt/mantafs" {
		t.Errorf("Expected default mount root, got %q", cfg.Mount.Root)
	}
	if cfg.Mount.UID != 1000 || cfg.Mount.GID != 1000 {
		t.Errorf("Expected default owner 1000:1000, got %d:%d", cfg.Mount.UID, cfg.Mount.GID)
	}
	if cfg.Mount.AttrTimeout != time.Second {
		t.Errorf("Expected default attr timeout 1s, got %v", cfg.Mount.AttrTimeout)
	}
}

func TestApplyDefaults_Origins(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Origins.MaxRetries == nil || *cfg.Origins.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %v", cfg.Origins.MaxRetries)
	}

	zero := 0
	cfg = &Config{Origins: OriginsConfig{MaxRetries: &zero}}
	ApplyDefaults(cfg)
	if *cfg.Origins.MaxRetries != 0 {
		t.Errorf("Expected explicit max retries 0 to be preserved, got %d", *cfg.Origins.MaxRetries)
	}
	if got := cfg.Origins.RetryConfig().MaxRetries; got != 0 {
		t.Errorf("Expected retry config with 0 retries, got %d", got)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/mantafs.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Mount:           MountConfig{Root: "/models", UID: 7, GID: 8},
		Cache:           CacheConfig{Dir: "/ssd/cache", Size: 10 * bytesize.GiB},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/var/log/mantafs.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Mount.Root != "/models" || cfg.Mount.UID != 7 || cfg.Mount.GID != 8 {
		t.Errorf("Expected explicit mount values to be preserved, got %+v", cfg.Mount)
	}
	if cfg.Cache.Dir != "/ssd/cache" || cfg.Cache.Size != 10*bytesize.GiB {
		t.Errorf("Expected explicit cache values to be preserved, got %+v", cfg.Cache)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}
