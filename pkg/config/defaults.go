package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/inftyai/mantafs/internal/bytesize"
	"github.com/inftyai/mantafs/internal/telemetry"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/catalog/store/sqlstore"
	"github.com/inftyai/mantafs/pkg/origin"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// Cache defaults are applied before catalog defaults because the embedded
// catalogs live under the cache directory.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyMountDefaults(&cfg.Mount)
	applyCacheDefaults(&cfg.Cache)
	applyCatalogDefaults(&cfg.Catalog, cfg.Cache.Dir)
	cfg.Peers.ApplyDefaults()
	applyOriginsDefaults(&cfg.Origins)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry and Pyroscope defaults.
// Both stay disabled unless enabled explicitly.
func applyTelemetryDefaults(cfg *telemetry.Config) {
	def := telemetry.DefaultConfig()

	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = def.Profiling.Endpoint
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = def.Profiling.ProfileTypes
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyMountDefaults(cfg *MountConfig) {
	if cfg.Root == "" {
		cfg.Root = "/mnt/mantafs"
	}
	if cfg.UID == 0 {
		cfg.UID = 1000
	}
	if cfg.GID == 0 {
		cfg.GID = 1000
	}
	if cfg.EntryTimeout == 0 {
		cfg.EntryTimeout = time.Second
	}
	if cfg.AttrTimeout == 0 {
		cfg.AttrTimeout = time.Second
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Dir == "" {
		cfg.Dir = defaultCacheDir()
	}
	if cfg.Size == 0 {
		cfg.Size = 100 * bytesize.GiB
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 30 * time.Minute
	}
	if cfg.LockWait == 0 {
		cfg.LockWait = 5 * time.Minute
	}
}

// applyCatalogDefaults selects badger under the cache directory when no
// backend is configured.
func applyCatalogDefaults(cfg *store.Config, cacheDir string) {
	if cfg.Type == "" {
		cfg.Type = store.TypeBadger
	}
	cfg.Type = store.Type(strings.ToLower(string(cfg.Type)))

	if cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(cacheDir, "catalog")
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = filepath.Join(cacheDir, "catalog.db")
	}

	if cfg.Type == store.TypePostgres {
		db := sqlstore.Config{Type: sqlstore.DatabaseTypePostgres, Postgres: cfg.Postgres}
		db.ApplyDefaults()
		cfg.Postgres = db.Postgres
	}
}

func applyOriginsDefaults(cfg *OriginsConfig) {
	def := origin.DefaultRetryConfig()
	if cfg.MaxRetries == nil {
		n := def.MaxRetries
		cfg.MaxRetries = &n
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = def.InitialInterval
	}
	if cfg.RetryMaxInterval == 0 {
		cfg.RetryMaxInterval = def.MaxInterval
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
// It is the template written by InitConfig.
func GetDefaultConfig() *Config {
	cfg := &Config{Telemetry: telemetry.DefaultConfig()}
	ApplyDefaults(cfg)
	return cfg
}
