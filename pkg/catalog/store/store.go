// Package store selects a catalog backend at startup.
//
// The set of backends is closed: memory, badger, sqlite and postgres.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/store/badger"
	"github.com/inftyai/mantafs/pkg/catalog/store/memory"
	"github.com/inftyai/mantafs/pkg/catalog/store/sqlstore"
	"github.com/inftyai/mantafs/pkg/metrics"
)

// Type names a catalog backend.
type Type string

const (
	TypeMemory   Type = "memory"
	TypeBadger   Type = "badger"
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"
)

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Config selects and configures the catalog backend.
type Config struct {
	Type     Type                    `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger sqlite postgres"`
	Badger   BadgerConfig            `mapstructure:"badger" yaml:"badger"`
	SQLite   sqlstore.SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres sqlstore.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`

	// Shared marks a catalog used by several mounts at once. Open then
	// leaves fetch locks alone, since they may belong to a live mount, and
	// stale ones are cleared with "catalog unlock-stale" instead.
	Shared bool `mapstructure:"shared" yaml:"shared"`
}

type opener func(ctx context.Context, cfg Config) (catalog.Catalog, error)

var openers = map[Type]opener{
	TypeMemory: func(ctx context.Context, cfg Config) (catalog.Catalog, error) {
		return memory.New(), nil
	},
	TypeBadger: func(ctx context.Context, cfg Config) (catalog.Catalog, error) {
		return badger.NewWithPath(ctx, cfg.Badger.Path)
	},
	TypeSQLite: func(ctx context.Context, cfg Config) (catalog.Catalog, error) {
		return sqlstore.New(ctx, &sqlstore.Config{Type: sqlstore.DatabaseTypeSQLite, SQLite: cfg.SQLite})
	},
	TypePostgres: func(ctx context.Context, cfg Config) (catalog.Catalog, error) {
		return sqlstore.New(ctx, &sqlstore.Config{Type: sqlstore.DatabaseTypePostgres, Postgres: cfg.Postgres})
	},
}

// OpenOption adjusts Open.
type OpenOption func(*openOptions)

type openOptions struct {
	keepLocks bool
}

// KeepLocks skips clearing fetch locks. Tools that open the catalog while
// a mount may be running use it so they do not release that mount's locks.
func KeepLocks() OpenOption {
	return func(o *openOptions) { o.keepLocks = true }
}

// Open opens the configured backend, creates the root inode if needed and,
// unless the catalog is shared, clears locks left behind by a previous
// process. When metrics are enabled the returned catalog is instrumented.
func Open(ctx context.Context, cfg Config, opts ...OpenOption) (catalog.Catalog, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	open, ok := openers[Type(strings.ToLower(string(cfg.Type)))]
	if !ok {
		return nil, fmt.Errorf("unknown catalog type %q", cfg.Type)
	}

	c, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s catalog: %w", cfg.Type, err)
	}

	if _, err := catalog.EnsureRoot(ctx, c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create catalog root: %w", err)
	}

	if cfg.Shared && !o.keepLocks {
		logger.Info("Shared catalog, keeping existing fetch locks")
	}
	if !o.keepLocks && !cfg.Shared {
		n, err := c.ClearStaleLocks(ctx)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("clear stale locks: %w", err)
		}
		if n > 0 {
			logger.Warn("Cleared stale fetch locks from previous run", logger.KeyCount, n)
		}
	}

	logger.Info("Catalog ready", logger.KeyStoreType, string(cfg.Type))
	return Instrument(c, string(cfg.Type), metrics.NewCatalogMetrics()), nil
}
