//go:build integration

package sqlstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/catalogtest"
	"github.com/inftyai/mantafs/pkg/catalog/store/sqlstore"
)

// startPostgres starts a throwaway PostgreSQL container, or reuses the
// server named by MANTAFS_TEST_POSTGRES_HOST.
func startPostgres(t *testing.T) sqlstore.PostgresConfig {
	t.Helper()

	cfg := sqlstore.PostgresConfig{
		Database: "mantafs_test",
		User:     "mantafs_test",
		Password: "mantafs_test",
		SSLMode:  "disable",
	}

	if host := os.Getenv("MANTAFS_TEST_POSTGRES_HOST"); host != "" {
		cfg.Host = host
		cfg.Port = 5432
		return cfg
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(cfg.Database),
		tcpostgres.WithUsername(cfg.User),
		tcpostgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg.Host = host
	cfg.Port = port.Int()
	return cfg
}

func TestPostgresConformance(t *testing.T) {
	pg := startPostgres(t)

	catalogtest.RunConformanceSuite(t, func(t *testing.T) catalog.Catalog {
		store, err := sqlstore.New(t.Context(), &sqlstore.Config{
			Type:     sqlstore.DatabaseTypePostgres,
			Postgres: pg,
		})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		// Every test starts from an empty table on the shared server.
		if err := store.DB().Exec(fmt.Sprintf("TRUNCATE TABLE %s", "inodes")).Error; err != nil {
			t.Fatalf("truncate failed: %v", err)
		}
		t.Cleanup(func() {
			store.Close()
		})
		return store
	})
}
