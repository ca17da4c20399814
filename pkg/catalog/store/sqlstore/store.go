// Package sqlstore implements the catalog on a relational database through
// GORM. SQLite is the embedded engine; PostgreSQL lets several mounts share
// one catalog.
//
// Fetch locks carry no owner. A mount sharing the catalog must not clear
// them at startup (catalog.shared), or it would release locks held by the
// other mounts.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
)

var (
	colID            = clause.Column{Name: "id"}
	colParentID      = clause.Column{Name: "parent_id"}
	colLock          = clause.Column{Name: "lock"}
	colLastVisitedAt = clause.Column{Name: "last_visited_at"}
)

// Store is a catalog.Catalog backed by GORM.
type Store struct {
	db     *gorm.DB
	config *Config
	now    func() time.Time
}

var _ catalog.Catalog = (*Store)(nil)

// New opens the database described by config and migrates the schema.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(config.SQLite.DSN())

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	case DatabaseTypeSQLite:
		// A single connection serialises writers and keeps ":memory:"
		// databases from being private to each pooled connection.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.WithContext(ctx).AutoMigrate(&inodeModel{}); err != nil {
		return nil, fmt.Errorf("failed to run catalog migration: %w", err)
	}

	logger.Debug("Opened SQL catalog", "database", string(config.Type))
	return &Store{db: db, config: config, now: time.Now}, nil
}

// NewSQLite opens an SQLite catalog at path.
func NewSQLite(ctx context.Context, path string) (*Store, error) {
	return New(ctx, &Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: path}})
}

// DB returns the underlying GORM connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if caterrors.CodeOf(err) != 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return caterrors.NewStoreError(op, err)
}

func byID(id catalog.InodeID) clause.Eq {
	return clause.Eq{Column: colID, Value: int64(id)}
}

func getModel(db *gorm.DB, id catalog.InodeID) (*inodeModel, error) {
	var m inodeModel
	err := db.Where(byID(id)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.NewInodeNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get returns the inode with the given id.
func (s *Store) Get(ctx context.Context, id catalog.InodeID) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := getModel(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, wrapStoreError("get inode", err)
	}
	return m.toInode(), nil
}

// Lookup uses the (parent_id, name) unique index.
func (s *Store) Lookup(ctx context.Context, parentID catalog.InodeID, name string) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m inodeModel
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: colParentID, Value: int64(parentID)}).
		Where(clause.Eq{Column: clause.Column{Name: "name"}, Value: name}).
		Where(clause.Neq{Column: colID, Value: int64(parentID)}).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.NewChildNotFoundError(parentID, name)
	}
	if err != nil {
		return nil, wrapStoreError("lookup", err)
	}
	return m.toInode(), nil
}

// Create inserts the row; the primary key and the (parent_id, name) index
// reject duplicates.
func (s *Store) Create(ctx context.Context, inode *catalog.Inode) (catalog.InodeID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := catalog.ValidateNew(inode); err != nil {
		return 0, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inode.ID != catalog.RootID {
			parent, err := getModel(tx, inode.ParentID)
			if err != nil {
				return err
			}
			if catalog.Kind(parent.Kind) != catalog.KindDirectory {
				return caterrors.NewNotDirectoryError(parent.Path)
			}
		}

		if err := tx.Create(toModel(inode)).Error; err != nil {
			if isUniqueConstraintError(err) {
				return caterrors.NewAlreadyExistsError(inode.Path)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, wrapStoreError("create inode", err)
	}
	return inode.ID, nil
}

// Touch advances last_visited_at with a conditional update, so a concurrent
// later touch is never overwritten by an earlier one.
func (s *Store) Touch(ctx context.Context, id catalog.InodeID) {
	now := s.now()
	err := s.db.WithContext(ctx).
		Model(&inodeModel{}).
		Where(byID(id)).
		Where(clause.Lt{Column: colLastVisitedAt, Value: now}).
		Update("last_visited_at", now).Error
	if err != nil {
		logger.WarnCtx(ctx, "Touch failed", logger.KeyInodeID, uint64(id), logger.KeyError, err)
	}
}

// TryLock is a single UPDATE ... WHERE id = ? AND lock = false. The affected
// row count tells whether this caller won.
func (s *Store) TryLock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&inodeModel{}).
		Where(byID(id)).
		Where(clause.Eq{Column: colLock, Value: false}).
		Update("lock", true)
	if result.Error != nil {
		return wrapStoreError("try lock", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	m, err := getModel(s.db.WithContext(ctx), id)
	if err != nil {
		return wrapStoreError("try lock", err)
	}
	return caterrors.NewAlreadyLockedError(m.Path)
}

// Unlock clears the lock. Missing rows are ignored.
func (s *Store) Unlock(ctx context.Context, id catalog.InodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Model(&inodeModel{}).
		Where(byID(id)).
		Update("lock", false).Error
	return wrapStoreError("unlock", err)
}

// ListChildren returns the children of parentID ordered by name.
func (s *Store) ListChildren(ctx context.Context, parentID catalog.InodeID) ([]*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if _, err := getModel(db, parentID); err != nil {
		return nil, wrapStoreError("list children", err)
	}

	var models []inodeModel
	err := db.
		Where(clause.Eq{Column: colParentID, Value: int64(parentID)}).
		Where(clause.Neq{Column: colID, Value: int64(parentID)}).
		Order("name").
		Find(&models).Error
	if err != nil {
		return nil, wrapStoreError("list children", err)
	}

	children := make([]*catalog.Inode, 0, len(models))
	for i := range models {
		children = append(children, models[i].toInode())
	}
	return children, nil
}

// SetSize records the size of a fetched object.
func (s *Store) SetSize(ctx context.Context, id catalog.InodeID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&inodeModel{}).
		Where(byID(id)).
		Updates(map[string]any{"size": int64(size), "updated_at": s.now()})
	if result.Error != nil {
		return wrapStoreError("set size", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.NewInodeNotFoundError(id)
	}
	return nil
}

// ClearStaleLocks resets every persisted lock.
func (s *Store) ClearStaleLocks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).
		Model(&inodeModel{}).
		Where(clause.Eq{Column: colLock, Value: true}).
		Update("lock", false)
	if result.Error != nil {
		return 0, wrapStoreError("clear stale locks", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Healthcheck pings the database.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return caterrors.NewStoreError("healthcheck", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return caterrors.NewStoreError("healthcheck", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
