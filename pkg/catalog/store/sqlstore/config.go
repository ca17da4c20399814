package sqlstore

import (
	"errors"
	"fmt"
	"time"
)

// DatabaseType selects the relational engine.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig configures the embedded engine.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps it in memory.
	Path string `mapstructure:"path" yaml:"path"`

	// BusyTimeout is how long a writer waits for another process holding
	// the database before failing.
	// Default: 5s
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout,omitempty"`
}

// DSN returns the driver connection string. File databases use WAL so a
// CLI can read while a mount writes.
func (c *SQLiteConfig) DSN() string {
	busy := fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds())
	if c.Path == ":memory:" {
		return "file::memory:?" + busy
	}
	return c.Path + "?_pragma=journal_mode(WAL)&" + busy
}

// PostgresConfig configures a shared PostgreSQL catalog.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN returns the libpq keyword/value connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += " sslmode=" + c.SSLMode
	}
	return dsn
}

// Config selects one engine and carries its settings.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills unset fields for the selected engine.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.BusyTimeout == 0 {
			c.SQLite.BusyTimeout = 5 * time.Second
		}
	case DatabaseTypePostgres:
		p := &c.Postgres
		if p.Port == 0 {
			p.Port = 5432
		}
		if p.SSLMode == "" {
			p.SSLMode = "disable"
		}
		if p.MaxOpenConns == 0 {
			p.MaxOpenConns = 25
		}
		if p.MaxIdleConns == 0 {
			p.MaxIdleConns = 5
		}
	}
}

// Validate reports every missing required field of the selected engine.
func (c *Config) Validate() error {
	required := func(name, value string) error {
		if value == "" {
			return fmt.Errorf("%s %s is required", c.Type, name)
		}
		return nil
	}

	switch c.Type {
	case DatabaseTypeSQLite:
		return required("path", c.SQLite.Path)
	case DatabaseTypePostgres:
		return errors.Join(
			required("host", c.Postgres.Host),
			required("database", c.Postgres.Database),
			required("user", c.Postgres.User),
		)
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
}
