package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inftyai/mantafs/internal/bytesize"
	"github.com/inftyai/mantafs/internal/telemetry"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/origin/hub"
	"github.com/inftyai/mantafs/pkg/origin/s3"
	"github.com/inftyai/mantafs/pkg/peer"
)

// EnvPrefix prefixes every environment override, e.g. MANTAFS_LOGGING_LEVEL.
const EnvPrefix = "MANTAFS"

// Config represents the mantafs configuration.
//
// It covers one node: the mount, the local cache, the catalog backend, the
// peers it may fetch from, and the credentials for each origin.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (MANTAFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Mount controls the FUSE mount
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Cache is the on-disk object cache shared with other processes on the node
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Catalog selects the inode catalog backend
	Catalog store.Config `mapstructure:"catalog" yaml:"catalog"`

	// Peers lists the nodes consulted before any origin, and the local
	// peer server
	Peers peer.Config `mapstructure:"peers" yaml:"peers"`

	// Origins holds per-origin endpoints and credentials
	Origins OriginsConfig `mapstructure:"origins" yaml:"origins"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns on collection. Metrics are served on /metrics by the
	// peer server, and on Port when the peer server is disabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the standalone metrics port
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// MountConfig controls the FUSE mount.
type MountConfig struct {
	// Root is the default mountpoint when none is given on the command line
	// Default: /mnt/mantafs
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// AllowOther lets users other than the mounting one access the mount
	AllowOther bool `mapstructure:"allow_other" yaml:"allow_other"`

	// UID and GID own every inode
	// Default: 1000
	UID uint32 `mapstructure:"uid" yaml:"uid"`
	GID uint32 `mapstructure:"gid" yaml:"gid"`

	// EntryTimeout and AttrTimeout are the kernel cache lifetimes for
	// lookups and attributes.
	// Default: 1s
	EntryTimeout time.Duration `mapstructure:"entry_timeout" validate:"gte=0" yaml:"entry_timeout"`
	AttrTimeout  time.Duration `mapstructure:"attr_timeout" validate:"gte=0" yaml:"attr_timeout"`

	// NegativeTimeout caches failed lookups. Zero disables it so newly
	// registered objects appear immediately.
	NegativeTimeout time.Duration `mapstructure:"negative_timeout" validate:"gte=0" yaml:"negative_timeout"`

	// Debug logs every FUSE request
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Entries are registered in the catalog before mounting, each as
	// "[parent/]name=protocol-path". Already registered entries are kept.
	Entries []string `mapstructure:"entries" yaml:"entries,omitempty"`
}

// CacheConfig configures the on-disk object cache and how it is filled.
type CacheConfig struct {
	// Dir is the cache root directory
	// Default: $XDG_CACHE_HOME/mantafs
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`

	// Size is the capacity reported by statfs. Eviction is not performed.
	// Supports human-readable formats: "100GiB", "500Mi", "1TB"
	// Default: 100GiB
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size"`

	// FetchTimeout bounds one fill from a peer or origin
	// Default: 30m
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gte=0" yaml:"fetch_timeout"`

	// LockWait bounds how long a fill waits for another process holding the
	// same object's lock
	// Default: 5m
	LockWait time.Duration `mapstructure:"lock_wait" validate:"gte=0" yaml:"lock_wait"`
}

// OriginsConfig holds per-origin settings. Origins without settings still
// work with their public defaults and environment credentials.
type OriginsConfig struct {
	// MaxRetries is the number of retries for transient origin failures.
	// Zero disables retries.
	// Default: 3
	MaxRetries *int `mapstructure:"max_retries" validate:"omitempty,min=0,max=20" yaml:"max_retries"`

	// RetryInitialInterval and RetryMaxInterval shape the backoff
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`

	HF hub.Config `mapstructure:"hf" yaml:"hf"`
	MS hub.Config `mapstructure:"ms" yaml:"ms"`

	S3  s3.Config `mapstructure:"s3" yaml:"s3"`
	OSS s3.Config `mapstructure:"oss" yaml:"oss"`
	GCS s3.Config `mapstructure:"gcs" yaml:"gcs"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MANTAFS_*)
//  2. Configuration file
//  3. Default values
//
// A missing file is not an error; environment and defaults still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// decode unmarshals v, then fills defaults.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  mantafs config init\n\n"+
				"Or specify a custom config file:\n"+
				"  mantafs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  mantafs config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Origin tokens and database passwords may be present.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: MANTAFS_LOGGING_LEVEL=DEBUG, MANTAFS_CACHE_DIR=/data/cache
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/mantafs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvs registers every leaf key of t with viper. AutomaticEnv only
// consults the environment for keys viper already knows, so without this a
// variable for a key absent from the file would be ignored.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := f.Type
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, ft, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// Passing a hook replaces viper's defaults, so the comma-separated slice
// hook for environment values is repeated here.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "100GiB" or "500Mi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mantafs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mantafs")
}

// defaultCacheDir returns $XDG_CACHE_HOME/mantafs, or ~/.cache/mantafs.
func defaultCacheDir() string {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "mantafs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mantafs")
	}
	return filepath.Join(home, ".cache", "mantafs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
