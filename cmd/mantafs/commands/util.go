package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/internal/telemetry"
	"github.com/inftyai/mantafs/pkg/config"
	"github.com/inftyai/mantafs/pkg/metrics"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// loadConfig loads the configuration, initializes logging and starts
// watching the file so log settings follow edits.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	source := getConfigSource(GetConfigFile())
	logger.Info("Configuration loaded", "source", source, "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if source != "defaults" {
		if err := config.Watch(source, config.ApplyRuntime); err != nil {
			logger.Warn("Configuration hot reload disabled", logger.KeyError, err)
		}
	}
	return cfg, nil
}

// startObservability starts tracing, profiling and the metrics registry as
// configured. The returned function stops them.
func startObservability(ctx context.Context, cfg *config.Config) (func(), error) {
	tcfg := cfg.Telemetry
	if tcfg.ServiceVersion == "" {
		tcfg.ServiceVersion = Version
	}

	telemetryShutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", tcfg.Endpoint, "sample_rate", tcfg.SampleRate)
	}

	profilingShutdown, err := telemetry.InitProfiling(tcfg.Profiling, tcfg.ServiceName, tcfg.ServiceVersion)
	if err != nil {
		_ = telemetryShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", tcfg.Profiling.Endpoint, "profile_types", tcfg.Profiling.ProfileTypes)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}, nil
}
