package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/inftyai/mantafs/internal/logger"
)

// Watch re-reads the file at configPath whenever it changes and passes the
// new configuration to onChange. Edits that fail to parse or validate are
// logged and skipped, leaving the previous configuration in effect.
//
// Only settings that can change at runtime should be applied by onChange;
// the mount, cache and catalog are fixed for the life of the process.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err == nil {
			err = Validate(cfg)
		}
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", logger.KeyPath, e.Name, logger.KeyError, err)
			return
		}
		logger.Info("Configuration reloaded", logger.KeyPath, e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ApplyRuntime applies the settings that may change without a restart.
func ApplyRuntime(cfg *Config) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
}
