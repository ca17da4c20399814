package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/output"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the mantafs configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  mantafs config validate

  # Validate specific config file
  mantafs config validate --config /etc/mantafs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := checkWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.PrintKeyValues(out, [][2]string{
		{"Mount root", cfg.Mount.Root},
		{"Cache dir", cfg.Cache.Dir},
		{"Cache size", cfg.Cache.Size.String()},
		{"Catalog", string(cfg.Catalog.Type)},
		{"Peers", strconv.Itoa(len(cfg.Peers.Endpoints))},
		{"Log level", cfg.Logging.Level},
	})
}

// checkWarnings reports settings that are valid but probably unintended.
func checkWarnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.Catalog.Type == store.TypeMemory {
		warnings = append(warnings, "memory catalog - registered entries are lost on restart")
	}
	if cfg.Peers.Enabled && len(cfg.Peers.Endpoints) == 0 {
		warnings = append(warnings, "peer server enabled but no peer endpoints configured - this node only serves")
	}
	if cfg.Cache.FetchTimeout > 0 && cfg.Cache.LockWait > cfg.Cache.FetchTimeout {
		warnings = append(warnings, "cache.lock_wait exceeds cache.fetch_timeout")
	}
	if cfg.Mount.AllowOther {
		warnings = append(warnings, "mount.allow_other requires user_allow_other in /etc/fuse.conf")
	}
	if cfg.Catalog.Type == store.TypePostgres && !cfg.Catalog.Shared {
		warnings = append(warnings, "postgres catalog without catalog.shared - each mount clears the fetch locks of the others at startup")
	}
	return warnings
}
