package config

import (
	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/output"
	"github.com/inftyai/mantafs/pkg/config"
)

var (
	showOutput  string
	showSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective mantafs configuration, after defaults and
environment overrides.

Tokens and keys are masked unless --show-secrets is given.

Examples:
  # Show config as YAML
  mantafs config show

  # Show as JSON
  mantafs config show --output json

  # Show specific config file
  mantafs config show --config /etc/mantafs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print tokens and keys in clear")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	if !showSecrets {
		maskSecrets(cfg)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}

const masked = "********"

func maskSecrets(cfg *config.Config) {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&cfg.Origins.HF.Token)
	mask(&cfg.Origins.MS.Token)
	for _, s := range []*string{
		&cfg.Origins.S3.SecretAccessKey,
		&cfg.Origins.OSS.SecretAccessKey,
		&cfg.Origins.GCS.SecretAccessKey,
	} {
		mask(s)
	}
	mask(&cfg.Catalog.Postgres.Password)
}
