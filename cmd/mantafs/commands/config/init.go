package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file populated with defaults.

Without --config the file is created at the default location
($XDG_CONFIG_HOME/mantafs/config.yaml).

Examples:
  # Create the default config
  mantafs config init

  # Create a config at a custom path, replacing any existing file
  mantafs config init --config /etc/mantafs/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if configPath == "" {
		path, err := config.InitConfig(initForce)
		if err != nil {
			return err
		}
		configPath = path
	} else if err := config.InitConfigToPath(configPath, initForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration written to %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set mount.root and cache.dir")
	_, _ = fmt.Fprintln(out, "  2. Add origin credentials under origins")
	_, _ = fmt.Fprintln(out, "  3. mantafs mount")
	return nil
}
