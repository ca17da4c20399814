// Package commands implements the mantafs command line.
package commands

import (
	"github.com/spf13/cobra"

	catalogcmd "github.com/inftyai/mantafs/cmd/mantafs/commands/catalog"
	configcmd "github.com/inftyai/mantafs/cmd/mantafs/commands/config"
)

// Version information, set by main from ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mantafs",
	Short: "Read-only model filesystem backed by a node-local cache",
	Long: `mantafs mounts a catalog of model files as a read-only filesystem.

File contents are fetched on first read, from another node's cache when a
peer has them and from the origin (Hugging Face, ModelScope, S3, OSS, GCS)
otherwise, then served from the local cache.

All configuration options can be overridden using environment variables.
Format: MANTAFS_<SECTION>_<KEY> (use underscores for nested keys)

  MANTAFS_LOGGING_LEVEL=DEBUG
  MANTAFS_CACHE_DIR=/data/mantafs
  MANTAFS_PEERS_ENDPOINTS=http://10.0.0.2:7070,http://10.0.0.3:7070`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/mantafs/config.yaml)")

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(servePeerCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(catalogcmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return configFile
}
