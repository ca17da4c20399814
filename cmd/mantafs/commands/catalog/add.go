package catalog

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/output"
	"github.com/inftyai/mantafs/pkg/config"
	"github.com/inftyai/mantafs/pkg/fsadapter"
	"github.com/inftyai/mantafs/pkg/origin"
)

var addOffline bool

var addCmd = &cobra.Command{
	Use:   "add <parent-path> <name> <protocol-path>",
	Short: "Register a remote object in the catalog",
	Long: `Register a remote object under an existing directory of the mounted tree.

A protocol path ending in "/" is registered as a directory whose contents are
discovered from the origin on first access. For a file the origin is asked
for its size; with --offline, or when the origin cannot answer, the size is
learned on first open.

Examples:
  # Expose a model repository at /models/qwen
  mantafs catalog add / models hf://Qwen/
  mantafs catalog add /models qwen hf://Qwen/Qwen3-8B/

  # Expose a single S3 object
  mantafs catalog add / weights.bin s3://bucket/path/weights.bin

  # Pin a Hugging Face revision without contacting the hub
  mantafs catalog add / config.json hf://org/model/config.json:refs/pr/1 --offline`,
	Args: cobra.ExactArgs(3),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&addOffline, "offline", false, "Do not contact origins")
}

func runAdd(cmd *cobra.Command, args []string) error {
	c, cfg, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer closeCatalog(c)

	p, err := printer(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	origins := origin.NewRegistry()
	if !addOffline {
		if origins, err = config.BuildOrigins(ctx, cfg.Origins); err != nil {
			output.NewPrinter(cmd.ErrOrStderr(), output.FormatTable).Warning(fmt.Sprintf("Origins unavailable, size will be learned on first open: %v", err))
			origins = origin.NewRegistry()
		}
	}
	// Without origins the walk only follows entries already in the catalog.
	a := fsadapter.New(c, nil, origins, fsadapter.Options{})

	parent, err := a.Walk(ctx, args[0])
	if err != nil {
		return wrap("resolve parent", err)
	}
	inode, err := a.Register(ctx, parent.ID, args[1], args[2])
	if err != nil {
		return wrap("register", err)
	}
	return p.Print(newEntryList(inode))
}
