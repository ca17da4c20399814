package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/fsadapter"
	"github.com/inftyai/mantafs/pkg/fusefs"
)

var (
	mountDebug     bool
	mountEphemeral bool
	mountAdds      []string
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the catalog as a read-only filesystem",
	Long: `Mount the catalog at mountpoint (default: mount.root from the config).

When peers.enabled is set the node also serves its cache to other nodes,
and /metrics when metrics are enabled. The mount is removed on SIGINT or
SIGTERM.

Examples:
  # Mount at the configured root
  mantafs mount

  # Mount with a custom config and mountpoint
  mantafs mount /models --config /etc/mantafs/config.yaml

  # Throwaway catalog seeded with one model, nothing persisted but the cache
  mantafs mount --ephemeral --add qwen=hf://Qwen/Qwen3-8B/

  # Register an object under an existing directory before mounting
  mantafs mount --add models/weights.bin=s3://bucket/weights.bin

  # Debug logging for one run
  MANTAFS_LOGGING_LEVEL=DEBUG mantafs mount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().BoolVar(&mountDebug, "debug", false, "Log every FUSE request")
	mountCmd.Flags().BoolVar(&mountEphemeral, "ephemeral", false, "Keep the catalog in memory for this run only")
	mountCmd.Flags().StringArrayVar(&mountAdds, "add", nil, "Register [parent/]name=protocol-path before mounting (repeatable)")
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if mountEphemeral {
		cfg.Catalog.Type = store.TypeMemory
	}

	mountpoint := cfg.Mount.Root
	if len(args) == 1 {
		mountpoint = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopObservability, err := startObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopObservability()

	n, err := openNode(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := registerEntries(ctx, n.adapter, append(cfg.Mount.Entries, mountAdds...)); err != nil {
		return err
	}

	server, err := fusefs.Mount(ctx, mountpoint, n.adapter, fusefs.Options{
		AllowOther:      cfg.Mount.AllowOther,
		EntryTimeout:    cfg.Mount.EntryTimeout,
		AttrTimeout:     cfg.Mount.AttrTimeout,
		NegativeTimeout: cfg.Mount.NegativeTimeout,
		CacheDir:        cfg.Cache.Dir,
		CacheSize:       cfg.Cache.Size.Uint64(),
		Debug:           mountDebug || cfg.Mount.Debug,
	})
	if err != nil {
		return err
	}

	// stop cancels ctx, which unmounts; a failed server takes the mount down.
	g, gctx := errgroup.WithContext(ctx)
	serve := func(fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			if err != nil {
				stop()
			}
			return err
		})
	}
	if cfg.Peers.Enabled {
		serve(n.peerServer().Start)
	} else if cfg.Metrics.Enabled {
		serve(func(ctx context.Context) error { return serveMetrics(ctx, cfg.Metrics.Port) })
	}
	g.Go(func() error {
		server.Wait()
		stop()
		return nil
	})

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mantafs mounted at %s. Press Ctrl+C to unmount.\n", mountpoint)

	err = g.Wait()
	logger.Info("Unmounted", logger.KeyPath, mountpoint)

	n.drain(cfg.ShutdownTimeout)
	return err
}

// registerEntries adds each "[parent/]name=protocol-path" entry to the
// catalog. Parents must already exist or be discoverable.
func registerEntries(ctx context.Context, a *fsadapter.Adapter, entries []string) error {
	for _, e := range entries {
		parentPath, name, source, err := parseEntry(e)
		if err != nil {
			return err
		}
		parent, err := a.Walk(ctx, parentPath)
		if err != nil {
			return fmt.Errorf("entry %q: resolve parent %q: %w", e, parentPath, err)
		}
		inode, err := a.Register(ctx, parent.ID, name, source)
		if err != nil {
			return fmt.Errorf("entry %q: %w", e, err)
		}
		logger.Info("Entry ready", logger.KeyPath, inode.Path, logger.Source(inode.Source))
	}
	return nil
}

func parseEntry(e string) (parentPath, name, source string, err error) {
	target, source, ok := strings.Cut(e, "=")
	target = strings.Trim(target, "/")
	if !ok || target == "" || source == "" {
		return "", "", "", fmt.Errorf("invalid entry %q: want [parent/]name=protocol-path", e)
	}
	parentPath, name = path.Split(target)
	return "/" + parentPath, name, source, nil
}
