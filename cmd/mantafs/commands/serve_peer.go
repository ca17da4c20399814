package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/metrics"
	"github.com/inftyai/mantafs/pkg/peer"
)

var servePeerListen string

var servePeerCmd = &cobra.Command{
	Use:   "serve-peer",
	Short: "Serve the local cache to other nodes without mounting",
	Long: `Serve objects from the local cache over HTTP so other nodes can fetch
them instead of going to the origin. Nothing is mounted and nothing is
fetched; the cache is only read.

Examples:
  # Serve on peers.listen from the config
  mantafs serve-peer

  # Serve on a specific address
  mantafs serve-peer --listen :7171`,
	Args: cobra.NoArgs,
	RunE: runServePeer,
}

func init() {
	servePeerCmd.Flags().StringVar(&servePeerListen, "listen", "", "Listen address (default: peers.listen from the config)")
}

func runServePeer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePeerListen != "" {
		cfg.Peers.Listen = servePeerListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopObservability, err := startObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopObservability()

	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	h := peer.NewHandler(c, nil, cfg.Peers.CompressEnabled(), metrics.NewPeerMetrics())
	srv := peer.NewServer(cfg.Peers, h)

	err = srv.Start(ctx)
	logger.Info("Peer server stopped")
	return err
}
