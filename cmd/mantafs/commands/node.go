package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/cache"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/config"
	"github.com/inftyai/mantafs/pkg/fsadapter"
	"github.com/inftyai/mantafs/pkg/metrics"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/peer"
	"github.com/inftyai/mantafs/pkg/resolver"
)

// node holds the components of one mounted node.
type node struct {
	cfg      *config.Config
	cache    *cache.Store
	catalog  catalog.Catalog
	origins  *origin.Registry
	resolver *resolver.Resolver
	adapter  *fsadapter.Adapter
}

// openCache opens the cache directory and removes temp files left by an
// interrupted fill.
func openCache(ctx context.Context, cfg *config.Config) (*cache.Store, error) {
	c, err := cache.New(cache.Config{Dir: cfg.Cache.Dir})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	n, err := c.RemoveTemp(ctx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to clean cache: %w", err)
	}
	if n > 0 {
		logger.Info("Removed partial cache files", logger.KeyCount, n)
	}
	logger.Info("Cache ready", logger.KeyPath, c.Dir(), "capacity", cfg.Cache.Size.String())
	return c, nil
}

func openNode(ctx context.Context, cfg *config.Config) (*node, error) {
	n := &node{cfg: cfg}

	var err error
	if n.cache, err = openCache(ctx, cfg); err != nil {
		return nil, err
	}
	if n.catalog, err = store.Open(ctx, cfg.Catalog); err != nil {
		n.Close()
		return nil, err
	}
	if n.origins, err = config.BuildOrigins(ctx, cfg.Origins); err != nil {
		n.Close()
		return nil, err
	}
	logger.Info("Origins ready", "types", n.origins.Types())

	var peers resolver.PeerFetcher
	if len(cfg.Peers.Endpoints) > 0 {
		client := peer.NewClient(cfg.Peers, metrics.NewPeerMetrics())
		logger.Info("Peers configured", "endpoints", client.Endpoints())
		peers = client
	}

	n.resolver = resolver.New(n.catalog, n.cache, peers, n.origins, resolver.Config{
		FetchTimeout: cfg.Cache.FetchTimeout,
		LockWait:     cfg.Cache.LockWait,
	}, metrics.NewResolverMetrics())

	n.adapter = fsadapter.New(n.catalog, n.resolver, n.origins, fsadapter.Options{
		UID:     cfg.Mount.UID,
		GID:     cfg.Mount.GID,
		Metrics: metrics.NewFSMetrics(),
	})
	return n, nil
}

// peerServer returns the server exposing this node's cache, with the
// catalog included in its health report.
func (n *node) peerServer() *peer.Server {
	h := peer.NewHandler(n.cache, map[string]peer.HealthChecker{"catalog": n.catalog},
		n.cfg.Peers.CompressEnabled(), metrics.NewPeerMetrics())
	return peer.NewServer(n.cfg.Peers, h)
}

// drain waits for running fetches so their cache files and locks are
// settled before the catalog closes.
func (n *node) drain(timeout time.Duration) {
	if n.resolver == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		n.resolver.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("Shutdown timeout reached with fetches still running", "inflight", n.resolver.Inflight())
	}
}

func (n *node) Close() {
	var errs []error
	if n.catalog != nil {
		errs = append(errs, n.catalog.Close())
	}
	if n.cache != nil {
		errs = append(errs, n.cache.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Error closing node", logger.KeyError, err)
	}
}
