package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/inftyai/mantafs/internal/logger"
)

// Server serves the local cache to other nodes.
type Server struct {
	server       *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// NewServer creates a stopped server for h.
func NewServer(cfg Config, h *Handler) *Server {
	cfg.ApplyDefaults()
	return &Server{
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: cfg.Timeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Listen binds the listening socket. Start calls it when needed; calling it
// first lets callers learn the bound address.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("peer server listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Peer server listening", "addr", s.Addr())
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("peer server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("peer server shutdown: %w", err)
			logger.Error("Peer server shutdown error", logger.KeyError, err)
			return
		}
		logger.Info("Peer server stopped")
	})
	return shutdownErr
}
