// Package peer implements the cooperative cache protocol: a server that
// exposes this node's cache over HTTP and a client that asks other nodes
// for objects before falling back to the origin.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/metrics"
)

// ErrMiss is returned when no peer holds the object.
var ErrMiss = errors.New("object not held by any peer")

// errFound stops the probe group once a holder is known.
var errFound = errors.New("found")

// Client queries a fixed set of peers.
type Client struct {
	endpoints []string
	http      *http.Client
	timeout   time.Duration
	metrics   metrics.PeerMetrics
}

// NewClient returns a client for cfg.Endpoints.
func NewClient(cfg Config, m metrics.PeerMetrics) *Client {
	cfg.ApplyDefaults()

	endpoints := make([]string, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		if e = strings.TrimSuffix(strings.TrimSpace(e), "/"); e != "" {
			endpoints = append(endpoints, e)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	transport.DisableCompression = true

	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Transport: transport},
		timeout:   cfg.Timeout,
		metrics:   m,
	}
}

// Endpoints returns the configured peers.
func (c *Client) Endpoints() []string {
	return c.endpoints
}

func objectURL(endpoint string, id catalog.InodeID) string {
	return endpoint + "/v1/objects/" + id.String()
}

// Fetch asks every peer concurrently whether it holds id and streams the
// object from the first that does. It returns the body, the object size and
// the serving peer, or ErrMiss.
func (c *Client) Fetch(ctx context.Context, id catalog.InodeID) (io.ReadCloser, int64, string, error) {
	if len(c.endpoints) == 0 {
		return nil, 0, "", ErrMiss
	}

	var (
		once   sync.Once
		winner string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range c.endpoints {
		g.Go(func() error {
			if c.probe(gctx, ep, id) {
				once.Do(func() { winner = ep })
				return errFound
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, "", err
	}
	if winner == "" {
		return nil, 0, "", ErrMiss
	}

	body, size, err := c.get(ctx, winner, id)
	if err != nil {
		return nil, 0, winner, err
	}
	return body, size, winner, nil
}

// probe reports whether endpoint holds id. Errors count as a miss.
func (c *Client) probe(ctx context.Context, endpoint string, id catalog.InodeID) bool {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, objectURL(endpoint, id), nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Debug("Peer probe failed", logger.KeyPeer, endpoint, logger.KeyInodeID, uint64(id), logger.KeyError, err)
			c.observe(endpoint, "error", start)
		}
		return false
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.observe(endpoint, "hit", start)
		return true
	}
	c.observe(endpoint, "miss", start)
	return false
}

func (c *Client) get(ctx context.Context, endpoint string, id catalog.InodeID) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL(endpoint, id), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept-Encoding", encodingZstd)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("peer %s: %w", endpoint, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, 0, ErrMiss
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("peer %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	size := resp.ContentLength
	if v := resp.Header.Get(HeaderObjectSize); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			_ = resp.Body.Close()
			return nil, 0, fmt.Errorf("peer %s: bad %s %q", endpoint, HeaderObjectSize, v)
		}
		size = n
	}
	if size < 0 {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("peer %s: response has no length", endpoint)
	}

	var body io.ReadCloser = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), encodingZstd) {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, 0, fmt.Errorf("peer %s: zstd: %w", endpoint, err)
		}
		body = &zstdBody{dec: dec, raw: resp.Body}
	}
	return &sizedBody{r: body, want: size}, size, nil
}

func (c *Client) observe(peer, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveQuery(peer, status, time.Since(start))
	}
}

type zstdBody struct {
	dec *zstd.Decoder
	raw io.ReadCloser
}

func (z *zstdBody) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdBody) Close() error {
	z.dec.Close()
	return z.raw.Close()
}

// sizedBody fails the read that reaches EOF early or overruns the declared
// size, so a truncated transfer never lands in the cache.
type sizedBody struct {
	r    io.ReadCloser
	want int64
	got  int64
}

func (s *sizedBody) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.got += int64(n)
	if s.got > s.want {
		return n, fmt.Errorf("peer sent %d bytes, expected %d", s.got, s.want)
	}
	if errors.Is(err, io.EOF) && s.got != s.want {
		return n, fmt.Errorf("peer sent %d bytes, expected %d: %w", s.got, s.want, io.ErrUnexpectedEOF)
	}
	return n, err
}

func (s *sizedBody) Close() error { return s.r.Close() }
