package peer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zstd"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/cache"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/metrics"
)

const (
	// HeaderObjectSize carries the uncompressed object size when the body
	// is zstd-encoded and Content-Length therefore describes the wire bytes.
	HeaderObjectSize = "X-Mantafs-Object-Size"

	encodingZstd = "zstd"
)

// HealthChecker is implemented by components the health endpoint reports on.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// Handler serves objects out of the local cache.
type Handler struct {
	cache    *cache.Store
	checks   map[string]HealthChecker
	compress bool
	metrics  metrics.PeerMetrics
}

// NewHandler returns a handler over c. checks are reported by /healthz
// under their map keys.
func NewHandler(c *cache.Store, checks map[string]HealthChecker, compress bool, m metrics.PeerMetrics) *Handler {
	return &Handler{cache: c, checks: checks, compress: compress, metrics: m}
}

func parseID(raw string) (catalog.InodeID, bool) {
	if len(raw) == 0 || len(raw) > 16 {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, false
	}
	return catalog.InodeID(v), true
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(enc, encodingZstd) {
			return true
		}
	}
	return false
}

// Object handles GET and HEAD /v1/objects/{id}.
func (h *Handler) Object(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "invalid object id", http.StatusBadRequest)
		return
	}

	f, size, err := h.cache.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, cache.ErrObjectNotFound) {
			h.observe("miss", 0, start)
			http.NotFound(w, r)
			return
		}
		logger.Warn("Peer object open failed", logger.KeyInodeID, uint64(id), logger.KeyError, err)
		http.Error(w, "cache unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(HeaderObjectSize, strconv.FormatInt(size, 10))

	if r.Method == http.MethodHead || !h.compress || !acceptsZstd(r) {
		// ServeContent sets Content-Length and honours HEAD and Range.
		http.ServeContent(w, r, "", time.Time{}, f)
		h.observe("hit", size, start)
		return
	}

	w.Header().Set("Content-Encoding", encodingZstd)
	w.Header().Add("Vary", "Accept-Encoding")
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := io.Copy(enc, f)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Debug("Peer object stream aborted", logger.KeyInodeID, uint64(id), logger.KeyBytesRead, n, logger.KeyError, err)
		return
	}
	h.observe("hit", n, start)
}

func (h *Handler) observe(status string, bytes int64, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveServe(status, bytes, time.Since(start))
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
	code := http.StatusOK

	report := func(name string, err error) {
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			return
		}
		resp.Checks[name] = "ok"
	}

	report("cache", h.cache.HealthCheck(r.Context()))
	for name, c := range h.checks {
		report(name, c.Healthcheck(r.Context()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
