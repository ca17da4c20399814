package peer

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/metrics"
)

// NewRouter wires the peer routes:
//
//	GET|HEAD /v1/objects/{id}  object bytes from the local cache, 404 on miss
//	GET      /healthz          health of the cache and registered checks
//	GET      /metrics          Prometheus metrics, when enabled
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/v1/objects", func(r chi.Router) {
		r.Get("/{id}", h.Object)
		r.Head("/{id}", h.Object)
	})

	r.With(middleware.Timeout(10*time.Second)).Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("Peer request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
