package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/breaker"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/dispatch"
	"github.com/capgate/gateway/internal/executor"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/obsmetrics"
	"github.com/capgate/gateway/internal/ratelimit"
	"github.com/capgate/gateway/internal/registry"
)

// Server holds every component a handler might need to read from; it is
// the composition root's single wiring point into this package.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *registry.Registry
	Executors  *executor.Pool
	Metrics    *metrics.Store
	Cache      cache.Store
	RateLimit  *ratelimit.Limiter
	Breaker    *breaker.Registry
	Activity   *activity.Feed
	Logger     zerolog.Logger
	SigningKey []byte

	// MemorySnapshot reports heap stats for get_system_health; wired to
	// internal/memsupervisor's real gopsutil sampling by the composition
	// root. Left as a function field (not a direct dependency) so this
	// package doesn't need to import memsupervisor for one read.
	MemorySnapshot func() map[string]any

	MaxBodyBytes int64
}

// NewRouter builds the chi router with the full middleware chain and
// every route from §6's external interface.
func NewRouter(s *Server) http.Handler {
	if s.MemorySnapshot == nil {
		s.MemorySnapshot = func() map[string]any { return map[string]any{} }
	}

	r := newRouterBase(s.Logger, s.MaxBodyBytes)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "capgate-gateway"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})
	r.Handle("/metrics", obsmetrics.Handler(s.Metrics))

	r.Route("/v1", func(v chi.Router) {
		v.Use(identityMiddleware)
		v.Use(mwTimeout(90 * time.Second))

		v.Post("/invoke", s.handleInvoke)
		v.Post("/batch", s.handleBatch)
		v.Post("/compose", s.handleCompose)
		v.Post("/queued_invoke", s.handleQueuedInvoke)

		v.Get("/capabilities", s.handleListCapabilities)
		v.Get("/capabilities/summary", s.handleCapabilitiesSummary)
		v.Get("/capabilities/{id}", s.handleGetCapability)

		v.Post("/circuit_breakers/{id}/reset", s.handleResetCircuitBreaker)
		v.Get("/metrics", s.handleGetMetrics)
		v.Get("/metrics/{id}", s.handleGetMetrics)
		v.Get("/system/health", s.handleGetSystemHealth)

		v.Post("/receipts/encode", s.handleEncodeReceiptBlob)
		v.Post("/receipts/verify", s.handleVerifyReceipt)

		v.Get("/activity", s.handleActivityQuery)
		v.Get("/activity/stream", s.handleActivityStream)
	})

	return r
}
