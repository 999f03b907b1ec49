// Package httpapi wires the gateway's chi router and HTTP handlers (the
// external interface in §6): invoke/batch/compose, queued_invoke,
// discovery, control-surface, receipt, and activity endpoints. Grounded
// on the teacher's router (router/router.go) for the middleware chain
// shape and ordering, and its middleware/cors.go, middleware/auth.go, and
// middleware/timeout.go for the individual middleware implementations,
// generalized from LLM-proxy concerns to capability invocation.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type ctxKey string

const (
	ctxKeyAPIKey  ctxKey = "httpapi.api_key"
	ctxKeyAgentID ctxKey = "httpapi.agent_id"
	ctxKeyJWT     ctxKey = "httpapi.capability_jwt"
)

// corsMiddleware handles cross-origin preflight and response headers.
// Grounded on middleware/cors.go's CORSMiddleware.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsMap := make(map[string]bool)
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originsMap[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll || originsMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Agent-ID, X-Capability-Token")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// securityHeadersMiddleware adds standard defensive response headers.
// Grounded on middleware/cors.go's SecurityHeadersMiddleware.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// identityMiddleware extracts the caller's API key, agent id header, and
// bearer capability token into the request context for handlers to pass
// into Dispatcher.Invoke. It never rejects — identity resolution and
// access control happen inside the dispatch pipeline.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		apiKey := r.Header.Get("Authorization")
		if len(apiKey) > len("Bearer ") && apiKey[:len("Bearer ")] == "Bearer " {
			apiKey = apiKey[len("Bearer "):]
		}
		ctx = context.WithValue(ctx, ctxKeyAPIKey, apiKey)
		ctx = context.WithValue(ctx, ctxKeyAgentID, r.Header.Get("X-Agent-ID"))
		ctx = context.WithValue(ctx, ctxKeyJWT, r.Header.Get("X-Capability-Token"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiKeyFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyAPIKey).(string)
	return v
}

func agentIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyAgentID).(string)
	return v
}

func jwtFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyJWT).(string)
	return v
}

// mwMaxBodySize bounds request body size. Grounded on router.go's
// mwMaxBodySize.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large", nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// mwRequestLogger logs one line per completed request. Grounded on
// router.go's mwRequestLogger.
func mwRequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// mwTimeout applies a fixed deadline to the request context, independent
// of the dispatcher's own per-capability deadline (this bounds handlers
// that fan out across many capabilities, e.g. batch/compose).
func mwTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func generateRequestID() string {
	return fmt.Sprintf("req-%d-%06d", time.Now().UnixMilli(), rand.Intn(999999))
}

func newRouterBase(logger zerolog.Logger, maxBodyBytes int64) chi.Router {
	r := chi.NewRouter()
	r.Use(corsMiddleware([]string{"*"}))
	r.Use(securityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(logger))
	r.Use(mwMaxBodySize(maxBodyBytes))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"kind":    kind,
			"message": message,
			"details": details,
		},
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
