package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/breaker"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/canonical"
	"github.com/capgate/gateway/internal/dispatch"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/queue"
	"github.com/capgate/gateway/internal/receipt"
	"github.com/capgate/gateway/internal/registry"
)

// statusForKind maps the §7 error taxonomy onto HTTP status codes; no
// mapping is given verbatim in the spec, so this follows ordinary REST
// convention (documented in DESIGN.md's Open Question decisions).
func statusForKind(k dispatch.ErrorKind) int {
	switch k {
	case dispatch.KindValidation:
		return http.StatusBadRequest
	case dispatch.KindUnauthorized:
		return http.StatusUnauthorized
	case dispatch.KindForbidden:
		return http.StatusForbidden
	case dispatch.KindNotFound:
		return http.StatusNotFound
	case dispatch.KindRateLimited:
		return http.StatusTooManyRequests
	case dispatch.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindExecutorError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDispatchError(w http.ResponseWriter, e *dispatch.Error) {
	writeError(w, statusForKind(e.Kind), string(e.Kind), e.Message, e.Details)
}

// invokeBody is the shared request shape for invoke/batch/queued_invoke.
type invokeBody struct {
	CapabilityID string         `json:"capability_id"`
	Inputs       map[string]any `json:"inputs"`
	NoCache      bool           `json:"no_cache"`
	Priority     string         `json:"priority"`
}

func priorityFromString(s string) queue.Priority {
	switch s {
	case "critical":
		return queue.Critical
	case "high":
		return queue.High
	case "low":
		return queue.Low
	default:
		return queue.Normal
	}
}

func (s *Server) requestFromBody(r *http.Request, b invokeBody) dispatch.Request {
	return dispatch.Request{
		CapabilityID:  b.CapabilityID,
		Inputs:        b.Inputs,
		APIKey:        apiKeyFrom(r.Context()),
		AgentIDHeader: agentIDFrom(r.Context()),
		CapabilityJWT: jwtFrom(r.Context()),
		NoCache:       b.NoCache,
		Priority:      priorityFromString(b.Priority),
	}
}

// handleInvoke implements the single `invoke` operation (§6).
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var b invokeBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "malformed request body", map[string]any{"error": err.Error()})
		return
	}
	if b.CapabilityID == "" {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "capability_id is required", nil)
		return
	}

	res := s.Dispatcher.Invoke(r.Context(), s.requestFromBody(r, b))
	if !res.Success {
		writeDispatchError(w, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleQueuedInvoke is `queued_invoke`: identical to invoke but honors an
// explicit priority field.
func (s *Server) handleQueuedInvoke(w http.ResponseWriter, r *http.Request) {
	s.handleInvoke(w, r)
}

const maxBatchSize = 10

// handleBatch implements the batch operation: up to 10 invocations,
// returning per-item results without failing the whole batch on one
// item's error.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var items []invokeBody
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "malformed request body", map[string]any{"error": err.Error()})
		return
	}
	if len(items) == 0 || len(items) > maxBatchSize {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "batch must contain between 1 and 10 items", map[string]any{"count": len(items)})
		return
	}

	results := make([]dispatch.Result, len(items))
	for i, b := range items {
		results[i] = s.Dispatcher.Invoke(r.Context(), s.requestFromBody(r, b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// composeStep is one step of a compose request: it names its own
// capability and inputs, independent of any other step's outcome.
type composeStep struct {
	CapabilityID string         `json:"capability_id"`
	Inputs       map[string]any `json:"inputs"`
}

type composeBody struct {
	Steps       []composeStep `json:"steps"`
	StopOnError *bool         `json:"stop_on_error"`
}

// handleCompose implements the compose operation: an ordered list of
// steps, short-circuiting after the first failure unless stop_on_error is
// explicitly false.
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var b composeBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "malformed request body", map[string]any{"error": err.Error()})
		return
	}
	if len(b.Steps) == 0 {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "compose requires at least one step", nil)
		return
	}
	stopOnError := true
	if b.StopOnError != nil {
		stopOnError = *b.StopOnError
	}

	results := make([]dispatch.Result, 0, len(b.Steps))
	for _, step := range b.Steps {
		res := s.Dispatcher.Invoke(r.Context(), dispatch.Request{
			CapabilityID:  step.CapabilityID,
			Inputs:        step.Inputs,
			APIKey:        apiKeyFrom(r.Context()),
			AgentIDHeader: agentIDFrom(r.Context()),
			CapabilityJWT: jwtFrom(r.Context()),
		})
		results = append(results, res)
		if !res.Success && stopOnError {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleListCapabilities implements list_capabilities(tag?, mode?).
func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	f := registry.Filter{
		Tag:  r.URL.Query().Get("tag"),
		Mode: registry.ExecutionMode(r.URL.Query().Get("mode")),
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.Registry.List(f)})
}

// handleGetCapability implements get_capability(id) -> descriptor +
// sponsor, where sponsor is the executor id that would currently serve
// this capability under the selection rules (§4.7) — the spec names a
// "sponsor" without defining the term further; this is the natural
// reading given the executor-pool model (documented in DESIGN.md).
func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	desc, ok := s.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, string(dispatch.KindNotFound), "unknown capability", map[string]any{"capability_id": id})
		return
	}
	sponsor := ""
	if ex, err := s.Executors.Resolve(desc); err == nil {
		sponsor = ex.ID()
	}
	writeJSON(w, http.StatusOK, map[string]any{"descriptor": desc, "sponsor": sponsor})
}

// handleCapabilitiesSummary implements capabilities_summary.
func (s *Server) handleCapabilitiesSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Summary())
}

// handleResetCircuitBreaker implements reset_circuit_breaker(id).
func (s *Server) handleResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.Breaker.Reset(id)
	writeJSON(w, http.StatusOK, map[string]any{"capability_id": id, "state": breaker.Closed})
}

// handleGetMetrics implements get_metrics(id?|all).
func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if id := chi.URLParam(r, "id"); id != "" {
		c, ok := s.Metrics.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, string(dispatch.KindNotFound), "no metrics recorded for capability", map[string]any{"capability_id": id})
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.Metrics.All(), "system": s.Metrics.System()})
}

// systemHealth is the get_system_health reply shape from §6.
type systemHealth struct {
	Status      string         `json:"status"`
	UptimeSecs  int64          `json:"uptime_seconds"`
	LoadFactor  float64        `json:"load_factor"`
	Memory      map[string]any `json:"memory"`
	Cache       cache.Stats    `json:"cache"`
	Requests    metrics.System `json:"requests"`
	Performance map[string]any `json:"performance"`
}

// handleGetSystemHealth implements get_system_health.
func (s *Server) handleGetSystemHealth(w http.ResponseWriter, r *http.Request) {
	sys := s.Metrics.System()
	status := "healthy"
	loadFactor := s.RateLimit.LoadFactor()
	if loadFactor < 1.0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, systemHealth{
		Status:     status,
		UptimeSecs: sys.UptimeMs / 1000,
		LoadFactor: loadFactor,
		Memory:     s.MemorySnapshot(),
		Cache:      s.Cache.Stats(),
		Requests:   sys,
		Performance: map[string]any{
			"slowest": s.Metrics.Slowest(5),
			"top":     s.Metrics.Top(5),
		},
	})
}

// receiptVerifyBody accepts either a base64 canonical blob or a raw
// receipt plus optional original inputs/outputs, per §6's "Artefacts"
// section.
type receiptVerifyBody struct {
	Blob    string           `json:"blob"`
	Receipt *receipt.Receipt `json:"receipt"`
	Inputs  map[string]any   `json:"inputs"`
	Outputs map[string]any   `json:"outputs"`
}

// handleVerifyReceipt implements receipt verification: signature check,
// plus (when original inputs/outputs are supplied) a content-hash
// recheck against the receipt's recorded hashes.
func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var b receiptVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "malformed request body", map[string]any{"error": err.Error()})
		return
	}

	rec := b.Receipt
	if rec == nil && b.Blob != "" {
		raw, err := base64.StdEncoding.DecodeString(b.Blob)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "blob is not valid base64", nil)
			return
		}
		var decoded receipt.Receipt
		if err := json.Unmarshal(raw, &decoded); err != nil {
			writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "blob does not decode to a receipt", nil)
			return
		}
		rec = &decoded
	}
	if rec == nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "either blob or receipt is required", nil)
		return
	}

	sigValid := receipt.Verify(*rec, s.SigningKey)

	hashesMatch := true
	if b.Inputs != nil {
		h, err := canonical.Hash(b.Inputs)
		hashesMatch = hashesMatch && err == nil && h == rec.InputsHash
	}
	if b.Outputs != nil {
		h, err := canonical.Hash(b.Outputs)
		hashesMatch = hashesMatch && err == nil && h == rec.OutputsHash
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_id":         rec.ReceiptID,
		"signature_valid":    sigValid,
		"content_hash_match": hashesMatch,
	})
}

// handleEncodeReceiptBlob returns a receipt both inline and as a base64
// canonical blob, per §6's "Artefacts" section.
func (s *Server) handleEncodeReceiptBlob(w http.ResponseWriter, r *http.Request) {
	var rec receipt.Receipt
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, string(dispatch.KindValidation), "malformed receipt body", map[string]any{"error": err.Error()})
		return
	}
	encoded, err := canonical.Encode(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, string(dispatch.KindInternalError), "failed to encode receipt", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt": rec,
		"blob":    base64.StdEncoding.EncodeToString(encoded),
	})
}

// handleActivityQuery implements the activity feed query surface.
func (s *Server) handleActivityQuery(w http.ResponseWriter, r *http.Request) {
	f := activity.Filter{
		AgentID: r.URL.Query().Get("agent_id"),
		Limit:   queryInt(r, "limit", 100),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.Activity.Query(f)})
}

// handleActivityStream upgrades to a websocket and streams matching
// activity events live.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	f := activity.Filter{AgentID: r.URL.Query().Get("agent_id")}
	activity.ServeWS(s.Activity, w, r, f, s.Logger)
}
