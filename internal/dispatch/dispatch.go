// Package dispatch implements the router/dispatcher pipeline (C8), the
// heart of the gateway: identify the caller, gate on rate/circuit/policy,
// probe the cache, admit to the priority queue (deduplicating identical
// in-flight invocations), execute under a deadline, and emit the receipt,
// metrics, and activity artefacts that follow every invocation. Grounded
// on the teacher's router (router/router.go) for the overall request
// shape and on routing.go's provider-selection-then-execute flow for the
// gate-then-execute sequencing, generalized from LLM chat routing to
// arbitrary capability invocation.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/breaker"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/canonical"
	"github.com/capgate/gateway/internal/executor"
	"github.com/capgate/gateway/internal/identity"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/obslog"
	"github.com/capgate/gateway/internal/queue"
	"github.com/capgate/gateway/internal/ratelimit"
	"github.com/capgate/gateway/internal/receipt"
	"github.com/capgate/gateway/internal/registry"
)

// ErrorKind is the canonical error taxonomy from §7.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation_error"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindRateLimited        ErrorKind = "rate_limited"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindTimeout            ErrorKind = "timeout"
	KindExecutorError      ErrorKind = "executor_error"
	KindInternalError      ErrorKind = "internal_error"
)

// Error is the user-visible rejection shape: {kind, message, details}.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// latency hint -> default deadline, per §4.8 step 7.
var latencyDeadlines = map[registry.LatencyHint]time.Duration{
	registry.LatencyLow:    2 * time.Second,
	registry.LatencyMedium: 10 * time.Second,
	registry.LatencyHigh:   60 * time.Second,
}

func defaultDeadline(hint registry.LatencyHint) time.Duration {
	if d, ok := latencyDeadlines[hint]; ok {
		return d
	}
	return 10 * time.Second
}

// Request is one inbound invocation.
type Request struct {
	CapabilityID     string
	Inputs           map[string]any
	APIKey           string
	AgentIDHeader    string
	CapabilityJWT    string // bearer token for confidential capabilities, if presented
	Priority         queue.Priority
	NoCache          bool
	DeadlineOverride time.Duration // 0 means use the descriptor's latency hint
}

// Result is the reply shape from §4.8 step 9.
type Result struct {
	Success     bool            `json:"success"`
	Outputs     map[string]any  `json:"outputs,omitempty"`
	Error       *Error          `json:"error,omitempty"`
	Receipt     receipt.Receipt `json:"receipt"`
	CostActual  float64         `json:"cost_actual"`
	ExecutionMs float64         `json:"execution_ms"`
	CacheHit    bool            `json:"cache_hit"`
	QueueWaitMs float64         `json:"queue_wait_ms"`
	Warning     string          `json:"warning,omitempty"`
}

// Dispatcher wires together every gate and emits the artefacts described
// in §4.8/§4.9. It holds no per-request state; one Dispatcher serves every
// invocation concurrently.
type Dispatcher struct {
	Registry   *registry.Registry
	Identities *identity.Registry
	RateLimit  *ratelimit.Limiter
	Breaker    *breaker.Registry
	Cache      cache.Store
	Queue      *queue.Queue
	Executors  *executor.Pool
	Metrics    *metrics.Store
	Activity   *activity.Feed
	Log        *obslog.Ring

	SigningKey       []byte
	TokenVerifier    *identity.TokenVerifier
	CacheHitsConsume bool
	CacheTTL         time.Duration
	UsageSink        *receipt.UsageSink

	// Records is the bounded invocation-record ring backing observability;
	// nil skips recording (used in tests that don't care about it).
	Records *InvocationLog

	// Memory reports memory pressure for §5's "above 95% reject all
	// non-critical priorities" rule. Nil means no supervisor is wired and
	// the gate is skipped (used in tests that don't care about memory
	// pressure).
	Memory MemoryPressure
}

// MemoryPressure is the subset of internal/memsupervisor.Supervisor the
// dispatcher needs; kept as an interface so this package doesn't import
// memsupervisor just to read one bit of state.
type MemoryPressure interface {
	OverCritical() bool
}

// Invoke runs the full pipeline for one request.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	requestID := newRequestID()

	// Step 1: identify.
	caller := d.Identities.Resolve(req.APIKey, req.AgentIDHeader)

	desc, ok := d.Registry.Get(req.CapabilityID)
	if !ok {
		return d.reject(req, caller, newError(KindNotFound, "unknown capability", map[string]any{"capability_id": req.CapabilityID}))
	}

	// Step 2: gate - rate.
	if dec := d.checkRate(caller); !dec.Allowed {
		return d.reject(req, caller, newError(KindRateLimited, "rate limit exceeded", map[string]any{
			"retry_after": dec.RetryAfter.String(),
			"reset_at":    dec.ResetAt,
		}))
	}

	// Step 2b: gate - memory pressure. Critical priority is exempt so the
	// gateway can still serve its own health/control traffic under load.
	if d.Memory != nil && d.Memory.OverCritical() && req.Priority != queue.Critical {
		return d.reject(req, caller, newError(KindServiceUnavailable, "memory pressure critical, non-critical priorities rejected", map[string]any{"capability_id": req.CapabilityID}))
	}

	// Step 3: gate - circuit.
	if !d.Breaker.AllowRequest(req.CapabilityID) {
		return d.reject(req, caller, newError(KindServiceUnavailable, "circuit open", map[string]any{"capability_id": req.CapabilityID, "reason": "circuit_open"}))
	}

	// Step 4: gate - policy.
	if desc.Execution.Mode == registry.ModeConfidential {
		if err := d.checkPolicy(req, desc); err != nil {
			return d.reject(req, caller, err)
		}
	}

	inputsHash, err := canonical.Hash(req.Inputs)
	if err != nil {
		return d.reject(req, caller, newError(KindValidation, "inputs could not be canonicalized", map[string]any{"error": err.Error()}))
	}
	cacheKey := cache.Key(req.CapabilityID, inputsHash)
	dedupKey := queue.DedupKey(req.CapabilityID, inputsHash)

	// Step 5: cache probe. A cache hit has already been charged the rate
	// quota in checkRate above; CacheHitsConsume is not consulted, so hits
	// are charged whatever its value.
	if !req.NoCache {
		if entry, hit, _ := d.Cache.Get(ctx, cacheKey); hit {
			return d.replyFromCache(req, caller, desc, requestID, entry, dedupKey)
		}
	}

	// Step 6+7: admit to queue, execute with deadline.
	queueStart := time.Now()
	deadline := req.DeadlineOverride
	if deadline <= 0 {
		deadline = defaultDeadline(desc.Performance.LatencyHint)
	}

	execResult, execErr := queue.Submit(d.Queue, ctx, req.Priority, dedupKey, func(execCtx context.Context) (executor.Result, error) {
		execCtx, cancel := context.WithTimeout(execCtx, deadline)
		defer cancel()

		ex, err := d.Executors.Resolve(desc)
		if err != nil {
			return executor.Result{}, err
		}
		return ex.Execute(execCtx, desc, req.Inputs)
	})
	queueWaitMs := float64(time.Since(queueStart).Milliseconds())
	executionMs := float64(time.Since(start).Milliseconds())

	if execErr != nil {
		return d.handleExecutionFailure(req, caller, desc, requestID, execResult, execErr, dedupKey, executionMs, queueWaitMs)
	}

	// Success path.
	d.Breaker.RecordSuccess(req.CapabilityID)
	d.Metrics.Record(req.CapabilityID, true, executionMs, execResult.CostActual)
	d.Identities.RecordActivity(caller.AgentID, "success", req.CapabilityID)

	if !req.NoCache && cacheable(desc) {
		ttl := d.CacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		outputsJSON, _ := canonical.Encode(execResult.Outputs)
		_ = d.Cache.Set(ctx, cacheKey, cache.Entry{
			OutputsJSON: outputsJSON,
			CostActual:  execResult.CostActual,
			ExecutorID:  execResult.ExecutorID,
			Proof:       execResult.Proof,
		}, ttl)
	}

	r, err := receipt.Generate(receipt.Params{
		CapabilityID: req.CapabilityID,
		ExecutorID:   execResult.ExecutorID,
		InflightKey:  dedupKey,
		Inputs:       req.Inputs,
		Outputs:      execResult.Outputs,
		PrivacyLevel: string(desc.Execution.Mode),
		DurationMs:   executionMs,
		Success:      true,
		CostActual:   execResult.CostActual,
		Proof:        execResult.Proof,
		AgentID:      caller.AgentID,
	}, d.SigningKey)
	if err != nil {
		d.Log.Error("dispatch", "receipt generation failed", map[string]any{"capability_id": req.CapabilityID, "error": err.Error()})
	}
	d.emitArtefacts(req, caller, desc, r, false)

	d.storeRecord(InvocationRecord{
		RequestID:    requestID,
		CapabilityID: req.CapabilityID,
		Descriptor:   desc,
		AgentID:      caller.AgentID,
		StartedAt:    start,
		QueueWaitMs:  queueWaitMs,
		ExecutionMs:  executionMs,
		ExecutorID:   execResult.ExecutorID,
		Success:      true,
		CostActual:   execResult.CostActual,
	})

	res := Result{
		Success:     true,
		Outputs:     execResult.Outputs,
		Receipt:     r,
		CostActual:  execResult.CostActual,
		ExecutionMs: executionMs,
		QueueWaitMs: queueWaitMs,
	}
	if desc.Deprecated {
		res.Warning = fmt.Sprintf("capability %q is deprecated", desc.ID)
	}
	return res
}

func cacheable(d registry.Descriptor) bool {
	return d.Execution.Mode == registry.ModePublic
}

func (d *Dispatcher) checkPolicy(req Request, desc registry.Descriptor) *Error {
	if req.CapabilityJWT == "" {
		return newError(KindForbidden, "confidential capability requires a capability token", map[string]any{"capability_id": desc.ID})
	}
	claims, err := d.TokenVerifier.Verify(req.CapabilityJWT)
	if err != nil {
		return newError(KindForbidden, "capability token invalid or expired", map[string]any{"capability_id": desc.ID, "error": err.Error()})
	}
	if !claims.GrantsCapability(desc.ID) {
		return newError(KindForbidden, "capability token does not cover this capability", map[string]any{"capability_id": desc.ID})
	}
	return nil
}

func (d *Dispatcher) checkRate(caller identity.Identity) ratelimit.Decision {
	global := d.RateLimit.CheckAndConsume(ratelimit.ScopeGlobal, ratelimit.GlobalKey)
	if !global.Allowed {
		return global
	}
	if caller.AgentID == "" {
		return global
	}
	return d.RateLimit.CheckAndConsume(ratelimit.ScopeIdentity, caller.AgentID)
}

func (d *Dispatcher) replyFromCache(req Request, caller identity.Identity, desc registry.Descriptor, requestID string, entry cache.Entry, dedupKey string) Result {
	var outputs map[string]any
	if len(entry.OutputsJSON) > 0 {
		_ = json.Unmarshal(entry.OutputsJSON, &outputs)
	}

	d.Metrics.Record(req.CapabilityID, true, 0, entry.CostActual)

	r, err := receipt.Generate(receipt.Params{
		CapabilityID: req.CapabilityID,
		ExecutorID:   entry.ExecutorID,
		InflightKey:  dedupKey,
		Inputs:       req.Inputs,
		Outputs:      outputs,
		PrivacyLevel: string(desc.Execution.Mode),
		Success:      true,
		CostActual:   entry.CostActual,
		Proof:        entry.Proof,
		AgentID:      caller.AgentID,
	}, d.SigningKey)
	if err != nil {
		d.Log.Error("dispatch", "cache-hit receipt generation failed", map[string]any{"capability_id": req.CapabilityID, "error": err.Error()})
	}
	d.emitArtefacts(req, caller, desc, r, true)

	d.storeRecord(InvocationRecord{
		RequestID:    requestID,
		CapabilityID: req.CapabilityID,
		Descriptor:   desc,
		AgentID:      caller.AgentID,
		StartedAt:    time.Now(),
		CacheHit:     true,
		ExecutorID:   entry.ExecutorID,
		Success:      true,
		CostActual:   entry.CostActual,
	})

	return Result{
		Success:    true,
		Outputs:    outputs,
		Receipt:    r,
		CostActual: entry.CostActual,
		CacheHit:   true,
	}
}

func (d *Dispatcher) handleExecutionFailure(req Request, caller identity.Identity, desc registry.Descriptor, requestID string, execResult executor.Result, execErr error, dedupKey string, executionMs, queueWaitMs float64) Result {
	kind := classifyExecutorError(execErr)

	if kind == KindExecutorError || kind == KindTimeout {
		d.Breaker.RecordFailure(req.CapabilityID)
	}
	d.Metrics.Record(req.CapabilityID, false, executionMs, 0)
	d.Identities.RecordActivity(caller.AgentID, "failure", req.CapabilityID)

	// Partial outputs a failed executor returned alongside its error are
	// preserved on the invocation record for post-hoc debugging but never
	// surfaced in the client-facing receipt or reply.
	r, err := receipt.Generate(receipt.Params{
		CapabilityID: req.CapabilityID,
		ExecutorID:   execResult.ExecutorID,
		InflightKey:  dedupKey,
		Inputs:       req.Inputs,
		PrivacyLevel: string(desc.Execution.Mode),
		DurationMs:   executionMs,
		Success:      false,
		AgentID:      caller.AgentID,
	}, d.SigningKey)
	if err != nil {
		d.Log.Error("dispatch", "failure receipt generation failed", map[string]any{"capability_id": req.CapabilityID, "error": err.Error()})
	}
	d.emitArtefacts(req, caller, desc, r, false)

	d.storeRecord(InvocationRecord{
		RequestID:    requestID,
		CapabilityID: req.CapabilityID,
		Descriptor:   desc,
		AgentID:      caller.AgentID,
		StartedAt:    time.Now().Add(-time.Duration(executionMs) * time.Millisecond),
		QueueWaitMs:  queueWaitMs,
		ExecutionMs:  executionMs,
		ExecutorID:   execResult.ExecutorID,
		Success:      false,
		ErrorKind:    kind,
		Outputs:      execResult.Outputs,
	})

	return Result{
		Success:     false,
		Error:       newError(kind, execErr.Error(), map[string]any{"capability_id": req.CapabilityID}),
		Receipt:     r,
		ExecutionMs: executionMs,
		QueueWaitMs: queueWaitMs,
	}
}

// storeRecord appends an invocation record when a ring buffer is wired; a
// nil Records field (e.g. in tests) silently skips recording.
func (d *Dispatcher) storeRecord(rec InvocationRecord) {
	if d.Records != nil {
		d.Records.Store(rec)
	}
}

func classifyExecutorError(err error) ErrorKind {
	var noExec *executor.ErrNoExecutor
	if errors.As(err, &noExec) {
		return KindServiceUnavailable
	}
	var qTimeout *queue.ErrQueueTimeout
	if errors.As(err, &qTimeout) {
		return KindServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindExecutorError
}

func (d *Dispatcher) reject(req Request, caller identity.Identity, e *Error) Result {
	d.Log.Warn("dispatch", "invocation rejected", map[string]any{
		"capability_id": req.CapabilityID,
		"kind":           e.Kind,
		"agent_id":       caller.AgentID,
	})
	return Result{Success: false, Error: e}
}

// emitArtefacts publishes the activity event and usage metadata that
// follow a completed invocation, after the receipt has been built, per
// §4.8 step 8's ordering guarantee (activity ordered-after receipt).
func (d *Dispatcher) emitArtefacts(req Request, caller identity.Identity, desc registry.Descriptor, r receipt.Receipt, cacheHit bool) {
	d.Activity.Record("capability_invoked", caller.AgentID, map[string]any{
		"capability_id": req.CapabilityID,
		"success":       r.Success,
		"receipt_id":    r.ReceiptID,
		"cache_hit":     cacheHit,
	}, activity.VisibilityPublic)

	if d.UsageSink != nil {
		d.UsageSink.Publish(receipt.NewUsageMeta(caller.AgentID, desc.Execution.ProofType, r, cacheHit))
	}
}
