// Package executor defines the pluggable execution backend contract (C7)
// and its selection logic: explicit hint first, then any executor
// declaring the capability, falling back to a public executor only when
// the capability's mode allows it. Grounded on the teacher's Provider
// interface (provider/provider.go) generalized from LLM chat/embeddings
// calls to arbitrary capability execution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/capgate/gateway/internal/registry"
)

// Result is what an Executor returns for a successful invocation.
type Result struct {
	Outputs    map[string]any `json:"outputs"`
	CostActual float64        `json:"cost_actual"`
	Proof      string         `json:"proof,omitempty"`
	ExecutorID string         `json:"executor_id"`
}

// Executor is the interface every execution backend implements.
type Executor interface {
	// ID returns a stable identifier for this executor instance.
	ID() string
	// Supports reports whether this executor can serve the given
	// capability id.
	Supports(capabilityID string) bool
	// Public reports whether this executor may serve public-mode
	// capabilities as a fallback when no explicit hint or declared
	// executor exists.
	Public() bool
	// Execute runs one invocation.
	Execute(ctx context.Context, d registry.Descriptor, inputs map[string]any) (Result, error)
}

// ErrNoExecutor is returned when no eligible executor can be found for a
// capability under the selection rules.
type ErrNoExecutor struct {
	CapabilityID string
	Mode         registry.ExecutionMode
}

func (e *ErrNoExecutor) Error() string {
	return fmt.Sprintf("executor: no eligible executor for capability %q (mode=%s)", e.CapabilityID, e.Mode)
}

// Pool holds the set of registered executors and resolves which one
// should serve a given invocation.
type Pool struct {
	mu        sync.RWMutex
	byID      map[string]Executor
	declaring map[string][]Executor // capability id -> executors that declare support
}

// NewPool creates an empty executor pool.
func NewPool() *Pool {
	return &Pool{
		byID:      make(map[string]Executor),
		declaring: make(map[string][]Executor),
	}
}

// Register adds an executor to the pool. Intended for startup wiring,
// alongside registry.Register.
func (p *Pool) Register(e Executor, declaredCapabilities ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.byID[e.ID()] = e
	for _, capID := range declaredCapabilities {
		p.declaring[capID] = append(p.declaring[capID], e)
	}
}

// Resolve picks the executor that should serve d, per §4.7's selection
// order: explicit executor_hint, then any executor that declared support
// for this capability id, then — only if the capability's mode is
// public — any executor marked Public(). Confidential-mode capabilities
// never fall back to a public executor.
func (p *Pool) Resolve(d registry.Descriptor) (Executor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if hint := d.Execution.ExecutorHint; hint != "" {
		if e, ok := p.byID[hint]; ok && e.Supports(d.ID) {
			return e, nil
		}
	}

	for _, e := range p.declaring[d.ID] {
		if e.Supports(d.ID) {
			return e, nil
		}
	}

	if d.Execution.Mode == registry.ModePublic {
		for _, e := range p.byID {
			if e.Public() && e.Supports(d.ID) {
				return e, nil
			}
		}
	}

	return nil, &ErrNoExecutor{CapabilityID: d.ID, Mode: d.Execution.Mode}
}

// ErrExecutorFailed is a sentinel for "the executor ran and failed". The
// dispatcher does not use it: it recognises "no executor available" by
// matching *ErrNoExecutor and treats other executor errors as failures.
var ErrExecutorFailed = errors.New("executor: execution failed")
