package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capgate/gateway/internal/registry"
)

// InvocationRecord is the core per-request state described in §3: created
// at admission, terminal once a receipt is emitted, retained only in a
// bounded ring for observability — never returned to the caller. Outputs
// is an addition beyond the literal field list: per the cache-miss/
// partial-outputs Open Question decision, a failed execution's partial
// outputs are preserved here for post-hoc debugging rather than surfaced
// in the client-facing reply.
type InvocationRecord struct {
	RequestID    string              `json:"request_id"`
	CapabilityID string              `json:"capability_id"`
	Descriptor   registry.Descriptor `json:"descriptor"`
	AgentID      string              `json:"agent_id,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	CacheHit     bool                `json:"cache_hit"`
	QueueWaitMs  float64             `json:"queue_wait_ms"`
	ExecutionMs  float64             `json:"execution_ms"`
	ExecutorID   string              `json:"executor_id,omitempty"`
	Success      bool                `json:"success"`
	ErrorKind    ErrorKind           `json:"error_kind,omitempty"`
	CostActual   float64             `json:"cost_actual"`
	Outputs      map[string]any      `json:"outputs,omitempty"`
}

// InvocationLog is a bounded, thread-safe ring buffer of invocation
// records, grounded on internal/obslog.Ring's fixed-capacity ring shape.
type InvocationLog struct {
	mu       sync.Mutex
	entries  []InvocationRecord
	capacity int
	head     int
	size     int
}

// NewInvocationLog creates a ring buffer with the given capacity.
func NewInvocationLog(capacity int) *InvocationLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &InvocationLog{
		entries:  make([]InvocationRecord, capacity),
		capacity: capacity,
	}
}

// newRequestID mints an opaque, time-ordered request id (UUIDv7 is
// lexically time-ordered, matching §3's "request_id (opaque, time-ordered)").
func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Store appends a terminal invocation record, evicting the oldest entry
// once the ring is full.
func (l *InvocationLog) Store(rec InvocationRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.head + l.size) % l.capacity
	if l.size < l.capacity {
		l.size++
	} else {
		l.head = (l.head + 1) % l.capacity
	}
	l.entries[idx] = rec
}

// Recent returns up to n most-recent records, newest last.
func (l *InvocationLog) Recent(n int) []InvocationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]InvocationRecord, n)
	for i := 0; i < n; i++ {
		idx := (l.head + l.size - n + i) % l.capacity
		out[i] = l.entries[idx]
	}
	return out
}
