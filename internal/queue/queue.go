// Package queue implements the priority admission queue (C6): four bounded
// concurrency levels (critical, high, normal, low) with a starvation guard
// that lets a long-waiting low-priority item borrow a higher level's slot,
// plus request deduplication so identical concurrent invocations share one
// execution. Concurrency bounding is grounded on the teacher's Semaphore
// and deduplication on its Deduplicator (middleware/concurrency.go).
package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Priority is the admission priority of a queued invocation, ordered from
// most to least urgent.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low

	numLevels = 4
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// ErrQueueTimeout is returned when a slot could not be acquired before the
// caller's context was done.
type ErrQueueTimeout struct{ Priority Priority }

func (e *ErrQueueTimeout) Error() string {
	return "queue: timed out waiting for a " + e.Priority.String() + " slot"
}

const pollInterval = 10 * time.Millisecond

// Queue bounds concurrent executions per priority level and deduplicates
// concurrent identical requests.
type Queue struct {
	levels          [numLevels]chan struct{}
	limits          [numLevels]int
	starvationGuard time.Duration

	dedup dedupStore
}

// Limits configures the per-level concurrency bound.
type Limits struct {
	Critical int
	High     int
	Normal   int
	Low      int
}

// New creates a queue with the given per-level concurrency bounds and
// starvation guard duration.
func New(limits Limits, starvationGuard time.Duration) *Queue {
	q := &Queue{starvationGuard: starvationGuard}
	q.limits = [numLevels]int{limits.Critical, limits.High, limits.Normal, limits.Low}
	for i, n := range q.limits {
		if n <= 0 {
			n = 1
		}
		q.levels[i] = make(chan struct{}, n)
	}
	q.dedup.inflight = make(map[string]*inflightEntry)
	return q
}

// DedupKey derives the inflight key for a capability invocation: the
// capability id plus the hash of its canonicalized inputs, mirroring
// internal/cache.Key's structure.
func DedupKey(capabilityID, canonicalInputsHash string) string {
	h := sha256.Sum256([]byte(capabilityID + "|" + canonicalInputsHash))
	return hex.EncodeToString(h[:16])
}

// acquire blocks until a slot at priority p is available, or — once the
// caller has waited longer than the starvation guard — a slot at any
// more-urgent level becomes available first. Returns the level actually
// acquired (so the caller can release the right channel) and a release
// function.
func (q *Queue) acquire(ctx context.Context, p Priority) (Priority, func(), error) {
	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case q.levels[p] <- struct{}{}:
			return p, func() { <-q.levels[p] }, nil
		default:
		}

		if time.Since(start) >= q.starvationGuard {
			for lvl := Critical; lvl < p; lvl++ {
				select {
				case q.levels[lvl] <- struct{}{}:
					return lvl, func() { <-q.levels[lvl] }, nil
				default:
				}
			}
		}

		select {
		case <-ctx.Done():
			return p, nil, &ErrQueueTimeout{Priority: p}
		case <-ticker.C:
		}
	}
}

// Depth reports how many slots are currently occupied at each level, for
// diagnostics.
func (q *Queue) Depth() map[string]int {
	out := make(map[string]int, numLevels)
	for i := Priority(0); i < numLevels; i++ {
		out[i.String()] = len(q.levels[i])
	}
	return out
}

type inflightEntry struct {
	done    chan struct{}
	result  any
	err     error
}

type dedupStore struct {
	mu       sync.Mutex
	inflight map[string]*inflightEntry
}

// Submit admits fn for execution under priority p, deduplicating against
// any identical in-flight invocation sharing dedupKey: the first caller
// executes fn and all others attach to its result instead of re-running
// it or separately contending for a queue slot.
func Submit[T any](q *Queue, ctx context.Context, p Priority, dedupKey string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	q.dedup.mu.Lock()
	if entry, exists := q.dedup.inflight[dedupKey]; exists {
		q.dedup.mu.Unlock()
		select {
		case <-entry.done:
			if entry.err != nil {
				return zero, entry.err
			}
			result, _ := entry.result.(T)
			return result, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	entry := &inflightEntry{done: make(chan struct{})}
	q.dedup.inflight[dedupKey] = entry
	q.dedup.mu.Unlock()

	defer func() {
		q.dedup.mu.Lock()
		delete(q.dedup.inflight, dedupKey)
		q.dedup.mu.Unlock()
		close(entry.done)
	}()

	_, release, err := q.acquire(ctx, p)
	if err != nil {
		entry.err = err
		return zero, err
	}
	defer release()

	result, err := fn(ctx)
	entry.result = result
	entry.err = err
	return result, err
}
