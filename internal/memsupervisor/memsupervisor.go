// Package memsupervisor periodically samples process memory pressure
// (§5 "Memory pressure") and feeds it into the rate limiter's adaptive
// load factor, triggers cache/activity cleanup above the warn threshold,
// and signals the dispatcher to reject non-critical priorities above the
// critical threshold. Host-level figures for the public health report are
// sampled via gopsutil/v3's mem package, grounded on the process-resource
// sampling pattern in the pack's node-peer.go (CPUPercent/MemoryInfo
// queried on a ticker and folded into a status struct). The 85%/95%
// thresholds themselves are computed from runtime.MemStats, since the
// spec's "heap usage" names the Go heap specifically, not host memory.
package memsupervisor

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/rs/zerolog"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/ratelimit"
)

// WarnPct is the heap percentage above which cleanup is triggered.
const WarnPct = 85.0

// CriticalPct is the heap percentage above which non-critical priorities
// are rejected outright.
const CriticalPct = 95.0

// Supervisor samples memory pressure on an interval and reacts to it.
type Supervisor struct {
	rateLimit *ratelimit.Limiter
	cacheMem  *cache.MemoryStore // nil when the cache backend is Redis-backed
	activity  *activity.Feed
	metrics   *metrics.Store

	period time.Duration
	log    zerolog.Logger

	heapPctBits uint64 // atomic float64 bits, mirroring internal/ratelimit's lock-free read pattern
}

// New builds a supervisor. cacheMem may be nil if the active cache
// backend isn't the in-memory store (Redis manages its own eviction).
func New(rateLimit *ratelimit.Limiter, cacheMem *cache.MemoryStore, feed *activity.Feed, store *metrics.Store, period time.Duration, log zerolog.Logger) *Supervisor {
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Supervisor{
		rateLimit: rateLimit,
		cacheMem:  cacheMem,
		activity:  feed,
		metrics:   store,
		period:    period,
		log:       log.With().Str("component", "memsupervisor").Logger(),
	}
}

// Run samples on an interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Supervisor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapPct := 0.0
	if ms.HeapSys > 0 {
		heapPct = 100 * float64(ms.HeapAlloc) / float64(ms.HeapSys)
	}
	atomic.StoreUint64(&s.heapPctBits, math.Float64bits(heapPct))

	avgLatency := s.avgLatency()
	s.rateLimit.UpdateLoad(heapPct, avgLatency)

	if heapPct >= WarnPct {
		evicted := 0
		if s.cacheMem != nil {
			evicted = s.cacheMem.SweepExpired()
		}
		aged := s.activity.Sweep()
		s.log.Warn().
			Float64("heap_pct", heapPct).
			Int("cache_evicted", evicted).
			Int("activity_swept", aged).
			Msg("memory pressure above warn threshold, ran cleanup")
	}

	if heapPct >= CriticalPct {
		s.log.Error().Float64("heap_pct", heapPct).Msg("memory pressure above critical threshold")
	}
}

func (s *Supervisor) avgLatency() float64 {
	cells := s.metrics.All()
	if len(cells) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cells {
		sum += c.LatencyAvg
	}
	return sum / float64(len(cells))
}

// HeapPct returns the most recently sampled heap percentage.
func (s *Supervisor) HeapPct() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.heapPctBits))
}

// OverWarn reports whether the last sample was at or above WarnPct.
func (s *Supervisor) OverWarn() bool { return s.HeapPct() >= WarnPct }

// OverCritical reports whether the last sample was at or above
// CriticalPct; the dispatcher consults this to reject non-critical
// priorities outright.
func (s *Supervisor) OverCritical() bool { return s.HeapPct() >= CriticalPct }

// Snapshot reports the memory section of get_system_health.
func (s *Supervisor) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := map[string]any{
		"heap_pct":         s.HeapPct(),
		"heap_alloc_bytes": ms.HeapAlloc,
		"heap_sys_bytes":   ms.HeapSys,
		"goroutines":       runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		out["host_total_bytes"] = vm.Total
		out["host_used_bytes"] = vm.Used
		out["host_used_pct"] = vm.UsedPercent
	}

	return out
}
