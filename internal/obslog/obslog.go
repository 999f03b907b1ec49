// Package obslog implements the gateway's structured log ring buffer (C12):
// a bounded, in-memory record of recent log entries that backs the control
// surface's observability endpoints, echoing every entry to the process
// logger as it is recorded.
package obslog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is one of the three levels the core tracks.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one recorded log line.
type Entry struct {
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Stats reports counts per level.
type Stats struct {
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

// Ring is a bounded, thread-safe ring buffer of log entries.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	head     int
	size     int

	echo zerolog.Logger

	counts map[Level]int64
}

// NewRing creates a log ring buffer with the given capacity, echoing every
// recorded entry to echo.
func NewRing(capacity int, echo zerolog.Logger) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		echo:     echo.With().Str("component", "obslog").Logger(),
		counts:   make(map[Level]int64, 3),
	}
}

// Log appends an entry and echoes it to the process logger.
func (r *Ring) Log(level Level, component, message string, meta map[string]interface{}) {
	entry := Entry{
		Level:     level,
		Component: component,
		Message:   message,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}

	r.mu.Lock()
	idx := (r.head + r.size) % r.capacity
	if r.size < r.capacity {
		r.size++
	} else {
		r.head = (r.head + 1) % r.capacity
	}
	r.entries[idx] = entry
	r.counts[level]++
	r.mu.Unlock()

	ev := r.echo.Info()
	switch level {
	case LevelWarn:
		ev = r.echo.Warn()
	case LevelError:
		ev = r.echo.Error()
	}
	ev.Str("src_component", component).Fields(meta).Msg(message)
}

func (r *Ring) Info(component, message string, meta map[string]interface{}) {
	r.Log(LevelInfo, component, message, meta)
}

func (r *Ring) Warn(component, message string, meta map[string]interface{}) {
	r.Log(LevelWarn, component, message, meta)
}

func (r *Ring) Error(component, message string, meta map[string]interface{}) {
	r.Log(LevelError, component, message, meta)
}

// Recent returns up to n most-recent entries, newest last.
func (r *Ring) Recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (r.head + r.size - n + i) % r.capacity
		out[i] = r.entries[idx]
	}
	return out
}

// Stats returns the per-level counters accumulated since startup (these are
// monotonic totals, independent of ring eviction).
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Info:  r.counts[LevelInfo],
		Warn:  r.counts[LevelWarn],
		Error: r.counts[LevelError],
	}
	s.Total = s.Info + s.Warn + s.Error
	return s
}
