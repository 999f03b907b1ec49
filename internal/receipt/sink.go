package receipt

import (
	"sync/atomic"
)

// UsageSink is a buffered, non-blocking intake channel for UsageMeta
// messages, grounded on the teacher's analytics ingestion pipeline
// (analytics/ingestion.go) — a channel-buffered event pipeline with
// drop-on-full semantics — scaled down from its multi-worker ClickHouse
// flush to a single consumable channel, since the reputation scorer is
// the only consumer this gateway defines.
type UsageSink struct {
	ch      chan UsageMeta
	emitted int64
	dropped int64
}

// NewUsageSink creates a sink with the given buffer capacity.
func NewUsageSink(bufferSize int) *UsageSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &UsageSink{ch: make(chan UsageMeta, bufferSize)}
}

// Publish submits one usage message. Non-blocking: drops the message if
// the buffer is full rather than stalling the dispatch pipeline.
func (s *UsageSink) Publish(u UsageMeta) {
	select {
	case s.ch <- u:
		atomic.AddInt64(&s.emitted, 1)
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// C returns the channel consumers range over.
func (s *UsageSink) C() <-chan UsageMeta {
	return s.ch
}

// Stats reports emitted/dropped counters.
type SinkStats struct {
	Emitted int64 `json:"emitted"`
	Dropped int64 `json:"dropped"`
}

func (s *UsageSink) Stats() SinkStats {
	return SinkStats{
		Emitted: atomic.LoadInt64(&s.emitted),
		Dropped: atomic.LoadInt64(&s.dropped),
	}
}
