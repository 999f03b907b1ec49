// Package activity implements the public activity feed (C10): a bounded
// ring buffer of invocation events, queryable by agent/type/since, with
// live fan-out to subscribers. Grounded on the teacher's analytics
// ingestion pipeline (analytics/ingestion.go) — channel-buffered event
// intake, non-blocking publish — generalized from a ClickHouse-flushing
// pipeline to an in-process bounded feed with no external sink.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see an event in feed queries.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Event is one activity feed entry.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	AgentID    string         `json:"agent_id"`
	Data       map[string]any `json:"data,omitempty"`
	Visibility Visibility     `json:"visibility"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Filter narrows a feed query or subscription.
type Filter struct {
	AgentID string
	Types   []string
	Since   time.Time
	Limit   int
}

func (f Filter) matches(e Event) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, e.Type) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

type subscriber struct {
	id     string
	filter Filter
	ch     chan Event
}

// Feed is the bounded, TTL-pruned activity ring plus live subscriptions.
type Feed struct {
	maxEvents int
	ttl       time.Duration

	mu     sync.RWMutex
	events []Event // oldest first

	subMu sync.Mutex
	subs  map[string]*subscriber
}

// New creates a feed bounded by both event count and age.
func New(maxEvents int, ttl time.Duration) *Feed {
	return &Feed{
		maxEvents: maxEvents,
		ttl:       ttl,
		subs:      make(map[string]*subscriber),
	}
}

// Record appends a new event, trimming the oldest entries once over
// capacity, and fans it out to any live subscriber whose filter matches.
// Visibility defaults to public when unset.
func (f *Feed) Record(eventType, agentID string, data map[string]any, visibility Visibility) Event {
	if visibility == "" {
		visibility = VisibilityPublic
	}
	e := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		AgentID:    agentID,
		Data:       data,
		Visibility: visibility,
		Timestamp:  time.Now().UTC(),
	}

	f.mu.Lock()
	f.events = append(f.events, e)
	if len(f.events) > f.maxEvents {
		f.events = f.events[len(f.events)-f.maxEvents:]
	}
	f.mu.Unlock()

	f.fanOut(e)
	return e
}

func (f *Feed) fanOut(e Event) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for _, sub := range f.subs {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Slow subscriber: drop rather than block the publisher,
			// matching the teacher's non-blocking-publish stance.
		}
	}
}

// Query returns matching events, newest last, honoring filter.Limit (0
// means no limit). Only public events are returned unless filter.AgentID
// matches the event's own agent (an agent can always see its own
// activity).
func (f *Feed) Query(filter Filter) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Event, 0, len(f.events))
	cutoff := time.Now().Add(-f.ttl)
	for _, e := range f.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if e.Visibility != VisibilityPublic && e.AgentID != filter.AgentID {
			continue
		}
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// Subscribe registers a live subscriber and returns its event channel
// plus an unsubscribe function. The channel is buffered; a slow consumer
// misses events rather than stalling the feed.
func (f *Feed) Subscribe(filter Filter) (<-chan Event, func()) {
	sub := &subscriber{id: uuid.NewString(), filter: filter, ch: make(chan Event, 64)}

	f.subMu.Lock()
	f.subs[sub.id] = sub
	f.subMu.Unlock()

	return sub.ch, func() {
		f.subMu.Lock()
		delete(f.subs, sub.id)
		f.subMu.Unlock()
		close(sub.ch)
	}
}

// Sweep removes events older than the feed's TTL, bounding memory when
// activity volume is low and the count-based trim rarely triggers.
func (f *Feed) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-f.ttl)
	kept := f.events[:0]
	removed := 0
	for _, e := range f.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return removed
}
