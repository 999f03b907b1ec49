package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is the default cache backend: an LRU of bounded size with
// lazy TTL eviction on read, matching the teacher's semantic cache engine's
// capacity-then-age eviction strategy but backed by a real LRU rather than
// a hand-rolled oldest-scan.
type MemoryStore struct {
	lru *lru.Cache[string, Entry]

	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryStore creates an in-memory cache bounded to maxEntries.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	s := &MemoryStore{}
	c, err := lru.NewWithEvict[string, Entry](maxEntries, func(_ string, _ Entry) {
		atomic.AddInt64(&s.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	s.lru = c
	return s, nil
}

// Get returns the entry for key if present and not expired. An expired
// entry is evicted and treated as a miss.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	if e.Expired(time.Now()) {
		s.lru.Remove(key)
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	atomic.AddInt64(&s.hits, 1)
	return e, true, nil
}

// Set stores an entry with the given TTL, evicting the least-recently-used
// entry if the store is at capacity.
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)
	s.lru.Add(key, entry)
	return nil
}

// Invalidate removes a single key.
func (s *MemoryStore) Invalidate(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

// SweepExpired walks the store removing entries past their TTL. Intended
// to be called periodically by internal/sweep so memory doesn't hold
// stale entries between reads.
func (s *MemoryStore) SweepExpired() int {
	now := time.Now()
	removed := 0
	for _, key := range s.lru.Keys() {
		if e, ok := s.lru.Peek(key); ok && e.Expired(now) {
			s.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats reports current counters.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&s.hits),
		Misses:    atomic.LoadInt64(&s.misses),
		Evictions: atomic.LoadInt64(&s.evictions),
		Entries:   s.lru.Len(),
	}
}
