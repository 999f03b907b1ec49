package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the optional multi-instance cache backend, selected when
// CACHE_REDIS_URL is configured. Grounded on the teacher's redisclient.New
// (ParseURL + NewClient) but scoped to this package's own cache keys
// instead of a shared client, since the cache is the only component that
// needs Redis so far.
type RedisStore struct {
	c      *redis.Client
	prefix string

	hits   int64
	misses int64
}

// NewRedisStore connects to the Redis instance at rawURL.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid CACHE_REDIS_URL: %w", err)
	}
	return &RedisStore{c: redis.NewClient(opt), prefix: "capgate:cache:"}, nil
}

// Get fetches and JSON-decodes an entry, treating a missing key or an
// expired entry as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.c.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	if e.Expired(time.Now()) {
		_ = s.c.Del(ctx, s.prefix+key).Err()
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	atomic.AddInt64(&s.hits, 1)
	return e, true, nil
}

// Set writes an entry with a Redis-native expiry matching ttl, so stale
// keys self-evict without a separate sweep.
func (s *RedisStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(ttl)

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return s.c.Set(ctx, s.prefix+key, raw, ttl).Err()
}

// Invalidate removes a single key.
func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	return s.c.Del(ctx, s.prefix+key).Err()
}

// Stats reports hit/miss counters. Entries and evictions are not tracked
// locally since Redis owns expiry; Entries reports -1 to signal "unknown,
// ask Redis" rather than a misleading zero.
func (s *RedisStore) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		Entries: -1,
	}
}

// Ping verifies connectivity, used at startup to fail fast on a
// misconfigured CACHE_REDIS_URL.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.c.Ping(ctx).Err()
}
