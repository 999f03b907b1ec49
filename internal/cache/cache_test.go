package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyDeterministic(t *testing.T) {
	require.Equal(t, "cap.price.lookup.v1:abc", Key("cap.price.lookup.v1", "abc"))
}

func TestMemoryStoreSetGetMiss(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "k1", Entry{OutputsJSON: []byte(`{"a":1}`)}, time.Minute))

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"a":1}`), got.OutputsJSON)

	stats := s.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, 1, stats.Entries)
}

func TestMemoryStoreExpiredEntryIsMiss(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", Entry{}, -time.Second))

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreEvictsOnCapacity(t *testing.T) {
	s, err := NewMemoryStore(2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", Entry{}, time.Minute))
	require.NoError(t, s.Set(ctx, "b", Entry{}, time.Minute))
	require.NoError(t, s.Set(ctx, "c", Entry{}, time.Minute))

	require.Equal(t, 2, s.Stats().Entries)
	require.Equal(t, int64(1), s.Stats().Evictions)
}

func TestMemoryStoreInvalidate(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", Entry{}, time.Minute))
	require.NoError(t, s.Invalidate(ctx, "k1"))

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "fresh", Entry{}, time.Minute))
	require.NoError(t, s.Set(ctx, "stale", Entry{}, -time.Second))

	removed := s.SweepExpired()
	require.Equal(t, 1, removed)
	require.Equal(t, 1, s.Stats().Entries)
}
