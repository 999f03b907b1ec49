package cache

// New selects the memory-backed store by default, or a Redis-backed store
// when redisURL is non-empty.
func New(maxEntries int, redisURL string) (Store, error) {
	if redisURL != "" {
		return NewRedisStore(redisURL)
	}
	return NewMemoryStore(maxEntries)
}
