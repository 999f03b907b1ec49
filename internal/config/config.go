// Package config loads gateway configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration
	LogLevel        string

	// Rate limiting (C4)
	RateLimitGlobalMax    int
	RateLimitWindow       time.Duration
	CacheHitsConsumeQuota bool

	// Queue (C6)
	QueueMaxDepthCritical int
	QueueMaxDepthHigh     int
	QueueMaxDepthNormal   int
	QueueMaxDepthLow      int
	QueueStarvationGuard  time.Duration

	// Circuit breaker (C5)
	CircuitFailureThreshold int
	CircuitCooldown         time.Duration

	// Cache (C3)
	CacheMaxEntries int
	CacheDefaultTTL time.Duration
	CacheRedisURL   string

	// Activity feed (C10)
	ActivityMaxEvents int
	ActivityTTL       time.Duration

	// Receipts (C9)
	ReceiptSigningKey string

	// Registry (C1)
	CapabilityManifestPath string

	// Body limits
	MaxBodyBytes int64
}

// Load reads configuration from environment variables and an optional
// .env file. Missing values fall back to the documented defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:            getEnv("HOST", "0.0.0.0") + ":" + getEnv("ROUTER_PORT", "3001"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: getEnvDuration("GRACEFUL_TIMEOUT_MS", 15*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		RateLimitGlobalMax:    getEnvInt("RATE_LIMIT_GLOBAL_MAX", 100),
		RateLimitWindow:       getEnvDurationMs("RATE_LIMIT_WINDOW_MS", 60000),
		CacheHitsConsumeQuota: getEnvBool("CACHE_HITS_CONSUME_QUOTA", true),

		QueueMaxDepthCritical: getEnvInt("QUEUE_MAX_DEPTH_CRITICAL", 16),
		QueueMaxDepthHigh:     getEnvInt("QUEUE_MAX_DEPTH_HIGH", 8),
		QueueMaxDepthNormal:   getEnvInt("QUEUE_MAX_DEPTH_NORMAL", 32),
		QueueMaxDepthLow:      getEnvInt("QUEUE_MAX_DEPTH_LOW", 4),
		QueueStarvationGuard:  getEnvDurationMs("QUEUE_STARVATION_GUARD_MS", 5000),

		CircuitFailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitCooldown:         getEnvDurationMs("CIRCUIT_COOLDOWN_MS", 30000),

		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),
		CacheDefaultTTL: getEnvDurationMs("CACHE_DEFAULT_TTL_MS", 30000),
		CacheRedisURL:   getEnv("CACHE_REDIS_URL", ""),

		ActivityMaxEvents: getEnvInt("ACTIVITY_MAX_EVENTS", 10000),
		ActivityTTL:       getEnvDurationMs("ACTIVITY_TTL_MS", 86_400_000),

		ReceiptSigningKey: getEnv("RECEIPT_SIGNING_KEY", ""),

		CapabilityManifestPath: getEnv("CAPABILITY_MANIFEST_PATH", ""),

		MaxBodyBytes: int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),
	}
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a millisecond integer env var into a Duration,
// falling back to the given default Duration directly.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func getEnvDurationMs(key string, fallbackMs int) time.Duration {
	return getEnvDuration(key, time.Duration(fallbackMs)*time.Millisecond)
}
