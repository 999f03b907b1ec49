// Command gateway is the capability routing gateway's composition root:
// it wires config, logging, every core component (C1-C12), the
// background janitors, and the HTTP server, then serves until an OS
// signal requests graceful shutdown. Structure grounded on the teacher's
// services/gateway/main.go (config -> logger -> subsystems -> router ->
// http.Server -> signal-driven graceful shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/breaker"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/config"
	"github.com/capgate/gateway/internal/dispatch"
	"github.com/capgate/gateway/internal/executor"
	"github.com/capgate/gateway/internal/httpapi"
	"github.com/capgate/gateway/internal/identity"
	"github.com/capgate/gateway/internal/memsupervisor"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/obslog"
	"github.com/capgate/gateway/internal/queue"
	"github.com/capgate/gateway/internal/ratelimit"
	"github.com/capgate/gateway/internal/receipt"
	"github.com/capgate/gateway/internal/registry"
	"github.com/capgate/gateway/internal/sweep"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)

	log.Info().Str("env", cfg.Env).Str("addr", cfg.Addr).Msg("capability gateway starting")

	reg := registry.New()
	registerCapabilities(reg, cfg, log)

	pool := executor.NewPool()
	registerExecutors(pool, log)

	cacheStore, err := cache.New(cfg.CacheMaxEntries, cfg.CacheRedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("cache init failed")
	}
	cacheMem, _ := cacheStore.(*cache.MemoryStore) // nil when Redis-backed; sweep/memsupervisor skip it then

	metricsStore := metrics.NewStore()
	identities := identity.New()
	limiter := ratelimit.New(cfg.RateLimitGlobalMax, cfg.RateLimitWindow)
	breakers := breaker.New(cfg.CircuitFailureThreshold, cfg.CircuitCooldown)
	feed := activity.New(cfg.ActivityMaxEvents, cfg.ActivityTTL)
	logRing := obslog.NewRing(10_000, log)

	q := queue.New(queue.Limits{
		Critical: cfg.QueueMaxDepthCritical,
		High:     cfg.QueueMaxDepthHigh,
		Normal:   cfg.QueueMaxDepthNormal,
		Low:      cfg.QueueMaxDepthLow,
	}, cfg.QueueStarvationGuard)

	signingKey := []byte(cfg.ReceiptSigningKey)
	tokenVerifier := identity.NewTokenVerifier(signingKeyOrDerived(signingKey))
	usageSink := receipt.NewUsageSink(1024)
	reputation := receipt.NewReputation()
	go consumeUsage(usageSink, reputation, log)

	mem := memsupervisor.New(limiter, cacheMem, feed, metricsStore, 5*time.Second, log)

	janitor, err := sweep.New(sweep.Config{}, limiter, cacheMem, feed, mem, log)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep scheduler init failed")
	}

	d := &dispatch.Dispatcher{
		Registry:         reg,
		Identities:       identities,
		RateLimit:        limiter,
		Breaker:          breakers,
		Cache:            cacheStore,
		Queue:            q,
		Executors:        pool,
		Metrics:          metricsStore,
		Activity:         feed,
		Log:              logRing,
		SigningKey:       signingKey,
		TokenVerifier:    tokenVerifier,
		CacheHitsConsume: cfg.CacheHitsConsumeQuota,
		CacheTTL:         cfg.CacheDefaultTTL,
		UsageSink:        usageSink,
		Records:          dispatch.NewInvocationLog(10_000),
		Memory:           mem,
	}

	srv := &httpapi.Server{
		Dispatcher:     d,
		Registry:       reg,
		Executors:      pool,
		Metrics:        metricsStore,
		Cache:          cacheStore,
		RateLimit:      limiter,
		Breaker:        breakers,
		Activity:       feed,
		Logger:         log,
		SigningKey:     signingKey,
		MemorySnapshot: mem.Snapshot,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(srv),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stopSweeps := context.WithCancel(context.Background())
	janitor.Start(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	stopSweeps()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// registerCapabilities loads the manifest named by CAPABILITY_MANIFEST_PATH
// if set, otherwise seeds two demo capabilities so the gateway is usable
// out of the box.
func registerCapabilities(reg *registry.Registry, cfg *config.Config, log zerolog.Logger) {
	if cfg.CapabilityManifestPath != "" {
		if err := reg.LoadManifest(cfg.CapabilityManifestPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.CapabilityManifestPath).Msg("capability manifest load failed")
		}
		log.Info().Int("capabilities", reg.Len()).Str("source", cfg.CapabilityManifestPath).Msg("capability manifest loaded")
		return
	}

	demo := []registry.Descriptor{
		{
			ID:          "cap.price.lookup.v1",
			Name:        "Price Lookup",
			Description: "Looks up a reference price for a symbol.",
			Metadata:    registry.Metadata{Tags: []string{"finance", "demo"}},
			Execution:   registry.Execution{Mode: registry.ModePublic},
			Performance: registry.Performance{LatencyHint: registry.LatencyLow},
		},
		{
			ID:          "cap.cspl.wrap.v1",
			Name:        "Confidential Seal",
			Description: "Seals a payload under confidential execution, gated behind a capability token.",
			Metadata:    registry.Metadata{Tags: []string{"security", "demo"}},
			Execution:   registry.Execution{Mode: registry.ModeConfidential},
			Performance: registry.Performance{LatencyHint: registry.LatencyMedium},
		},
	}
	for _, d := range demo {
		if err := reg.Register(d); err != nil {
			log.Fatal().Err(err).Str("capability_id", d.ID).Msg("demo capability registration failed")
		}
	}
	log.Warn().Msg("CAPABILITY_MANIFEST_PATH not set — running with built-in demo capabilities only")
}

func registerExecutors(pool *executor.Pool, log zerolog.Logger) {
	pool.Register(executor.NewPriceLookup("exec-price-lookup-1"), "cap.price.lookup.v1")
	pool.Register(executor.NewConfidentialWrap("exec-cspl-wrap-1"), "cap.cspl.wrap.v1")
	log.Info().Msg("registered built-in demo executors")
}

// consumeUsage drains the usage sink into the portable EWMA reputation
// tracker; a successful invocation is a positive signal, a failure
// negative, cache hits counted the same as a live execution since they
// still represent a satisfied request.
func consumeUsage(sink *receipt.UsageSink, rep *receipt.Reputation, log zerolog.Logger) {
	for u := range sink.C() {
		signal := 0.0
		if u.Success {
			signal = 1.0
		}
		rep.Update(u.AgentID, signal)
		log.Debug().Str("agent_id", u.AgentID).Str("capability_id", u.CapabilityID).Msg("usage recorded")
	}
}

// signingKeyOrDerived falls back to a fixed built-in development key when no
// RECEIPT_SIGNING_KEY is configured, so capability-token verification
// still works in development; production deployments must set the
// environment variable explicitly.
func signingKeyOrDerived(key []byte) []byte {
	if len(key) > 0 {
		return key
	}
	return []byte("capgate-dev-token-key-do-not-use-in-production")
}
