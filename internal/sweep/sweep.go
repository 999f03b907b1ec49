// Package sweep runs the gateway's periodic janitors on a cron schedule:
// rate-limit window cleanup, cache TTL eviction and activity feed aging.
// It also starts the memory supervisor, whose sampling runs on its own
// ticker rather than on the cron schedule. Scheduling is grounded on
// robfig/cron/v3's idiomatic cron.New()/AddFunc usage (the pack itself
// only references the library by name — go.mod and a comment in
// services/automation's test suite discussing its cron-expression
// semantics — so no direct runtime-usage example exists to imitate beyond
// the library's own documented API).
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/memsupervisor"
	"github.com/capgate/gateway/internal/ratelimit"
)

// Janitor schedules and runs the gateway's background cleanup tasks.
type Janitor struct {
	cron *cron.Cron
	mem  *memsupervisor.Supervisor
	log  zerolog.Logger
}

// Config names the cron schedules for each task; fields left empty fall
// back to the documented default.
type Config struct {
	RateLimitSweepSpec string // default: every minute
	CacheSweepSpec     string // default: every 30 seconds
	ActivitySweepSpec  string // default: every 5 minutes
}

func (c Config) withDefaults() Config {
	if c.RateLimitSweepSpec == "" {
		c.RateLimitSweepSpec = "@every 1m"
	}
	if c.CacheSweepSpec == "" {
		c.CacheSweepSpec = "@every 30s"
	}
	if c.ActivitySweepSpec == "" {
		c.ActivitySweepSpec = "@every 5m"
	}
	return c
}

// New builds a Janitor wired to the components it sweeps. cacheMem may be
// nil when the active cache backend isn't the in-memory store.
func New(cfg Config, limiter *ratelimit.Limiter, cacheMem *cache.MemoryStore, feed *activity.Feed, mem *memsupervisor.Supervisor, log zerolog.Logger) (*Janitor, error) {
	cfg = cfg.withDefaults()
	log = log.With().Str("component", "sweep").Logger()

	c := cron.New()

	if _, err := c.AddFunc(cfg.RateLimitSweepSpec, func() {
		n := limiter.Sweep()
		if n > 0 {
			log.Debug().Int("windows_removed", n).Msg("rate limit windows swept")
		}
	}); err != nil {
		return nil, err
	}

	if cacheMem != nil {
		if _, err := c.AddFunc(cfg.CacheSweepSpec, func() {
			n := cacheMem.SweepExpired()
			if n > 0 {
				log.Debug().Int("entries_evicted", n).Msg("cache entries swept")
			}
		}); err != nil {
			return nil, err
		}
	}

	if _, err := c.AddFunc(cfg.ActivitySweepSpec, func() {
		n := feed.Sweep()
		if n > 0 {
			log.Debug().Int("events_removed", n).Msg("activity events swept")
		}
	}); err != nil {
		return nil, err
	}

	return &Janitor{cron: c, mem: mem, log: log}, nil
}

// Start begins running the scheduled janitors and the memory supervisor's
// sampling loop in the background, both stopping when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	j.cron.Start()
	if j.mem != nil {
		go j.mem.Run(ctx)
	}
	go func() {
		<-ctx.Done()
		stopCtx := j.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
		}
	}()
}
