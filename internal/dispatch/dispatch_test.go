package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/capgate/gateway/internal/activity"
	"github.com/capgate/gateway/internal/breaker"
	"github.com/capgate/gateway/internal/cache"
	"github.com/capgate/gateway/internal/executor"
	"github.com/capgate/gateway/internal/identity"
	"github.com/capgate/gateway/internal/metrics"
	"github.com/capgate/gateway/internal/obslog"
	"github.com/capgate/gateway/internal/queue"
	"github.com/capgate/gateway/internal/ratelimit"
	"github.com/capgate/gateway/internal/receipt"
	"github.com/capgate/gateway/internal/registry"
)

type fakeExecutor struct {
	id      string
	public  bool
	outputs map[string]any
	cost    float64
	err     error
	delay   time.Duration
}

func (f *fakeExecutor) ID() string                  { return f.id }
func (f *fakeExecutor) Supports(capID string) bool  { return true }
func (f *fakeExecutor) Public() bool                { return f.public }
func (f *fakeExecutor) Execute(ctx context.Context, d registry.Descriptor, inputs map[string]any) (executor.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return executor.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return executor.Result{}, f.err
	}
	return executor.Result{Outputs: f.outputs, CostActual: f.cost, ExecutorID: f.id}, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *executor.Pool) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(registry.Descriptor{
		ID:   "cap.test.v1",
		Name: "Test capability",
		Execution: registry.Execution{
			Mode: registry.ModePublic,
		},
		Performance: registry.Performance{LatencyHint: registry.LatencyLow},
	}))
	require.NoError(t, reg.Register(registry.Descriptor{
		ID:   "cap.confidential.v1",
		Name: "Confidential capability",
		Execution: registry.Execution{
			Mode: registry.ModeConfidential,
		},
		Performance: registry.Performance{LatencyHint: registry.LatencyLow},
	}))

	pool := executor.NewPool()

	cacheStore, err := cache.New(100, "")
	require.NoError(t, err)

	signingKey := []byte("test-signing-key")
	tokenKey := []byte("test-token-key")

	d := &Dispatcher{
		Registry:      reg,
		Identities:    identity.New(),
		RateLimit:     ratelimit.New(1000, time.Minute),
		Breaker:       breaker.New(3, time.Minute),
		Cache:         cacheStore,
		Queue:         queue.New(queue.Limits{Critical: 4, High: 4, Normal: 4, Low: 4}, 50*time.Millisecond),
		Executors:     pool,
		Metrics:       metrics.NewStore(),
		Activity:      activity.New(1000, time.Hour),
		Log:           obslog.NewRing(100, zerolog.Nop()),
		SigningKey:    signingKey,
		TokenVerifier: identity.NewTokenVerifier(tokenKey),
		UsageSink:     receipt.NewUsageSink(16),
	}
	return d, reg, pool
}

func TestInvokeSuccessReturnsOutputsAndReceipt(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{"price": 42}, cost: 0.01}, "cap.test.v1")

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Inputs: map[string]any{"a": 1}})

	require.True(t, res.Success)
	require.Equal(t, 42, res.Outputs["price"])
	require.NotEmpty(t, res.Receipt.ReceiptID)
	require.NotEmpty(t, res.Receipt.Signature)
}

func TestInvokeUnknownCapabilityIsNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.missing.v1"})

	require.False(t, res.Success)
	require.Equal(t, KindNotFound, res.Error.Kind)
}

func TestInvokeConfidentialWithoutTokenIsForbidden(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: false, outputs: map[string]any{}}, "cap.confidential.v1")

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.confidential.v1"})

	require.False(t, res.Success)
	require.Equal(t, KindForbidden, res.Error.Kind)
}

func TestInvokeConfidentialWithValidTokenSucceeds(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: false, outputs: map[string]any{"ok": true}}, "cap.confidential.v1")

	token, err := identity.IssueToken([]byte("test-token-key"), "agent-1", []string{"cap.confidential.v1"}, time.Minute)
	require.NoError(t, err)

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.confidential.v1", CapabilityJWT: token})
	require.True(t, res.Success)
}

func TestInvokeRateLimitedReturnsRateLimitedKind(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{}}, "cap.test.v1")
	d.RateLimit = ratelimit.New(1, time.Minute)

	first := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1"})
	require.True(t, first.Success)

	second := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1"})
	require.False(t, second.Success)
	require.Equal(t, KindRateLimited, second.Error.Kind)
}

func TestInvokeNoEligibleExecutorIsServiceUnavailable(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1"})

	require.False(t, res.Success)
	require.Equal(t, KindServiceUnavailable, res.Error.Kind)
}

func TestInvokeSecondCallIsServedFromCache(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{"v": 1}, cost: 1.0}, "cap.test.v1")

	first := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Inputs: map[string]any{"x": 1}})
	require.True(t, first.Success)
	require.False(t, first.CacheHit)

	second := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Inputs: map[string]any{"x": 1}})
	require.True(t, second.Success)
	require.True(t, second.CacheHit)
}

func TestInvokeExecutorFailureOpensCircuitAfterThreshold(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, err: context.Canceled}, "cap.test.v1")
	d.Breaker = breaker.New(2, time.Minute)

	for i := 0; i < 2; i++ {
		res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Inputs: map[string]any{"i": i}})
		require.False(t, res.Success)
	}

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Inputs: map[string]any{"i": 99}})
	require.False(t, res.Success)
	require.Equal(t, KindServiceUnavailable, res.Error.Kind)
}

func TestInvokeTimeoutClassifiesAsTimeout(t *testing.T) {
	d, reg, pool := newTestDispatcher(t)
	desc, _ := reg.Get("cap.test.v1")
	desc.Performance.LatencyHint = registry.LatencyLow
	pool.Register(&fakeExecutor{id: "exec-1", public: true, delay: 50 * time.Millisecond}, "cap.test.v1")

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", DeadlineOverride: 5 * time.Millisecond})

	require.False(t, res.Success)
	require.Equal(t, KindTimeout, res.Error.Kind)
}

func TestInvokeDeprecatedCapabilityStillServedWithWarning(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Descriptor{
		ID:         "cap.old.v1",
		Execution:  registry.Execution{Mode: registry.ModePublic},
		Deprecated: true,
	}))
	pool := executor.NewPool()
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{}}, "cap.old.v1")

	d := &Dispatcher{
		Registry:      reg,
		Identities:    identity.New(),
		RateLimit:     ratelimit.New(1000, time.Minute),
		Breaker:       breaker.New(3, time.Minute),
		Cache:         mustCache(t),
		Queue:         queue.New(queue.Limits{Critical: 1, High: 1, Normal: 1, Low: 1}, time.Second),
		Executors:     pool,
		Metrics:       metrics.NewStore(),
		Activity:      activity.New(1000, time.Hour),
		Log:           obslog.NewRing(100, zerolog.Nop()),
		TokenVerifier: identity.NewTokenVerifier([]byte("k")),
	}

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.old.v1"})
	require.True(t, res.Success)
	require.NotEmpty(t, res.Warning)
}

type alwaysCritical struct{}

func (alwaysCritical) OverCritical() bool { return true }

func TestInvokeUnderCriticalMemoryPressureRejectsNonCriticalPriority(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{}}, "cap.test.v1")
	d.Memory = alwaysCritical{}

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Priority: queue.Normal})
	require.False(t, res.Success)
	require.Equal(t, KindServiceUnavailable, res.Error.Kind)
}

func TestInvokeUnderCriticalMemoryPressureStillServesCriticalPriority(t *testing.T) {
	d, _, pool := newTestDispatcher(t)
	pool.Register(&fakeExecutor{id: "exec-1", public: true, outputs: map[string]any{"ok": true}}, "cap.test.v1")
	d.Memory = alwaysCritical{}

	res := d.Invoke(context.Background(), Request{CapabilityID: "cap.test.v1", Priority: queue.Critical})
	require.True(t, res.Success)
}

func mustCache(t *testing.T) cache.Store {
	t.Helper()
	s, err := cache.New(100, "")
	require.NoError(t, err)
	return s
}
