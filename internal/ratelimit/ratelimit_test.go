package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAndConsumeAllowsUpToLimit(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.CheckAndConsume(ScopeGlobal, GlobalKey)
		require.True(t, d.Allowed)
	}

	d := l.CheckAndConsume(ScopeGlobal, GlobalKey)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestScopesAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	require.True(t, l.CheckAndConsume(ScopeIdentity, "agent-a").Allowed)
	require.True(t, l.CheckAndConsume(ScopeIdentity, "agent-b").Allowed)
	require.False(t, l.CheckAndConsume(ScopeIdentity, "agent-a").Allowed)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l := New(1, 10*time.Millisecond)

	require.True(t, l.CheckAndConsume(ScopeGlobal, GlobalKey).Allowed)
	require.False(t, l.CheckAndConsume(ScopeGlobal, GlobalKey).Allowed)

	time.Sleep(20 * time.Millisecond)
	require.True(t, l.CheckAndConsume(ScopeGlobal, GlobalKey).Allowed)
}

func TestUpdateLoadShrinksEffectiveLimit(t *testing.T) {
	l := New(10, time.Minute)
	l.UpdateLoad(90, 0)

	for i := 0; i < 5; i++ {
		require.True(t, l.CheckAndConsume(ScopeGlobal, GlobalKey).Allowed)
	}
	require.False(t, l.CheckAndConsume(ScopeGlobal, GlobalKey).Allowed)
}

func TestSweepRemovesStaleWindows(t *testing.T) {
	l := New(5, time.Millisecond)
	l.CheckAndConsume(ScopeIdentity, "agent-a")
	time.Sleep(10 * time.Millisecond)

	removed := l.Sweep()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, l.TrackedCount())
}
