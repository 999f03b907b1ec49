package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClosedAllowsUntilThreshold(t *testing.T) {
	r := New(3, time.Minute)
	id := "cap.price.lookup.v1"

	require.True(t, r.AllowRequest(id))
	r.RecordFailure(id)
	require.Equal(t, Closed, r.State(id))
	r.RecordFailure(id)
	require.Equal(t, Closed, r.State(id))
	r.RecordFailure(id)
	require.Equal(t, Open, r.State(id))
}

func TestOpenRejectsDuringCooldown(t *testing.T) {
	r := New(1, time.Minute)
	id := "cap.x.v1"

	r.RecordFailure(id)
	require.Equal(t, Open, r.State(id))
	require.False(t, r.AllowRequest(id))
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	r := New(1, 5*time.Millisecond)
	id := "cap.x.v1"

	r.RecordFailure(id)
	time.Sleep(10 * time.Millisecond)

	require.True(t, r.AllowRequest(id))
	require.Equal(t, HalfOpen, r.State(id))
	require.False(t, r.AllowRequest(id), "second concurrent probe must be rejected")
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	r := New(1, 5*time.Millisecond)
	id := "cap.x.v1"

	r.RecordFailure(id)
	time.Sleep(10 * time.Millisecond)
	require.True(t, r.AllowRequest(id))

	r.RecordSuccess(id)
	require.Equal(t, Closed, r.State(id))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := New(1, 5*time.Millisecond)
	id := "cap.x.v1"

	r.RecordFailure(id)
	time.Sleep(10 * time.Millisecond)
	require.True(t, r.AllowRequest(id))

	r.RecordFailure(id)
	require.Equal(t, Open, r.State(id))
}

func TestResetForcesClosed(t *testing.T) {
	r := New(1, time.Minute)
	id := "cap.x.v1"

	r.RecordFailure(id)
	require.Equal(t, Open, r.State(id))

	r.Reset(id)
	require.Equal(t, Closed, r.State(id))
	require.True(t, r.AllowRequest(id))
}
