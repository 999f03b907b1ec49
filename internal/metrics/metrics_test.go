package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesAverage(t *testing.T) {
	s := NewStore()
	s.Record("cap.price.lookup.v1", true, 100, 0.01)
	s.Record("cap.price.lookup.v1", true, 200, 0.01)
	s.Record("cap.price.lookup.v1", false, 300, 0.01)

	c, ok := s.Get("cap.price.lookup.v1")
	require.True(t, ok)
	require.Equal(t, int64(3), c.Total)
	require.Equal(t, int64(2), c.Success)
	require.Equal(t, int64(1), c.Failed)
	require.InDelta(t, 200.0, c.LatencyAvg, 0.001)
	require.Equal(t, 100.0, c.LatencyMin)
	require.Equal(t, 300.0, c.LatencyMax)
	require.InDelta(t, 0.03, c.CostSum, 0.0001)
}

func TestGetUnknownCapability(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("cap.unknown.v1")
	require.False(t, ok)
}

func TestTopOrdersByTotalDescending(t *testing.T) {
	s := NewStore()
	s.Record("cap.a.v1", true, 10, 0)
	s.Record("cap.b.v1", true, 10, 0)
	s.Record("cap.b.v1", true, 10, 0)
	s.Record("cap.c.v1", true, 10, 0)
	s.Record("cap.c.v1", true, 10, 0)
	s.Record("cap.c.v1", true, 10, 0)

	top := s.Top(2)
	require.Len(t, top, 2)
	require.Equal(t, "cap.c.v1", top[0].CapabilityID)
	require.Equal(t, "cap.b.v1", top[1].CapabilityID)
}

func TestSlowestFiltersZeroTotal(t *testing.T) {
	s := NewStore()
	s.Record("cap.fast.v1", true, 10, 0)
	s.Record("cap.slow.v1", true, 500, 0)

	slowest := s.Slowest(5)
	require.Len(t, slowest, 2)
	require.Equal(t, "cap.slow.v1", slowest[0].CapabilityID)
}

func TestSystemSummary(t *testing.T) {
	s := NewStore()
	s.Record("cap.a.v1", true, 10, 0)
	s.Record("cap.b.v1", true, 20, 0)

	sys := s.System()
	require.Equal(t, int64(2), sys.Total)
	require.Equal(t, 2, sys.Capabilities)
	require.Equal(t, 2, sys.RPM)
	require.GreaterOrEqual(t, sys.UptimeMs, int64(0))
}
