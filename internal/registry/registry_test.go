package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleDescriptor(id string, mode ExecutionMode, tags ...string) Descriptor {
	return Descriptor{
		ID:      id,
		Name:    id,
		Version: "v1",
		Execution: Execution{
			Mode: mode,
		},
		Performance: Performance{LatencyHint: LatencyLow, ReliabilityHint: 0.99},
		Metadata:    Metadata{Tags: tags},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	d := sampleDescriptor("cap.price.lookup.v1", ModePublic, "finance")
	require.NoError(t, r.Register(d))

	got, ok := r.Get("cap.price.lookup.v1")
	require.True(t, ok)
	require.Equal(t, d, got)

	_, ok = r.Get("cap.unknown.v1")
	require.False(t, ok)
}

func TestRegisterDuplicateIsFatalError(t *testing.T) {
	r := New()
	d := sampleDescriptor("cap.price.lookup.v1", ModePublic)
	require.NoError(t, r.Register(d))

	err := r.Register(d)
	require.Error(t, err)
	var dupErr *ErrDuplicateID
	require.ErrorAs(t, err, &dupErr)
}

func TestListFiltersByTagAndMode(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(sampleDescriptor("cap.price.lookup.v1", ModePublic, "finance")))
	require.NoError(t, r.Register(sampleDescriptor("cap.cspl.wrap.v1", ModeConfidential, "privacy")))
	require.NoError(t, r.Register(sampleDescriptor("cap.price.stream.v1", ModePublic, "finance", "streaming")))

	pub := r.List(Filter{Mode: ModePublic})
	require.Len(t, pub, 2)

	finance := r.List(Filter{Tag: "finance"})
	require.Len(t, finance, 2)

	both := r.List(Filter{Mode: ModePublic, Tag: "streaming"})
	require.Len(t, both, 1)
	require.Equal(t, "cap.price.stream.v1", both[0].ID)
}

func TestSummary(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(sampleDescriptor("cap.a.v1", ModePublic, "x")))
	require.NoError(t, r.Register(sampleDescriptor("cap.b.v1", ModeConfidential, "x", "y")))

	s := r.Summary()
	require.Equal(t, 2, s.Total)
	require.Equal(t, 1, s.PublicCount)
	require.Equal(t, 1, s.ConfidentialCount)
	require.Equal(t, 2, s.ByTag["x"])
	require.Equal(t, 1, s.ByTag["y"])
}

func TestValidID(t *testing.T) {
	require.True(t, ValidID("cap.price.lookup.v1"))
	require.True(t, ValidID("cap.cspl.wrap.v12"))
	require.False(t, ValidID("cap.Price.lookup.v1"))
	require.False(t, ValidID("price.lookup.v1"))
	require.False(t, ValidID("cap.price.lookup"))
}
