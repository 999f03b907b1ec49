package executor

import (
	"context"
	"testing"

	"github.com/capgate/gateway/internal/registry"
	"github.com/stretchr/testify/require"
)

func descriptor(id string, mode registry.ExecutionMode, hint string) registry.Descriptor {
	return registry.Descriptor{
		ID: id,
		Execution: registry.Execution{
			Mode:         mode,
			ExecutorHint: hint,
		},
	}
}

func TestResolveExplicitHintWins(t *testing.T) {
	p := NewPool()
	pl := NewPriceLookup("exec-price-1")
	p.Register(pl)

	e, err := p.Resolve(descriptor("cap.price.lookup.v1", registry.ModePublic, "exec-price-1"))
	require.NoError(t, err)
	require.Equal(t, "exec-price-1", e.ID())
}

func TestResolveDeclaredCapability(t *testing.T) {
	p := NewPool()
	cw := NewConfidentialWrap("exec-cspl-1")
	p.Register(cw, "cap.cspl.wrap.v1")

	e, err := p.Resolve(descriptor("cap.cspl.wrap.v1", registry.ModeConfidential, ""))
	require.NoError(t, err)
	require.Equal(t, "exec-cspl-1", e.ID())
}

func TestResolvePublicFallback(t *testing.T) {
	p := NewPool()
	p.Register(NewPriceLookup("exec-price-1"))

	e, err := p.Resolve(descriptor("cap.price.lookup.v1", registry.ModePublic, ""))
	require.NoError(t, err)
	require.Equal(t, "exec-price-1", e.ID())
}

func TestResolveConfidentialNeverFallsBackToPublic(t *testing.T) {
	p := NewPool()
	p.Register(NewPriceLookup("exec-price-1")) // public only, doesn't support cspl.wrap anyway

	_, err := p.Resolve(descriptor("cap.cspl.wrap.v1", registry.ModeConfidential, ""))
	require.Error(t, err)
	var noExec *ErrNoExecutor
	require.ErrorAs(t, err, &noExec)
}

func TestPriceLookupExecute(t *testing.T) {
	e := NewPriceLookup("exec-price-1")
	result, err := e.Execute(context.Background(), registry.Descriptor{ID: "cap.price.lookup.v1"}, map[string]any{
		"base_token":  "SOL",
		"quote_token": "USD",
	})
	require.NoError(t, err)
	require.Equal(t, "SOL", result.Outputs["base_token"])
	require.Equal(t, "exec-price-1", result.ExecutorID)
}

func TestPriceLookupMissingInputs(t *testing.T) {
	e := NewPriceLookup("exec-price-1")
	_, err := e.Execute(context.Background(), registry.Descriptor{ID: "cap.price.lookup.v1"}, map[string]any{})
	require.Error(t, err)
}
