package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/capgate/gateway/internal/registry"
)

// PriceLookup is a demo public executor serving cap.price.lookup.v1, the
// worked example from the end-to-end scenarios: it echoes a synthetic
// quote for a base/quote token pair. Grounded on the teacher's
// provider.Provider shape, but with one HTTP-free synthetic backend
// instead of a real upstream, since outbound price-feed clients are out
// of scope (they are opaque Executor implementations, per spec).
type PriceLookup struct {
	id  string
	src *rand.Rand
}

// NewPriceLookup creates the demo price-lookup executor.
func NewPriceLookup(id string) *PriceLookup {
	return &PriceLookup{id: id, src: rand.New(rand.NewSource(1))}
}

func (p *PriceLookup) ID() string { return p.id }

func (p *PriceLookup) Supports(capabilityID string) bool {
	return capabilityID == "cap.price.lookup.v1"
}

func (p *PriceLookup) Public() bool { return true }

// Execute returns a deterministic-shape synthetic quote. Real deployments
// would swap this executor for one backed by an actual price feed client.
func (p *PriceLookup) Execute(ctx context.Context, d registry.Descriptor, inputs map[string]any) (Result, error) {
	base, _ := inputs["base_token"].(string)
	quote, _ := inputs["quote_token"].(string)
	if base == "" || quote == "" {
		return Result{}, fmt.Errorf("price_lookup: base_token and quote_token are required")
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	price := 1.0 + p.src.Float64()*100
	return Result{
		Outputs: map[string]any{
			"base_token":  base,
			"quote_token": quote,
			"price":       price,
			"as_of":       time.Now().UTC().Format(time.RFC3339),
		},
		CostActual: 0.0001,
		ExecutorID: p.id,
	}, nil
}

// ConfidentialWrap is a demo confidential-mode executor serving
// cap.cspl.wrap.v1. It never registers as Public(), so the selection
// logic can only reach it via explicit hint or declared-capability
// membership — never via public fallback.
type ConfidentialWrap struct {
	id string
}

// NewConfidentialWrap creates the demo confidential executor.
func NewConfidentialWrap(id string) *ConfidentialWrap {
	return &ConfidentialWrap{id: id}
}

func (c *ConfidentialWrap) ID() string { return c.id }

func (c *ConfidentialWrap) Supports(capabilityID string) bool {
	return capabilityID == "cap.cspl.wrap.v1"
}

func (c *ConfidentialWrap) Public() bool { return false }

func (c *ConfidentialWrap) Execute(ctx context.Context, d registry.Descriptor, inputs map[string]any) (Result, error) {
	payload, _ := inputs["payload"].(string)
	if payload == "" {
		return Result{}, fmt.Errorf("confidential_wrap: payload is required")
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	return Result{
		Outputs: map[string]any{
			"wrapped":   fmt.Sprintf("sealed:%x", []byte(payload)),
			"scheme":    "demo-confidential-v1",
		},
		CostActual: 0.002,
		Proof:      "proof:demo",
		ExecutorID: c.id,
	}, nil
}
