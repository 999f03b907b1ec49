package receipt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyUnsigned(t *testing.T) {
	r, err := Generate(Params{
		CapabilityID: "cap.price.lookup.v1",
		ExecutorID:   "exec-1",
		InflightKey:  "inflight-1",
		Inputs:       map[string]any{"base_token": "SOL", "quote_token": "USD"},
		Outputs:      map[string]any{"price": 100.0},
		PrivacyLevel: "public",
		DurationMs:   12.5,
		Success:      true,
		CostActual:   0.01,
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, r.ReceiptID)
	require.Len(t, r.ReceiptID, 16)
	require.False(t, Verify(r, nil), "unsigned receipts are never reported verified")
}

func TestGenerateAndVerifySigned(t *testing.T) {
	key := []byte("test-signing-key")
	r, err := Generate(Params{
		CapabilityID: "cap.price.lookup.v1",
		ExecutorID:   "exec-1",
		InflightKey:  "inflight-1",
		Inputs:       map[string]any{"base_token": "SOL"},
		Outputs:      map[string]any{"price": 100.0},
		PrivacyLevel: "public",
		Success:      true,
		CostActual:   0.01,
	}, key)
	require.NoError(t, err)
	require.NotEmpty(t, r.Signature)
	require.True(t, Verify(r, key))
	require.False(t, Verify(r, []byte("wrong-key")))
}

func TestReceiptIDStableForIdenticalInputsDifferentOrder(t *testing.T) {
	r1, err := Generate(Params{
		CapabilityID: "cap.price.lookup.v1",
		ExecutorID:   "exec-1",
		Inputs:       map[string]any{"base_token": "SOL", "quote_token": "USD"},
		Success:      true,
	}, nil)
	require.NoError(t, err)
	r2, err := Generate(Params{
		CapabilityID: "cap.price.lookup.v1",
		ExecutorID:   "exec-1",
		Inputs:       map[string]any{"quote_token": "USD", "base_token": "SOL"},
		Success:      true,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, r1.InputsHash, r2.InputsHash)
}

func TestReputationEWMA(t *testing.T) {
	r := NewReputation()
	first := r.Update("agent-1", 100)
	require.Equal(t, 100.0, first)

	second := r.Update("agent-1", 0)
	require.InDelta(t, 90.0, second, 0.001)
}

func TestReputationExportMerge(t *testing.T) {
	r := NewReputation()
	r.Update("agent-1", 80)

	blob, err := r.Export("agent-1")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	r2 := NewReputation()
	require.NoError(t, r2.Merge(blob))
	require.Equal(t, 80.0, r2.Get("agent-1"))
}

func TestBatchTreeInclusionProof(t *testing.T) {
	receipts := []Receipt{
		{ReceiptID: "aaaa"},
		{ReceiptID: "bbbb"},
		{ReceiptID: "cccc"},
	}
	tree, err := BuildBatchTree(receipts)
	require.NoError(t, err)
	require.NotEmpty(t, tree.Root)

	for i := range receipts {
		proof, ok := tree.Prove(receipts, i)
		require.True(t, ok)
		require.True(t, VerifyInclusion(proof, tree.Root))
	}
}

func TestBatchTreeInclusionProofRejectsTamperedRoot(t *testing.T) {
	receipts := []Receipt{{ReceiptID: "aaaa"}, {ReceiptID: "bbbb"}}
	tree, err := BuildBatchTree(receipts)
	require.NoError(t, err)

	proof, ok := tree.Prove(receipts, 0)
	require.True(t, ok)
	require.False(t, VerifyInclusion(proof, "not-the-real-root"))
}
