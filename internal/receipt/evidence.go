package receipt

import (
	"encoding/json"
	"fmt"
	"time"
)

// EvidencePack bundles a batch's receipts with the Merkle root and each
// receipt's inclusion proof, so a caller can hand the whole pack to a
// third party who only needs the root to verify any individual receipt.
// Grounded on Mindburn-Labs-helm's EvidencePack concept (pkg/executor/
// evidence_pack.go) scoped down to this gateway's receipt/proof shape —
// the actor/policy/delegation provenance fields in Mindburn's contract
// don't apply here; receipts already carry capability and executor
// identity.
type EvidencePack struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Root        string           `json:"merkle_root"`
	Receipts    []Receipt        `json:"receipts"`
	Proofs      []InclusionProof `json:"proofs"`
}

// BuildEvidencePack builds a pack covering every receipt in a batch.
func BuildEvidencePack(receipts []Receipt) (EvidencePack, error) {
	tree, err := BuildBatchTree(receipts)
	if err != nil {
		return EvidencePack{}, fmt.Errorf("evidence: build tree: %w", err)
	}

	proofs := make([]InclusionProof, 0, len(receipts))
	for i := range receipts {
		proof, ok := tree.Prove(receipts, i)
		if !ok {
			return EvidencePack{}, fmt.Errorf("evidence: proof for index %d", i)
		}
		proofs = append(proofs, proof)
	}

	return EvidencePack{
		GeneratedAt: time.Now().UTC(),
		Root:        tree.Root,
		Receipts:    receipts,
		Proofs:      proofs,
	}, nil
}

// Export serializes the pack to indented JSON for download/export
// endpoints.
func (p EvidencePack) Export() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
