package receipt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// leafDomain and nodeDomain are domain-separation prefixes for leaf and
// internal node hashing, preventing a leaf hash from ever colliding with
// a node hash. Grounded on Mindburn-Labs-helm's pkg/merkle domain tags.
const (
	leafDomain = "capgate:receipt:leaf:v1"
	nodeDomain = "capgate:receipt:node:v1"
)

// BatchTree is a Merkle tree over a batch of receipts, letting a caller
// who only received one receipt from a batch_invoke prove it was part of
// the batch the gateway committed to.
type BatchTree struct {
	leafHashes []string
	levels     [][]string
	Root       string
}

// BuildBatchTree constructs a tree over receipts in the given order. The
// order must be stable between construction and proof generation — batch
// responses preserve request order for this reason.
func BuildBatchTree(receipts []Receipt) (*BatchTree, error) {
	leaves := make([]string, len(receipts))
	for i, r := range receipts {
		leaves[i] = leafHash(r.ReceiptID)
	}

	t := &BatchTree{leafHashes: leaves}
	if len(leaves) == 0 {
		return t, nil
	}

	level := leaves
	for len(level) > 1 {
		t.levels = append(t.levels, level)
		level = nextLevel(level)
	}
	t.levels = append(t.levels, level)
	t.Root = level[0]
	return t, nil
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R": which side the sibling is on
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof proves one receipt was included in a BatchTree.
type InclusionProof struct {
	ReceiptID string      `json:"receipt_id"`
	LeafHash  string      `json:"leaf_hash"`
	Root      string      `json:"root"`
	Path      []ProofStep `json:"path"`
}

// Prove builds an inclusion proof for the receipt at index i.
func (t *BatchTree) Prove(receipts []Receipt, i int) (InclusionProof, bool) {
	if i < 0 || i >= len(t.leafHashes) {
		return InclusionProof{}, false
	}

	proof := InclusionProof{
		ReceiptID: receipts[i].ReceiptID,
		LeafHash:  t.leafHashes[i],
		Root:      t.Root,
	}

	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		var side string
		var siblingIdx int
		if idx%2 == 0 {
			// current is on the left; sibling is on the right (or the
			// odd-tail duplicate of current itself).
			side = "R"
			siblingIdx = idx + 1
			if siblingIdx >= len(level) {
				siblingIdx = idx
			}
		} else {
			side = "L"
			siblingIdx = idx - 1
		}
		proof.Path = append(proof.Path, ProofStep{Side: side, SiblingHash: level[siblingIdx]})
		idx /= 2
	}

	return proof, true
}

// VerifyInclusion recomputes the root from a proof's leaf hash and path,
// comparing it to expectedRoot.
func VerifyInclusion(proof InclusionProof, expectedRoot string) bool {
	current := proof.LeafHash
	for _, step := range proof.Path {
		if step.Side == "L" {
			current = nodeHash(step.SiblingHash, current)
		} else {
			current = nodeHash(current, step.SiblingHash)
		}
	}
	return current == expectedRoot && proof.Root == expectedRoot
}

func leafHash(receiptID string) string {
	var buf bytes.Buffer
	buf.WriteString(leafDomain)
	buf.WriteByte(0)
	buf.WriteString(receiptID)
	return sha256Hex(buf.Bytes())
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeDomain)
	buf.WriteByte(0)
	buf.Write(mustHex(left))
	buf.Write(mustHex(right))
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	n := len(hashes)
	if n%2 != 0 {
		hashes = append(hashes, hashes[n-1])
		n++
	}
	out := make([]string, n/2)
	for i := 0; i < n; i += 2 {
		out[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return out
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
