// Package receipt generates and verifies execution receipts (C9): a
// canonical-hash-backed proof of what was invoked, on what inputs, with
// what outputs, optionally HMAC-signed. It also carries usage metadata,
// an EWMA reputation scorer, and Merkle inclusion proofs for batched
// invocations.
package receipt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/capgate/gateway/internal/canonical"
)

// Receipt is the signed record of one capability invocation.
type Receipt struct {
	ReceiptID    string    `json:"receipt_id"`
	CapabilityID string    `json:"capability_id"`
	ExecutorID   string    `json:"executor_id"`
	InflightKey  string    `json:"inflight_key,omitempty"`
	InputsHash   string    `json:"inputs_hash"`
	OutputsHash  string    `json:"outputs_hash"`
	PrivacyLevel string    `json:"privacy_level"`
	DurationMs   float64   `json:"duration_ms"`
	Success      bool      `json:"success"`
	CostActual   float64   `json:"cost_actual"`
	Proof        string    `json:"proof,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Signature    string    `json:"signature,omitempty"`
}

// canonicalBody is the subset of fields over which ReceiptID and
// Signature are computed — excludes ReceiptID and Signature themselves,
// so signing can't be circular.
type canonicalBody struct {
	CapabilityID string    `json:"capability_id"`
	ExecutorID   string    `json:"executor_id"`
	InflightKey  string    `json:"inflight_key,omitempty"`
	InputsHash   string    `json:"inputs_hash"`
	OutputsHash  string    `json:"outputs_hash"`
	PrivacyLevel string    `json:"privacy_level"`
	DurationMs   float64   `json:"duration_ms"`
	Success      bool      `json:"success"`
	CostActual   float64   `json:"cost_actual"`
	Proof        string    `json:"proof,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Params is one invocation's worth of material to seal into a receipt.
type Params struct {
	CapabilityID string
	ExecutorID   string
	InflightKey  string
	Inputs       map[string]any
	Outputs      map[string]any
	PrivacyLevel string
	DurationMs   float64
	Success      bool
	CostActual   float64
	Proof        string
	AgentID      string
}

// Generate builds a receipt for one invocation. When signingKey is
// non-empty the receipt is HMAC-SHA256 signed over its canonical body;
// an empty key leaves Signature blank (signing is optional, per the
// spec's open question on signature scheme).
func Generate(p Params, signingKey []byte) (Receipt, error) {
	inputsHash, err := canonical.Hash(p.Inputs)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: hash inputs: %w", err)
	}

	var outputsHash string
	if p.Outputs != nil {
		outputsHash, err = canonical.Hash(p.Outputs)
		if err != nil {
			return Receipt{}, fmt.Errorf("receipt: hash outputs: %w", err)
		}
	}

	body := canonicalBody{
		CapabilityID: p.CapabilityID,
		ExecutorID:   p.ExecutorID,
		InflightKey:  p.InflightKey,
		InputsHash:   inputsHash,
		OutputsHash:  outputsHash,
		PrivacyLevel: p.PrivacyLevel,
		DurationMs:   p.DurationMs,
		Success:      p.Success,
		CostActual:   p.CostActual,
		Proof:        p.Proof,
		AgentID:      p.AgentID,
		Timestamp:    time.Now().UTC(),
	}

	bodyBytes, err := canonical.Encode(body)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: encode body: %w", err)
	}

	sum := sha256.Sum256(bodyBytes)
	receiptID := hex.EncodeToString(sum[:])[:16]

	var signature string
	if len(signingKey) > 0 {
		signature = sign(signingKey, bodyBytes)
	}

	return Receipt{
		ReceiptID:    receiptID,
		CapabilityID: body.CapabilityID,
		ExecutorID:   body.ExecutorID,
		InflightKey:  body.InflightKey,
		InputsHash:   body.InputsHash,
		OutputsHash:  body.OutputsHash,
		PrivacyLevel: body.PrivacyLevel,
		DurationMs:   body.DurationMs,
		Success:      body.Success,
		CostActual:   body.CostActual,
		Proof:        body.Proof,
		AgentID:      body.AgentID,
		Timestamp:    body.Timestamp,
		Signature:    signature,
	}, nil
}

func sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether r's signature matches its canonical body under
// signingKey, using a constant-time comparison. A receipt with no
// signature is considered unverifiable, not valid — callers that need
// tamper-evidence must configure signing.
func Verify(r Receipt, signingKey []byte) bool {
	if r.Signature == "" || len(signingKey) == 0 {
		return false
	}

	body := canonicalBody{
		CapabilityID: r.CapabilityID,
		ExecutorID:   r.ExecutorID,
		InflightKey:  r.InflightKey,
		InputsHash:   r.InputsHash,
		OutputsHash:  r.OutputsHash,
		PrivacyLevel: r.PrivacyLevel,
		DurationMs:   r.DurationMs,
		Success:      r.Success,
		CostActual:   r.CostActual,
		Proof:        r.Proof,
		AgentID:      r.AgentID,
		Timestamp:    r.Timestamp,
	}
	bodyBytes, err := canonical.Encode(body)
	if err != nil {
		return false
	}

	expected := sign(signingKey, bodyBytes)
	return hmac.Equal([]byte(expected), []byte(r.Signature))
}
