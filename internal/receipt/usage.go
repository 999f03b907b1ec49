package receipt

import "time"

// UsageMeta records who consumed a capability and what it cost them,
// separate from the Receipt itself so usage can be aggregated per agent
// without re-parsing every receipt.
type UsageMeta struct {
	AgentID      string    `json:"agent_id,omitempty"`
	CapabilityID string    `json:"capability_id"`
	ReceiptID    string    `json:"receipt_id"`
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latency_ms"`
	ExecutorID   string    `json:"executor_id"`
	PrivacyLevel string    `json:"privacy_level"`
	ProofType    string    `json:"proof_type,omitempty"`
	CostActual   float64   `json:"cost_actual"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewUsageMeta builds a UsageMeta from a generated receipt. proofType is
// threaded in separately since it describes the capability's
// confidential-execution scheme (registry.Execution.ProofType), not
// something the receipt itself carries.
func NewUsageMeta(agentID, proofType string, r Receipt, cacheHit bool) UsageMeta {
	return UsageMeta{
		AgentID:      agentID,
		CapabilityID: r.CapabilityID,
		ReceiptID:    r.ReceiptID,
		Success:      r.Success,
		LatencyMs:    r.DurationMs,
		ExecutorID:   r.ExecutorID,
		PrivacyLevel: r.PrivacyLevel,
		ProofType:    proofType,
		CostActual:   r.CostActual,
		CacheHit:     cacheHit,
		Timestamp:    r.Timestamp,
	}
}
