package receipt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
)

// reputationAlpha is the EWMA smoothing factor: score' = α·signal +
// (1-α)·score. A small α weights history heavily, so a single bad
// signal can't swing an agent's score.
const reputationAlpha = 0.1

// Reputation tracks a per-agent exponentially weighted moving average
// score, on the same scale as the signals it is fed (cmd/gateway feeds
// 1 for a successful invocation and 0 for a failed one).
type Reputation struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewReputation creates an empty reputation tracker.
func NewReputation() *Reputation {
	return &Reputation{scores: make(map[string]float64)}
}

// Update folds a new signal into agentID's score and returns the updated
// value. Unseen agents start from the signal itself.
func (r *Reputation) Update(agentID string, signal float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	score, ok := r.scores[agentID]
	if !ok {
		r.scores[agentID] = signal
		return signal
	}

	score = reputationAlpha*signal + (1-reputationAlpha)*score
	r.scores[agentID] = score
	return score
}

// Get returns an agent's current score, or 0 if unseen.
func (r *Reputation) Get(agentID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[agentID]
}

// exportedScore is the wire shape for a portable reputation blob.
type exportedScore struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Export serializes an agent's score as an opaque base64 blob, suitable
// for handing to another gateway instance or a client that wants to
// carry reputation across sessions.
func (r *Reputation) Export(agentID string) (string, error) {
	r.mu.RLock()
	score := r.scores[agentID]
	r.mu.RUnlock()

	raw, err := json.Marshal(exportedScore{AgentID: agentID, Score: score})
	if err != nil {
		return "", fmt.Errorf("reputation: export: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Merge decodes a blob produced by Export and folds it into the local
// score as a weighted average — giving the imported score the same
// weight as one EWMA update, so a single import can't fully overwrite
// local history.
func (r *Reputation) Merge(blob string) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("reputation: merge: decode: %w", err)
	}

	var es exportedScore
	if err := json.Unmarshal(raw, &es); err != nil {
		return fmt.Errorf("reputation: merge: unmarshal: %w", err)
	}

	r.Update(es.AgentID, es.Score)
	return nil
}
