package capgate

import "context"

// Receipt mirrors the gateway's signed execution receipt (§4.9/C9).
type Receipt struct {
	ReceiptID    string  `json:"receipt_id"`
	CapabilityID string  `json:"capability_id"`
	ExecutorID   string  `json:"executor_id"`
	InflightKey  string  `json:"inflight_key,omitempty"`
	InputsHash   string  `json:"inputs_hash"`
	OutputsHash  string  `json:"outputs_hash"`
	PrivacyLevel string  `json:"privacy_level"`
	DurationMs   float64 `json:"duration_ms"`
	Success      bool    `json:"success"`
	CostActual   float64 `json:"cost_actual"`
	Proof        string  `json:"proof,omitempty"`
	AgentID      string  `json:"agent_id,omitempty"`
	Timestamp    string  `json:"timestamp"`
	Signature    string  `json:"signature,omitempty"`
}

// InvokeRequest is one invocation request body.
type InvokeRequest struct {
	CapabilityID string                 `json:"capability_id"`
	Inputs       map[string]interface{} `json:"inputs,omitempty"`
	NoCache      bool                   `json:"no_cache,omitempty"`
	Priority     string                 `json:"priority,omitempty"` // critical, high, normal, low
}

// InvokeResult is the reply to an invocation, successful or not.
type InvokeResult struct {
	Success     bool                   `json:"success"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Error       *Error                 `json:"error,omitempty"`
	Receipt     Receipt                `json:"receipt"`
	CostActual  float64                `json:"cost_actual"`
	ExecutionMs float64                `json:"execution_ms"`
	CacheHit    bool                   `json:"cache_hit"`
	QueueWaitMs float64                `json:"queue_wait_ms"`
	Warning     string                 `json:"warning,omitempty"`
}

// Invoke calls invoke(capability_id, inputs) and returns the result.
func (c *Client) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	var result InvokeResult
	if err := c.request(ctx, "POST", "/v1/invoke", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueuedInvoke calls queued_invoke, identical to Invoke but admitted
// through the priority queue under req.Priority.
func (c *Client) QueuedInvoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	var result InvokeResult
	if err := c.request(ctx, "POST", "/v1/queued_invoke", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BatchResponse wraps the per-item results of a batch invocation.
type BatchResponse struct {
	Results []InvokeResult `json:"results"`
}

// Batch invokes up to 10 requests and returns per-item results; the
// batch call itself only fails on transport or validation errors (e.g.
// more than 10 items) — individual item failures are reported inline.
func (c *Client) Batch(ctx context.Context, reqs []InvokeRequest) (*BatchResponse, error) {
	var result BatchResponse
	if err := c.request(ctx, "POST", "/v1/batch", reqs, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ComposeStep is one step of a compose operation.
type ComposeStep struct {
	CapabilityID string                 `json:"capability_id"`
	Inputs       map[string]interface{} `json:"inputs,omitempty"`
}

// ComposeRequest is an ordered sequence of invocation steps.
type ComposeRequest struct {
	Steps       []ComposeStep `json:"steps"`
	StopOnError *bool         `json:"stop_on_error,omitempty"` // defaults true server-side when nil
}

// ComposeResponse wraps the per-step outcomes of a compose operation.
type ComposeResponse struct {
	Results []InvokeResult `json:"results"`
}

// Compose runs an ordered list of steps, stopping after the first
// failure unless req.StopOnError is explicitly false.
func (c *Client) Compose(ctx context.Context, req *ComposeRequest) (*ComposeResponse, error) {
	var result ComposeResponse
	if err := c.request(ctx, "POST", "/v1/compose", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
