package capgate

import (
	"context"
	"fmt"
	"net/url"
)

// ResetCircuitBreakerResponse confirms a breaker reset.
type ResetCircuitBreakerResponse struct {
	CapabilityID string `json:"capability_id"`
	State        string `json:"state"`
}

// ResetCircuitBreaker forces the named capability's breaker back to closed.
func (c *Client) ResetCircuitBreaker(ctx context.Context, capabilityID string) (*ResetCircuitBreakerResponse, error) {
	var result ResetCircuitBreakerResponse
	path := fmt.Sprintf("/v1/circuit_breakers/%s/reset", url.PathEscape(capabilityID))
	if err := c.request(ctx, "POST", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MetricsCell is the per-capability metrics snapshot.
type MetricsCell struct {
	CapabilityID string  `json:"capability_id"`
	Invocations  int64   `json:"total"`
	Successes    int64   `json:"success"`
	Failures     int64   `json:"failed"`
	LatencyAvg   float64 `json:"avg_latency_ms"`
	CostSum      float64 `json:"cost_sum"`
}

// MetricsResponse is the reply when no capability id is given: every
// capability's cell plus the system-wide rollup.
type MetricsResponse struct {
	Capabilities []MetricsCell          `json:"capabilities"`
	System       map[string]interface{} `json:"system"`
}

// GetMetrics returns metrics for one capability when id is non-empty, or
// the full registry-wide rollup when id is empty.
func (c *Client) GetMetrics(ctx context.Context, id string) (*MetricsResponse, error) {
	if id == "" {
		var result MetricsResponse
		if err := c.request(ctx, "GET", "/v1/metrics", nil, &result); err != nil {
			return nil, err
		}
		return &result, nil
	}
	var cell MetricsCell
	path := fmt.Sprintf("/v1/metrics/%s", url.PathEscape(id))
	if err := c.request(ctx, "GET", path, nil, &cell); err != nil {
		return nil, err
	}
	return &MetricsResponse{Capabilities: []MetricsCell{cell}}, nil
}

// SystemHealth is the gateway's aggregate health snapshot.
type SystemHealth struct {
	Status      string                 `json:"status"`
	UptimeSecs  int64                  `json:"uptime_seconds"`
	LoadFactor  float64                `json:"load_factor"`
	Memory      map[string]interface{} `json:"memory"`
	Cache       map[string]interface{} `json:"cache"`
	Requests    map[string]interface{} `json:"requests"`
	Performance map[string]interface{} `json:"performance"`
}

// GetSystemHealth returns the gateway's overall health and load snapshot.
func (c *Client) GetSystemHealth(ctx context.Context) (*SystemHealth, error) {
	var result SystemHealth
	if err := c.request(ctx, "GET", "/v1/system/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
