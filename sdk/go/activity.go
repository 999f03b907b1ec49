package capgate

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// ActivityEvent mirrors one entry on the gateway's activity feed.
type ActivityEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	AgentID    string                 `json:"agent_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Visibility string                 `json:"visibility"`
	Timestamp  time.Time              `json:"timestamp"`
}

// QueryActivityOptions narrows an activity feed query.
type QueryActivityOptions struct {
	AgentID string
	Since   time.Time
	Limit   int
}

// QueryActivityResponse wraps the matching events.
type QueryActivityResponse struct {
	Events []ActivityEvent `json:"events"`
}

// QueryActivity fetches recent activity events, optionally scoped to one
// agent and/or a time window. The gateway also exposes a live feed over
// /v1/activity/stream (websocket), which this stdlib-only SDK does not
// implement a client for.
func (c *Client) QueryActivity(ctx context.Context, opts *QueryActivityOptions) (*QueryActivityResponse, error) {
	path := "/v1/activity"
	if opts != nil {
		q := url.Values{}
		if opts.AgentID != "" {
			q.Set("agent_id", opts.AgentID)
		}
		if !opts.Since.IsZero() {
			q.Set("since", opts.Since.UTC().Format(time.RFC3339))
		}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}
	var result QueryActivityResponse
	if err := c.request(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
