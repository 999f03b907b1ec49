package capgate

import (
	"context"
	"fmt"
	"net/url"
)

// Descriptor mirrors a registered capability's public metadata.
type Descriptor struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Execution   map[string]interface{} `json:"execution,omitempty"`
	Performance map[string]interface{} `json:"performance,omitempty"`
}

// ListCapabilitiesOptions filters list_capabilities(tag?, mode?).
type ListCapabilitiesOptions struct {
	Tag  string
	Mode string
}

// ListCapabilitiesResponse wraps the capability list.
type ListCapabilitiesResponse struct {
	Capabilities []Descriptor `json:"capabilities"`
}

// ListCapabilities returns the registry, optionally filtered by tag and/or mode.
func (c *Client) ListCapabilities(ctx context.Context, opts *ListCapabilitiesOptions) (*ListCapabilitiesResponse, error) {
	path := "/v1/capabilities"
	if opts != nil {
		q := url.Values{}
		if opts.Tag != "" {
			q.Set("tag", opts.Tag)
		}
		if opts.Mode != "" {
			q.Set("mode", opts.Mode)
		}
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}
	var result ListCapabilitiesResponse
	if err := c.request(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCapabilityResponse wraps a single descriptor plus its sponsor (the id
// of the executor that serves it), if any.
type GetCapabilityResponse struct {
	Descriptor Descriptor  `json:"descriptor"`
	Sponsor    interface{} `json:"sponsor,omitempty"`
}

// GetCapability fetches one capability descriptor by id.
func (c *Client) GetCapability(ctx context.Context, id string) (*GetCapabilityResponse, error) {
	var result GetCapabilityResponse
	path := fmt.Sprintf("/v1/capabilities/%s", url.PathEscape(id))
	if err := c.request(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CapabilitiesSummary is the registry-wide summary (counts by mode/tag etc.).
type CapabilitiesSummary map[string]interface{}

// CapabilitiesSummary returns the registry summary.
func (c *Client) CapabilitiesSummary(ctx context.Context) (CapabilitiesSummary, error) {
	var result CapabilitiesSummary
	if err := c.request(ctx, "GET", "/v1/capabilities/summary", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
