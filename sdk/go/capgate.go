// Package capgate provides a Go client for the capability routing
// gateway's HTTP API (§6), grounded on the teacher's tools/sdk/go
// client: an options-configured http.Client, one request() helper doing
// marshal/send/status-check/unmarshal, and a typed method per endpoint.
// It is a standalone module with no dependency on the gateway's own
// packages, matching the teacher SDK's zero-dependency, stdlib-only
// distribution shape.
package capgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is the SDK version.
const Version = "1.0.0"

// DefaultBaseURL is the default gateway base URL.
const DefaultBaseURL = "http://localhost:3001"

// Client is the capability gateway API client.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithAgentID sets the X-Agent-ID header sent with every request.
func WithAgentID(agentID string) ClientOption {
	return func(c *Client) { c.agentID = agentID }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a new gateway API client. apiKey may be empty for
// anonymous access (subject to the gateway's anonymous rate-limit scope).
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		userAgent: fmt.Sprintf("capgate-go-sdk/%s", Version),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.agentID != "" {
		req.Header.Set("X-Agent-ID", c.agentID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Error represents a gateway API error, §7's {kind, message, details}.
type Error struct {
	StatusCode int                    `json:"-"`
	Kind       string                 `json:"kind"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("capgate: %s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
}

// RateLimitedError indicates the rate limiter rejected the request.
type RateLimitedError Error

func (e *RateLimitedError) Error() string { return (*Error)(e).Error() }

// ServiceUnavailableError indicates a circuit, queue, or memory-pressure rejection.
type ServiceUnavailableError Error

func (e *ServiceUnavailableError) Error() string { return (*Error)(e).Error() }

// ForbiddenError indicates a missing or invalid capability token.
type ForbiddenError Error

func (e *ForbiddenError) Error() string { return (*Error)(e).Error() }

func parseError(statusCode int, body []byte) error {
	var envelope struct {
		Error *Error `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	baseErr := Error{StatusCode: statusCode}
	if envelope.Error != nil {
		baseErr.Kind = envelope.Error.Kind
		baseErr.Message = envelope.Error.Message
		baseErr.Details = envelope.Error.Details
	}
	if baseErr.Message == "" {
		baseErr.Message = http.StatusText(statusCode)
	}

	switch baseErr.Kind {
	case "rate_limited":
		return (*RateLimitedError)(&baseErr)
	case "service_unavailable":
		return (*ServiceUnavailableError)(&baseErr)
	case "forbidden":
		return (*ForbiddenError)(&baseErr)
	default:
		return &baseErr
	}
}
