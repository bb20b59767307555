package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebTool invokes an external tool service over HTTP. Tool calls are capped
// by the client timeout; a timeout counts as a tool failure, not an engine
// fault.
type WebTool struct {
	name           string
	endpoint       string
	client         *http.Client
	defaultHeaders map[string]string
}

// WebToolOption configures a WebTool.
type WebToolOption func(*WebTool)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WebToolOption {
	return func(t *WebTool) {
		t.client = client
	}
}

// WithTimeout caps a single tool invocation.
func WithTimeout(timeout time.Duration) WebToolOption {
	return func(t *WebTool) {
		t.client.Timeout = timeout
	}
}

// WithHeader sets a default header.
func WithHeader(key, value string) WebToolOption {
	return func(t *WebTool) {
		t.defaultHeaders[key] = value
	}
}

// NewWebTool creates a tool backed by an HTTP endpoint.
func NewWebTool(name, endpoint string, options ...WebToolOption) (*WebTool, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	t := &WebTool{
		name:     name,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

func (t *WebTool) Name() string {
	return t.name
}

func (t *WebTool) Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range t.defaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %s failed with status %d: %s", t.name, resp.StatusCode, string(respBody))
	}

	if json.Valid(respBody) {
		return json.RawMessage(respBody), nil
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(respBody)})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap response: %w", err)
	}
	return json.RawMessage(wrapped), nil
}

var _ Tool = (*WebTool)(nil)
