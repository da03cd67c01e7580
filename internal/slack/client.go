// Package slack is a thin client for the Slack Web API. It issues
// authenticated GET requests, follows cursor-based pagination, and maps
// both transport failures and ok:false bodies to APIError. It performs no
// retries; callers decide whether a failure is fatal or degrading.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://slack.com/api"

// APIError is the single error type for upstream failures: a non-2xx HTTP
// status and an application-level ok:false both map here.
type APIError struct {
	Endpoint   string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("slack API %s: %s (status %d)", e.Endpoint, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("slack API %s: %s", e.Endpoint, e.Message)
}

// Client wraps the Slack Web API. The zero value is not usable; use New.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Slack API client. Tokens are supplied per call, not bound
// at construction, because each content source carries its own credential.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiEnvelope holds the fields common to every Slack API response.
type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// call issues an authenticated GET against the given endpoint and decodes
// the response into out, which must embed the ok/error envelope fields.
func (c *Client) call(ctx context.Context, token, endpoint string, params map[string]string, out any) error {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}

	u := c.baseURL + "/" + endpoint
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Endpoint: endpoint, Message: err.Error(), StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, Message: string(body), StatusCode: resp.StatusCode}
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Endpoint: endpoint, Message: fmt.Sprintf("invalid response body: %v", err)}
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Endpoint: endpoint, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &APIError{Endpoint: endpoint, Message: fmt.Sprintf("failed to decode response: %v", err)}
		}
	}
	return nil
}

// Download fetches a private file URL with bearer auth and returns its
// contents. Used by the attachment pipeline.
func (c *Client) Download(ctx context.Context, token, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return data, nil
}
