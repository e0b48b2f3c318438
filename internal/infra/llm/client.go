package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API paths on the inference service. Callers resolve these against a
// connection strategy to obtain the full request URL.
const (
	PathGenerate = "/api/generate"
	PathTags     = "/api/tags"
)

// HTTPError is a non-2xx response from the inference service. The status
// code is preserved so the error classifier can map it onto the taxonomy.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Client is the low-level transport to the inference service. Calls take
// the full request URL so the fallback chain can route one logical request
// through different intermediaries.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a transport with the given timeout for non-streaming
// requests. Streaming requests are governed by context alone.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Generate sends a non-streaming inference request to the given URL.
func (c *Client) Generate(ctx context.Context, url string, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(resp)
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// StreamCallback is called for each chunk received during streaming, in
// arrival order.
type StreamCallback func(chunk StreamChunk)

// GenerateStream sends a streaming inference request and invokes the
// callback per chunk until the terminal done marker or an error.
func (c *Client) GenerateStream(ctx context.Context, url string, req GenerateRequest, callback StreamCallback) error {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// No client timeout for streams; cancellation comes from the context.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("inference stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}

	return NewStreamReader(resp.Body).Process(ctx, callback)
}

// Probe checks reachability and lists the models the service reports.
func (c *Client) Probe(ctx context.Context, url string) (*TagsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("probe call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(resp)
	}

	var result TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode probe response: %w", err)
	}
	return &result, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func readHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// Prefer the service's structured error message when present.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return &HTTPError{Status: resp.StatusCode, Body: apiErr.Error}
	}
	return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// JoinURL concatenates a base endpoint and an API path without doubling
// slashes.
func JoinURL(endpoint, path string) string {
	return strings.TrimRight(endpoint, "/") + path
}
