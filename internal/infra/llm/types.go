// Package llm implements the HTTP transport for the inference service.
//
// This package contains:
//   - Client: request/probe transport over a configurable endpoint
//   - StreamReader: newline-delimited JSON stream parsing
//   - HTTPError: status-bearing failure for upstream classification
package llm

// GenerateRequest is the request body for the inference endpoint.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// Options contains model sampling parameters.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// GenerateResponse is the non-streaming inference response.
type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// StreamChunk is one parsed line of a streaming response. Cumulative
// carries all response fragments concatenated in arrival order.
type StreamChunk struct {
	Response   string
	Cumulative string
	Done       bool
}

// ModelInfo describes one model reported by the reachability probe.
type ModelInfo struct {
	Name string `json:"name"`
}

// TagsResponse is the probe payload listing available models.
type TagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// apiError is the service's error body shape.
type apiError struct {
	Error string `json:"error"`
}
