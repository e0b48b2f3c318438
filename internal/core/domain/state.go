package domain

import (
	"encoding/json"
	"time"
)

// ConnectionStatus is the coarse health state of the inference service.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the status name.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// MarshalJSON encodes the status as its name.
func (s ConnectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "connecting":
		*s = StatusConnecting
	case "connected":
		*s = StatusConnected
	case "error":
		*s = StatusError
	default:
		*s = StatusDisconnected
	}
	return nil
}

// ConnectionState describes the last known condition of the inference
// service. A single instance is owned by the client facade; it is mutated
// only by health probes and by request completions.
type ConnectionState struct {
	Status           ConnectionStatus `json:"status"`
	LastCheckedAt    time.Time        `json:"last_checked_at"`
	AvailableModels  []string         `json:"available_models"`
	ActiveModel      string           `json:"active_model"`
	LastError        string           `json:"last_error,omitempty"`
	LastResponseTime time.Duration    `json:"last_response_time"`
}

// HasModel reports whether the given model appeared in the last probe.
func (s ConnectionState) HasModel(name string) bool {
	for _, m := range s.AvailableModels {
		if m == name {
			return true
		}
	}
	return false
}

// Stats holds running request counters. Reset only on explicit reset or
// client teardown.
type Stats struct {
	Total     uint64 `json:"total"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
}

// SuccessRate returns the fraction of completed requests that succeeded.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// Priority orders deferred requests. High-priority requests never enter
// the queue; they execute immediately.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}
