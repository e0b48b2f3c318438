// Package quality tracks recent response latencies and grades the
// connection so callers can decide whether to send or queue work.
package quality

import (
	"sync"
	"time"
)

// Label grades the connection from recent response times.
type Label int

const (
	// Unknown means no samples have been recorded yet.
	Unknown Label = iota
	Excellent
	Good
	Slow
	Poor
)

func (l Label) String() string {
	switch l {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Slow:
		return "slow"
	case Poor:
		return "poor"
	default:
		return "unknown"
	}
}

// Degraded reports whether the grade is bad enough that new work should
// be held back rather than sent immediately. Unknown counts as degraded:
// with no samples there is no evidence the service is reachable.
func (l Label) Degraded() bool {
	return l == Poor || l == Unknown
}

// Options bound the sliding window and the latency thresholds.
type Options struct {
	WindowSize        int
	SlowThreshold     time.Duration
	VerySlowThreshold time.Duration
}

// DefaultOptions mirror the configuration defaults.
var DefaultOptions = Options{
	WindowSize:        5,
	SlowThreshold:     5 * time.Second,
	VerySlowThreshold: 10 * time.Second,
}

// Tracker keeps a fixed-size sliding window of response times. Recording
// a sample past the window evicts the oldest. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	opts    Options
	samples []time.Duration
}

// NewTracker builds a tracker, falling back to defaults for zero options.
func NewTracker(opts Options) *Tracker {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultOptions.WindowSize
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultOptions.SlowThreshold
	}
	if opts.VerySlowThreshold <= 0 {
		opts.VerySlowThreshold = DefaultOptions.VerySlowThreshold
	}
	return &Tracker{
		opts:    opts,
		samples: make([]time.Duration, 0, opts.WindowSize),
	}
}

// Record appends a response-time sample, evicting the oldest when the
// window is full.
func (t *Tracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == t.opts.WindowSize {
		copy(t.samples, t.samples[1:])
		t.samples = t.samples[:len(t.samples)-1]
	}
	t.samples = append(t.samples, d)
}

// Label grades the window. With no samples the grade is Unknown; it stays
// Unknown until the first sample arrives regardless of elapsed time.
func (t *Tracker) Label() Label {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return Unknown
	}

	var sum, max time.Duration
	for _, s := range t.samples {
		sum += s
		if s > max {
			max = s
		}
	}
	avg := sum / time.Duration(len(t.samples))

	switch {
	case avg < time.Second && max < 2*time.Second:
		return Excellent
	case avg < 2*time.Second && max < t.opts.SlowThreshold:
		return Good
	case avg < t.opts.SlowThreshold && max < t.opts.VerySlowThreshold:
		return Slow
	default:
		return Poor
	}
}

// Average returns the mean of the current window, zero when empty.
func (t *Tracker) Average() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range t.samples {
		sum += s
	}
	return sum / time.Duration(len(t.samples))
}

// Size returns the number of samples currently in the window.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Reset drops all samples, returning the grade to Unknown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
}
