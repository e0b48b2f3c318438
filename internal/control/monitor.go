package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/llmrelay/internal/core/domain"
	"github.com/vietddude/llmrelay/internal/infra/llm"
	"github.com/vietddude/llmrelay/internal/infra/llm/quality"
	"github.com/vietddude/llmrelay/internal/infra/llm/routing"
	"github.com/vietddude/llmrelay/internal/metrics"
)

const (
	maxAutoReconnects  = 5
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// MonitorOptions configure the health monitor.
type MonitorOptions struct {
	// Model is the configured model name; its absence from the service's
	// model list is logged but not treated as a failure.
	Model string
	// CheckInterval is the periodic probe cadence. Zero or negative
	// disables periodic probing; manual checks still work.
	CheckInterval time.Duration
	// InitialDelay postpones the first periodic probe.
	InitialDelay time.Duration
	// ProbeTimeout bounds each probe.
	ProbeTimeout time.Duration
}

// Monitor probes the inference service and tracks connection state.
// The state moves Disconnected -> Connecting -> Connected or Error; on
// Error the periodic loop retries with growing delays, giving up on
// automatic reconnection after maxAutoReconnects consecutive failures
// until a manual check or a fresh interval probe succeeds.
type Monitor struct {
	client  *llm.Client
	chain   *routing.Chain
	tracker *quality.Tracker
	opts    MonitorOptions

	mu        sync.Mutex
	state     domain.ConnectionState
	failures  int
	onChange  func(domain.ConnectionState)
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor builds a monitor. onChange, when non-nil, is invoked with a
// copy of the state after every probe.
func NewMonitor(client *llm.Client, chain *routing.Chain, tracker *quality.Tracker, opts MonitorOptions, onChange func(domain.ConnectionState)) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &Monitor{
		client:   client,
		chain:    chain,
		tracker:  tracker,
		opts:     opts,
		state:    domain.ConnectionState{Status: domain.StatusDisconnected},
		onChange: onChange,
	}
}

// State returns a copy of the current connection state.
func (m *Monitor) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetState replaces the current state, used to restore a persisted
// snapshot before the first probe runs.
func (m *Monitor) SetState(state domain.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// Check probes the service once and returns the resulting state. Probes
// go to the primary strategy: a reachable intermediary with an
// unreachable service should still read as unhealthy.
func (m *Monitor) Check(ctx context.Context) domain.ConnectionState {
	m.transition(domain.StatusConnecting, "")

	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	start := time.Now()
	tags, err := m.client.Probe(ctx, m.chain.Primary().URL(llm.PathTags))
	elapsed := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastCheckedAt = time.Now()
	if err != nil {
		classified := routing.Classify(err, m.chain.Primary().URL(""))
		m.failures++
		m.state.Status = domain.StatusError
		m.state.LastError = classified.Message
		metrics.HealthChecksTotal.WithLabelValues("failure").Inc()
		metrics.ConnectionStatus.Set(float64(m.state.Status))
		slog.Warn("health probe failed",
			"category", classified.Category.String(),
			"consecutive_failures", m.failures,
			"error", err)
	} else {
		names := make([]string, 0, len(tags.Models))
		for _, mi := range tags.Models {
			names = append(names, mi.Name)
		}
		m.failures = 0
		m.state.Status = domain.StatusConnected
		m.state.LastError = ""
		m.state.AvailableModels = names
		m.state.LastResponseTime = elapsed
		m.state.ActiveModel = m.opts.Model
		if m.opts.Model != "" && !m.state.HasModel(m.opts.Model) {
			slog.Warn("configured model not reported by service", "model", m.opts.Model)
		}
		if m.tracker != nil {
			m.tracker.Record(elapsed)
		}
		metrics.HealthChecksTotal.WithLabelValues("success").Inc()
		metrics.ConnectionStatus.Set(float64(m.state.Status))
	}

	state := m.state
	if m.onChange != nil {
		go m.onChange(state)
	}
	return state
}

func (m *Monitor) transition(status domain.ConnectionStatus, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Status = status
	if lastErr != "" {
		m.state.LastError = lastErr
	}
	metrics.ConnectionStatus.Set(float64(status))
}

// Start launches the periodic probe loop. A non-positive CheckInterval
// disables it.
func (m *Monitor) Start(ctx context.Context) {
	if m.opts.CheckInterval <= 0 {
		slog.Info("periodic health checks disabled")
		return
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the periodic probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	if m.opts.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.InitialDelay):
		}
	}

	for {
		m.Check(ctx)
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.nextDelay()):
		}
	}
}

// nextDelay returns the wait before the next probe: the regular interval
// while healthy, a growing reconnect delay while failing, and the plain
// interval again once automatic reconnection gives up.
func (m *Monitor) nextDelay() time.Duration {
	m.mu.Lock()
	failures := m.failures
	m.mu.Unlock()

	if failures == 0 || failures > maxAutoReconnects {
		return m.opts.CheckInterval
	}

	delay := reconnectBaseDelay << (failures - 1)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	if failures == maxAutoReconnects {
		slog.Warn("automatic reconnection limit reached; falling back to the regular probe interval",
			"attempts", failures)
	}
	return delay
}
