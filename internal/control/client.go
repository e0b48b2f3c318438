package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/llmrelay/internal/core/config"
	"github.com/vietddude/llmrelay/internal/core/domain"
	"github.com/vietddude/llmrelay/internal/infra/llm"
	"github.com/vietddude/llmrelay/internal/infra/llm/quality"
	"github.com/vietddude/llmrelay/internal/infra/llm/queue"
	"github.com/vietddude/llmrelay/internal/infra/llm/routing"
	redisclient "github.com/vietddude/llmrelay/internal/infra/redis"
	"github.com/vietddude/llmrelay/internal/infra/storage/postgres"
	"github.com/vietddude/llmrelay/internal/metrics"
)

// Reply is the outcome of a send: either model output or, when every
// recovery avenue for a connection-class failure is exhausted, a canned
// stand-in.
type Reply struct {
	Text   string
	Canned bool
}

// SendOptions tune a single send.
type SendOptions struct {
	// Model overrides the configured model for this request.
	Model string
	// Options are sampling parameters forwarded to the model.
	Options *llm.Options
	// Priority orders the request when it has to be queued. High-priority
	// requests never queue.
	Priority domain.Priority
	// OnProgress receives periodic progress while the request runs.
	OnProgress ProgressFunc
}

// Deps carries the optional infrastructure a Client can use.
type Deps struct {
	// Snapshots persists connection state and stats across restarts.
	Snapshots *redisclient.Client
	// AuditLog records completed requests.
	AuditLog *postgres.RequestLogRepo
}

// Client is the resilient front door to the inference service. Every
// send is classified on failure, retried with backoff, routed through
// the fallback chain on cross-origin blocks, queued while the connection
// is degraded, and answered with a canned reply when the connection is
// gone entirely.
type Client struct {
	cfg     config.AppConfig
	llm     *llm.Client
	chain   *routing.Chain
	policy  routing.Policy
	tracker *quality.Tracker
	queue   *queue.Queue
	monitor *Monitor
	exec    *Executor
	canned  *CannedResponder
	deps    Deps

	mu    sync.Mutex
	stats domain.Stats
}

// NewClient assembles the resilience stack from configuration.
func NewClient(cfg config.AppConfig, deps Deps) (*Client, error) {
	chain, err := routing.NewChain(routing.FallbackOptions{
		BaseURL:       cfg.LLM.URL,
		ForceProxy:    cfg.Fallback.ForceProxy,
		ProxyURL:      cfg.Fallback.ProxyURL,
		PublicProxies: cfg.Fallback.PublicProxies,
		Production:    cfg.Fallback.Production,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback chain: %w", err)
	}

	tracker := quality.NewTracker(quality.Options{
		WindowSize:        cfg.Quality.WindowSize,
		SlowThreshold:     cfg.Quality.SlowThreshold,
		VerySlowThreshold: cfg.Quality.VerySlowThreshold,
	})

	policy := routing.DefaultPolicy
	if cfg.LLM.MaxRetries > 0 {
		policy.MaxAttempts = cfg.LLM.MaxRetries + 1
	}

	c := &Client{
		cfg:     cfg,
		llm:     llm.NewClient(cfg.LLM.RequestTimeout),
		chain:   chain,
		policy:  policy,
		tracker: tracker,
		exec:    NewExecutor(tracker, cfg.LLM.RequestTimeout, cfg.LLM.WarningGrace),
		canned:  NewCannedResponder(cfg.Canned),
		deps:    deps,
	}

	c.queue = queue.New(queue.Options{
		Capacity:      cfg.Queue.Capacity,
		DrainInterval: cfg.Queue.DrainInterval,
	}, c.readyToDrain)

	c.monitor = NewMonitor(c.llm, chain, tracker, MonitorOptions{
		Model:         cfg.LLM.Model,
		CheckInterval: cfg.Health.CheckInterval,
		InitialDelay:  cfg.Health.InitialDelay,
	}, c.persistState)

	return c, nil
}

// readyToDrain gates the queue: hold entries back until the window shows
// the connection is at least usable. An unknown grade also holds, since
// with no samples there is no evidence the service is reachable.
func (c *Client) readyToDrain() bool {
	label := c.tracker.Label()
	metrics.ConnectionQuality.Set(float64(label))
	metrics.QueueDepth.Set(float64(c.queue.Len()))
	return !label.Degraded()
}

// Start restores any persisted snapshot and launches the health monitor
// and queue drain loop.
func (c *Client) Start(ctx context.Context) error {
	if c.deps.Snapshots != nil {
		if state, ok, err := c.deps.Snapshots.LoadState(ctx); err != nil {
			slog.Warn("failed to restore connection snapshot", "error", err)
		} else if ok {
			// Restored reachability is advisory until the first probe.
			state.Status = domain.StatusDisconnected
			c.monitor.SetState(state)
		}
		if stats, ok, err := c.deps.Snapshots.LoadStats(ctx); err != nil {
			slog.Warn("failed to restore stats snapshot", "error", err)
		} else if ok {
			c.mu.Lock()
			c.stats = stats
			c.mu.Unlock()
		}
	}

	c.monitor.Start(ctx)
	if err := c.queue.Start(ctx); err != nil {
		c.monitor.Stop()
		return err
	}
	slog.Info("resilient client started",
		"service", c.cfg.LLM.URL,
		"model", c.cfg.LLM.Model,
		"strategies", len(c.chain.Strategies()))
	return nil
}

// Stop halts background work and persists a final snapshot. Queued
// requests are rejected.
func (c *Client) Stop(ctx context.Context) {
	c.queue.Clear("shutting down")
	if err := c.queue.Stop(); err != nil {
		slog.Debug("queue stop", "error", err)
	}
	c.monitor.Stop()
	c.persistState(c.monitor.State())
	c.llm.Close()
	slog.Info("resilient client stopped")
}

// persistState snapshots state and stats after every probe and at
// shutdown. Persistence is advisory: failures are logged, never fatal.
func (c *Client) persistState(state domain.ConnectionState) {
	if c.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.deps.Snapshots.SaveState(ctx, state); err != nil {
		slog.Warn("failed to persist connection snapshot", "error", err)
	}
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()
	if err := c.deps.Snapshots.SaveStats(ctx, stats); err != nil {
		slog.Warn("failed to persist stats snapshot", "error", err)
	}
}

// Send delivers a prompt to the model and returns its response. While
// the connection is degraded, non-high-priority requests wait in the
// queue and drain one per tick as conditions improve.
func (c *Client) Send(ctx context.Context, prompt string, opts SendOptions) (Reply, error) {
	c.mu.Lock()
	c.stats.Total++
	c.mu.Unlock()

	// Queue when the connection is degraded, and also while earlier
	// requests are still waiting, so new work does not jump the line.
	if opts.Priority != domain.PriorityHigh && (c.tracker.Label().Degraded() || c.queue.Len() > 0) {
		return c.sendQueued(ctx, prompt, opts)
	}
	return c.sendNow(ctx, prompt, opts)
}

func (c *Client) sendQueued(ctx context.Context, prompt string, opts SendOptions) (Reply, error) {
	text, err := c.enqueue(ctx, opts.Priority, func(taskCtx context.Context) (string, error) {
		reply, err := c.sendNow(taskCtx, prompt, opts)
		if err != nil {
			return "", err
		}
		if reply.Canned {
			return "", fmt.Errorf("connection still down: %s", reply.Text)
		}
		return reply.Text, nil
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

// enqueue defers a task to the queue and waits for its result.
func (c *Client) enqueue(ctx context.Context, priority domain.Priority, task queue.Task) (string, error) {
	resultCh, err := c.queue.Enqueue(priority, task)
	if err != nil {
		c.recordOutcome("rejected", nil)
		return "", queueRejection(err)
	}
	metrics.QueueDepth.Set(float64(c.queue.Len()))

	select {
	case <-ctx.Done():
		return "", routing.Classify(ctx.Err(), c.cfg.LLM.URL)
	case res := <-resultCh:
		return res.Value, res.Err
	}
}

// queueRejection wraps a queue admission failure. The capacity case keeps
// its own message: the service may be perfectly reachable, the relay is
// just holding too many deferred requests already.
func queueRejection(err error) *domain.ClassifiedError {
	msg := "The request could not be queued."
	if errors.Is(err, queue.ErrFull) {
		msg = "The request queue is full. Wait for pending requests to finish and try again."
	}
	return &domain.ClassifiedError{
		Category: domain.CategoryUnknown,
		Message:  msg,
		Cause:    err,
	}
}

func (c *Client) sendNow(ctx context.Context, prompt string, opts SendOptions) (Reply, error) {
	req := llm.GenerateRequest{
		Model:   c.model(opts),
		Prompt:  prompt,
		Options: opts.Options,
	}
	requestID := uuid.NewString()
	start := time.Now()

	text, err := c.exec.Execute(ctx, opts.OnProgress, func(ctx context.Context) (string, error) {
		return routing.Do(ctx, c.policy, c.cfg.LLM.URL, func(ctx context.Context) (string, error) {
			return c.generateOnce(ctx, req)
		})
	})

	elapsed := time.Since(start)
	if err == nil {
		c.recordOutcome("success", nil)
		metrics.RequestLatency.Observe(elapsed.Seconds())
		c.audit(requestID, req.Model, "success", "", elapsed)
		return Reply{Text: text}, nil
	}

	classified := routing.Classify(err, c.cfg.LLM.URL)
	c.recordOutcome("failure", classified)
	c.audit(requestID, req.Model, "failure", classified.Category.String(), elapsed)

	// Connection-class failures degrade to a canned reply: the caller
	// gets an answer even with the service unreachable.
	if classified.Category.ConnectionClass() {
		slog.Info("answering with canned reply",
			"category", classified.Category.String(),
			"request_id", requestID)
		c.recordOutcome("canned", nil)
		return Reply{Text: c.canned.Reply(prompt), Canned: true}, nil
	}
	return Reply{}, classified
}

// generateOnce performs a single generate attempt. It talks to the
// primary strategy; a cross-origin block escalates once through the full
// chain, since no amount of retrying the primary will clear a policy
// rejection.
func (c *Client) generateOnce(ctx context.Context, req llm.GenerateRequest) (string, error) {
	primary := c.chain.Primary()
	resp, err := c.llm.Generate(ctx, primary.URL(llm.PathGenerate), req)
	if err == nil {
		metrics.FallbackAttemptsTotal.WithLabelValues(primary.Name, "success").Inc()
		return resp.Response, nil
	}
	metrics.FallbackAttemptsTotal.WithLabelValues(primary.Name, "failure").Inc()

	classified := routing.Classify(err, primary.URL(""))
	metrics.RetriesTotal.WithLabelValues(classified.Category.String()).Inc()
	if classified.Category != domain.CategoryCors || len(c.chain.Strategies()) <= 1 {
		return "", classified
	}

	slog.Info("cross-origin block; escalating through fallback chain")
	text, err := routing.Failover(ctx, c.chain, func(ctx context.Context, s routing.Strategy) (string, error) {
		resp, err := c.llm.Generate(ctx, s.URL(llm.PathGenerate), req)
		if err != nil {
			metrics.FallbackAttemptsTotal.WithLabelValues(s.Name, "failure").Inc()
			return "", err
		}
		metrics.FallbackAttemptsTotal.WithLabelValues(s.Name, "success").Inc()
		return resp.Response, nil
	})
	if err != nil {
		// The whole chain failed on a policy block; keep the cors
		// classification so the retry loop surfaces it immediately.
		return "", &domain.ClassifiedError{
			Category: domain.CategoryCors,
			Message:  classified.Message,
			Cause:    err,
		}
	}
	return text, nil
}

// SendStreaming delivers a prompt and forwards chunks as they arrive,
// returning the accumulated text. Retrying applies only until the first
// chunk is delivered: after that, a failure surfaces rather than
// replaying partial output.
func (c *Client) SendStreaming(ctx context.Context, prompt string, opts SendOptions, onChunk func(llm.StreamChunk)) (string, error) {
	c.mu.Lock()
	c.stats.Total++
	c.mu.Unlock()

	// Same admission rule as Send. Nothing has streamed yet, so deferring
	// the whole request is safe.
	if opts.Priority != domain.PriorityHigh && (c.tracker.Label().Degraded() || c.queue.Len() > 0) {
		return c.enqueue(ctx, opts.Priority, func(taskCtx context.Context) (string, error) {
			return c.streamNow(taskCtx, prompt, opts, onChunk)
		})
	}
	return c.streamNow(ctx, prompt, opts, onChunk)
}

func (c *Client) streamNow(ctx context.Context, prompt string, opts SendOptions, onChunk func(llm.StreamChunk)) (string, error) {
	req := llm.GenerateRequest{
		Model:   c.model(opts),
		Prompt:  prompt,
		Stream:  true,
		Options: opts.Options,
	}
	requestID := uuid.NewString()
	start := time.Now()

	text, err := c.exec.Execute(ctx, opts.OnProgress, func(ctx context.Context) (string, error) {
		return c.streamWithRetry(ctx, req, onChunk)
	})

	elapsed := time.Since(start)
	if err != nil {
		classified := routing.Classify(err, c.cfg.LLM.URL)
		c.recordOutcome("failure", classified)
		c.audit(requestID, req.Model, "failure", classified.Category.String(), elapsed)
		return "", classified
	}
	c.recordOutcome("success", nil)
	metrics.RequestLatency.Observe(elapsed.Seconds())
	c.audit(requestID, req.Model, "success", "", elapsed)
	return text, nil
}

func (c *Client) streamWithRetry(ctx context.Context, req llm.GenerateRequest, onChunk func(llm.StreamChunk)) (string, error) {
	target := c.chain.Primary().URL(llm.PathGenerate)

	for attempt := 1; ; attempt++ {
		delivered := 0
		var cumulative string
		err := c.llm.GenerateStream(ctx, target, req, func(chunk llm.StreamChunk) {
			delivered++
			cumulative = chunk.Cumulative
			if onChunk != nil {
				onChunk(chunk)
			}
		})
		if err == nil {
			return cumulative, nil
		}

		classified := routing.Classify(err, target)
		if delivered > 0 {
			slog.Warn("stream failed mid-flight; not replaying partial output",
				"chunks", delivered,
				"category", classified.Category.String())
			return "", classified
		}
		if classified.Category == domain.CategoryCors && len(c.chain.Strategies()) > 1 {
			slog.Info("cross-origin block; escalating stream through fallback chain")
			return c.streamFailover(ctx, req, onChunk, classified)
		}
		if !c.policy.ShouldRetry(classified.Category, attempt) {
			if classified.Category.Retryable() && attempt >= c.policy.MaxAttempts {
				return "", &domain.ClassifiedError{
					Category: classified.Category,
					Message:  fmt.Sprintf("retries exhausted: tried %d times. %s", c.policy.MaxAttempts, classified.Message),
					Cause:    classified,
				}
			}
			return "", classified
		}

		metrics.RetriesTotal.WithLabelValues(classified.Category.String()).Inc()
		delay := c.policy.Delay(attempt, classified.Category)
		slog.Debug("retrying stream", "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return "", routing.Classify(ctx.Err(), target)
		case <-time.After(delay):
		}
	}
}

// streamFailover escalates a cross-origin block through the fallback
// chain before any chunk has been delivered. A strategy that streams
// partial output and then fails aborts the escalation: later strategies
// would replay text the consumer has already seen.
func (c *Client) streamFailover(ctx context.Context, req llm.GenerateRequest, onChunk func(llm.StreamChunk), blocked *domain.ClassifiedError) (string, error) {
	var aborted error
	text, err := routing.Failover(ctx, c.chain, func(ctx context.Context, s routing.Strategy) (string, error) {
		if aborted != nil {
			return "", aborted
		}
		delivered := 0
		var cumulative string
		err := c.llm.GenerateStream(ctx, s.URL(llm.PathGenerate), req, func(chunk llm.StreamChunk) {
			delivered++
			cumulative = chunk.Cumulative
			if onChunk != nil {
				onChunk(chunk)
			}
		})
		if err != nil {
			metrics.FallbackAttemptsTotal.WithLabelValues(s.Name, "failure").Inc()
			if delivered > 0 {
				aborted = err
			}
			return "", err
		}
		metrics.FallbackAttemptsTotal.WithLabelValues(s.Name, "success").Inc()
		return cumulative, nil
	})
	if err != nil {
		if aborted != nil {
			return "", routing.Classify(aborted, c.cfg.LLM.URL)
		}
		// The whole chain failed on a policy block; keep the cors
		// classification so the retry loop surfaces it immediately.
		return "", &domain.ClassifiedError{
			Category: domain.CategoryCors,
			Message:  blocked.Message,
			Cause:    err,
		}
	}
	return text, nil
}

// SendStreamingChan is a channel wrapper over SendStreaming for
// consumers that prefer ranging over events to providing callbacks. The
// channel closes after the final event; a terminal error is delivered as
// the last event's Err.
func (c *Client) SendStreamingChan(ctx context.Context, prompt string, opts SendOptions) <-chan StreamEvent {
	events := make(chan StreamEvent, 8)
	go func() {
		defer close(events)
		_, err := c.SendStreaming(ctx, prompt, opts, func(chunk llm.StreamChunk) {
			events <- StreamEvent{Chunk: chunk}
		})
		if err != nil {
			events <- StreamEvent{Err: err}
		}
	}()
	return events
}

// StreamEvent is one item on a streaming channel: a chunk, or the
// terminal error.
type StreamEvent struct {
	Chunk llm.StreamChunk
	Err   error
}

// CheckConnection probes the service immediately and returns the
// resulting state.
func (c *Client) CheckConnection(ctx context.Context) domain.ConnectionState {
	return c.monitor.Check(ctx)
}

// Status is the full externally-visible picture of the client.
type Status struct {
	Connection domain.ConnectionState `json:"connection"`
	Quality    string                 `json:"quality"`
	AvgLatency time.Duration          `json:"avg_latency"`
	QueueDepth int                    `json:"queue_depth"`
	Stats      domain.Stats           `json:"stats"`
}

// GetStatus reports connection state, quality grade, queue depth and
// cumulative stats.
func (c *Client) GetStatus() Status {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	return Status{
		Connection: c.monitor.State(),
		Quality:    c.tracker.Label().String(),
		AvgLatency: c.tracker.Average(),
		QueueDepth: c.queue.Len(),
		Stats:      stats,
	}
}

// ResetStats zeroes the cumulative request counters.
func (c *Client) ResetStats() {
	c.mu.Lock()
	c.stats = domain.Stats{}
	c.mu.Unlock()
}

func (c *Client) model(opts SendOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.cfg.LLM.Model
}

func (c *Client) recordOutcome(outcome string, classified *domain.ClassifiedError) {
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case "success", "canned":
		if outcome == "success" {
			c.stats.Succeeded++
		}
	case "failure", "rejected":
		c.stats.Failed++
		if classified != nil && classified.Category == domain.CategoryTimeout {
			c.stats.TimedOut++
		}
	}
}

// audit records the completed request when an audit store is wired in.
// Best effort only.
func (c *Client) audit(id, model, outcome, category string, elapsed time.Duration) {
	if c.deps.AuditLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.deps.AuditLog.Insert(ctx, postgres.RequestLogEntry{
		ID:         id,
		Model:      model,
		Strategy:   c.chain.Primary().Name,
		Outcome:    outcome,
		Category:   category,
		Attempts:   1,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		slog.Warn("failed to write request audit entry", "error", err)
	}
}
