// Package control wires the resilience layers into a single client:
// request execution with deadlines and progress, connection health
// monitoring, and the send pipeline with retry, fallback and queueing.
package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/llmrelay/internal/infra/llm/quality"
)

// Progress reports how far along an in-flight request is. Percent is
// derived from elapsed time against the deadline and is capped at 95
// until the request actually completes.
type Progress struct {
	Percent       int
	Elapsed       time.Duration
	WarningActive bool
}

// ProgressFunc receives periodic progress updates for a request.
type ProgressFunc func(Progress)

const defaultProgressInterval = 500 * time.Millisecond

// Executor runs requests under a deadline, emits progress on a fixed
// cadence, warns once when the deadline approaches, and feeds response
// times into the quality tracker.
type Executor struct {
	tracker          *quality.Tracker
	timeout          time.Duration
	warningGrace     time.Duration
	progressInterval time.Duration
}

// NewExecutor builds an executor. warningGrace is how long before the
// deadline the one-shot warning fires; zero disables it.
func NewExecutor(tracker *quality.Tracker, timeout, warningGrace time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		tracker:          tracker,
		timeout:          timeout,
		warningGrace:     warningGrace,
		progressInterval: defaultProgressInterval,
	}
}

// Timeout returns the configured per-request deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs op under the per-request deadline. Progress events are
// emitted on a fixed cadence while op runs; the final event on success
// reports 100 percent. The elapsed time is recorded as a quality sample
// on both success and failure, except when the caller itself aborted.
func (e *Executor) Execute(ctx context.Context, onProgress ProgressFunc, op func(context.Context) (string, error)) (string, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	stop := make(chan struct{})
	ticking := make(chan struct{})

	go func() {
		defer close(ticking)
		e.tick(start, stop, onProgress)
	}()

	value, err := op(ctx)

	close(stop)
	<-ticking
	elapsed := time.Since(start)

	// A caller-initiated abort says nothing about connection quality.
	if e.tracker != nil && !errors.Is(parent.Err(), context.Canceled) {
		e.tracker.Record(elapsed)
	}

	if err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(Progress{Percent: 100, Elapsed: elapsed})
	}
	return value, nil
}

// tick emits progress events until stop closes. The warning fires at
// most once, warningGrace before the deadline, and stays set on every
// later event.
func (e *Executor) tick(start time.Time, stop <-chan struct{}, onProgress ProgressFunc) {
	ticker := time.NewTicker(e.progressInterval)
	defer ticker.Stop()

	var warnCh <-chan time.Time
	if e.warningGrace > 0 && e.timeout > e.warningGrace {
		warn := time.NewTimer(e.timeout - e.warningGrace)
		defer warn.Stop()
		warnCh = warn.C
	}

	warning := false
	emit := func() {
		if onProgress == nil {
			return
		}
		elapsed := time.Since(start)
		percent := int(elapsed * 100 / e.timeout)
		if percent > 95 {
			percent = 95
		}
		onProgress(Progress{Percent: percent, Elapsed: elapsed, WarningActive: warning})
	}

	for {
		select {
		case <-stop:
			return
		case <-warnCh:
			warning = true
			warnCh = nil
			slog.Warn("request approaching its deadline",
				"elapsed", time.Since(start).Round(time.Millisecond),
				"timeout", e.timeout)
			emit()
		case <-ticker.C:
			emit()
		}
	}
}
