// Package queue holds deferred requests while the connection is degraded
// and drains them one at a time once conditions improve.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/llmrelay/internal/core/domain"
)

var (
	// ErrFull is returned when the queue is at capacity and holds no
	// low-priority entry that could be evicted to make room.
	ErrFull = errors.New("request queue is full")
	// ErrEvicted is delivered to an evicted low-priority entry.
	ErrEvicted = errors.New("request evicted: queue at capacity")
	// ErrCleared is delivered to pending entries when the queue is cleared.
	ErrCleared = errors.New("request rejected: queue cleared")
	// ErrAlreadyRunning is returned by Start on a running queue.
	ErrAlreadyRunning = errors.New("queue already running")
	// ErrNotRunning is returned by Stop on a stopped queue.
	ErrNotRunning = errors.New("queue not running")
)

// Task is the deferred work a queued entry carries. It runs on the drain
// goroutine when the entry reaches the head of the queue.
type Task func(ctx context.Context) (string, error)

// Result is delivered on an entry's channel exactly once: when its task
// ran, when it was evicted, or when the queue was cleared.
type Result struct {
	Value string
	Err   error
}

type entry struct {
	id         string
	priority   domain.Priority
	enqueuedAt time.Time
	task       Task
	result     chan Result
}

// Options configure queue capacity and drain cadence.
type Options struct {
	Capacity      int
	DrainInterval time.Duration
}

// Queue is a bounded, priority-ordered request queue. Entries are kept
// in priority order; within a priority they drain first-in first-out.
// A readiness gate decides on each tick whether the head may run.
type Queue struct {
	mu      sync.Mutex
	opts    Options
	entries []*entry
	ready   func() bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a queue. ready is consulted before each drain; a nil ready
// drains unconditionally.
func New(opts Options, ready func() bool) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 10
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = time.Second
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Queue{opts: opts, ready: ready}
}

// Enqueue adds a task at the given priority and returns a channel that
// receives its eventual result. When the queue is full, the oldest
// low-priority entry is evicted to make room; with no low-priority entry
// to evict, Enqueue fails with ErrFull.
func (q *Queue) Enqueue(priority domain.Priority, task Task) (<-chan Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.opts.Capacity {
		if !q.evictOldestLowLocked() {
			return nil, ErrFull
		}
	}

	e := &entry{
		id:         uuid.NewString(),
		priority:   priority,
		enqueuedAt: time.Now(),
		task:       task,
		result:     make(chan Result, 1),
	}
	q.insertLocked(e)

	slog.Debug("request queued",
		"id", e.id,
		"priority", priority.String(),
		"depth", len(q.entries))
	return e.result, nil
}

// insertLocked places e after the last entry of equal or higher priority,
// preserving FIFO order within each priority.
func (q *Queue) insertLocked(e *entry) {
	i := len(q.entries)
	for i > 0 && q.entries[i-1].priority < e.priority {
		i--
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// evictOldestLowLocked removes the oldest low-priority entry, delivering
// ErrEvicted to it. Returns false when no low-priority entry exists.
func (q *Queue) evictOldestLowLocked() bool {
	for i, e := range q.entries {
		if e.priority == domain.PriorityLow {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			e.result <- Result{Err: ErrEvicted}
			slog.Warn("evicted low-priority request", "id", e.id)
			return true
		}
	}
	return false
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Start launches the drain loop. On each tick, if the readiness gate
// passes and an entry is pending, the head entry runs to completion
// before the next tick is considered.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	q.running = true
	q.cancel = cancel
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.drainLoop(ctx)
	return nil
}

// Stop halts the drain loop. Pending entries stay queued.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrNotRunning
	}
	q.running = false
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Clear rejects every pending entry with ErrCleared wrapped around the
// given reason and empties the queue.
func (q *Queue) Clear(reason string) {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range entries {
		e.result <- Result{Err: clearError(reason)}
	}
	if len(entries) > 0 {
		slog.Info("queue cleared", "rejected", len(entries), "reason", reason)
	}
}

func clearError(reason string) error {
	if reason == "" {
		return ErrCleared
	}
	return &clearedError{reason: reason}
}

type clearedError struct {
	reason string
}

func (e *clearedError) Error() string { return ErrCleared.Error() + ": " + e.reason }
func (e *clearedError) Unwrap() error { return ErrCleared }

func (q *Queue) drainLoop(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.ready() {
				continue
			}
			q.drainOne(ctx)
		}
	}
}

// drainOne pops and runs the head entry, if any. One entry per tick keeps
// a recovering connection from being flooded.
func (q *Queue) drainOne(ctx context.Context) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	q.mu.Unlock()

	slog.Debug("draining queued request",
		"id", e.id,
		"waited", time.Since(e.enqueuedAt))

	value, err := e.task(ctx)
	e.result <- Result{Value: value, Err: err}
}
