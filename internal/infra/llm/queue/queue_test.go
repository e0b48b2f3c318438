package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/llmrelay/internal/core/domain"
)

func noopTask(ctx context.Context) (string, error) { return "", nil }

func taskReturning(v string) Task {
	return func(ctx context.Context) (string, error) { return v, nil }
}

func TestEnqueue_PriorityThenFIFO(t *testing.T) {
	q := New(Options{Capacity: 10, DrainInterval: 5 * time.Millisecond}, nil)

	var mu sync.Mutex
	var order []string
	tracked := func(name string) Task {
		return func(ctx context.Context) (string, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	results := make([]<-chan Result, 0, 5)
	add := func(p domain.Priority, name string) {
		ch, err := q.Enqueue(p, tracked(name))
		if err != nil {
			t.Fatalf("Enqueue(%v, %s) failed: %v", p, name, err)
		}
		results = append(results, ch)
	}

	add(domain.PriorityLow, "low-1")
	add(domain.PriorityNormal, "normal-1")
	add(domain.PriorityHigh, "high-1")
	add(domain.PriorityNormal, "normal-2")
	add(domain.PriorityHigh, "high-2")

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer q.Stop()

	for _, ch := range results {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for drain")
		}
	}

	want := []string{"high-1", "high-2", "normal-1", "normal-2", "low-1"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("drained %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("drain[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEnqueue_EvictsOldestLowWhenFull(t *testing.T) {
	q := New(Options{Capacity: 3, DrainInterval: time.Hour}, nil)

	lowCh, err := q.Enqueue(domain.PriorityLow, noopTask)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(domain.PriorityNormal, noopTask); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue(domain.PriorityLow, noopTask); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Queue is full; the oldest low-priority entry makes room.
	if _, err := q.Enqueue(domain.PriorityNormal, noopTask); err != nil {
		t.Fatalf("Enqueue at capacity failed: %v", err)
	}

	select {
	case res := <-lowCh:
		if !errors.Is(res.Err, ErrEvicted) {
			t.Errorf("evicted entry got %v, want ErrEvicted", res.Err)
		}
	default:
		t.Error("oldest low-priority entry was not evicted")
	}
	if got := q.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestEnqueue_FullWithoutLowFails(t *testing.T) {
	q := New(Options{Capacity: 2, DrainInterval: time.Hour}, nil)

	q.Enqueue(domain.PriorityNormal, noopTask)
	q.Enqueue(domain.PriorityHigh, noopTask)

	_, err := q.Enqueue(domain.PriorityNormal, noopTask)
	if !errors.Is(err, ErrFull) {
		t.Errorf("err = %v, want ErrFull", err)
	}
}

func TestDrain_HonorsReadinessGate(t *testing.T) {
	var mu sync.Mutex
	ready := false
	gate := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ready
	}

	q := New(Options{Capacity: 5, DrainInterval: 5 * time.Millisecond}, gate)
	ch, err := q.Enqueue(domain.PriorityNormal, taskReturning("done"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer q.Stop()

	select {
	case <-ch:
		t.Fatal("entry drained while gate was closed")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	ready = true
	mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil || res.Value != "done" {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("entry did not drain after gate opened")
	}
}

func TestStartStop_Idempotence(t *testing.T) {
	q := New(Options{Capacity: 2, DrainInterval: time.Millisecond}, nil)

	if err := q.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop before Start = %v, want ErrNotRunning", err)
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := q.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if err := q.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := q.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop = %v, want ErrNotRunning", err)
	}

	// The queue can be restarted after a clean stop.
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	q.Stop()
}

func TestClear_RejectsAllPending(t *testing.T) {
	q := New(Options{Capacity: 5, DrainInterval: time.Hour}, nil)

	chans := make([]<-chan Result, 0, 3)
	for i := 0; i < 3; i++ {
		ch, err := q.Enqueue(domain.PriorityNormal, noopTask)
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		chans = append(chans, ch)
	}

	q.Clear("connection lost")

	for i, ch := range chans {
		select {
		case res := <-ch:
			if !errors.Is(res.Err, ErrCleared) {
				t.Errorf("entry %d got %v, want ErrCleared", i, res.Err)
			}
		default:
			t.Errorf("entry %d not rejected", i)
		}
	}
	if got := q.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
}

func TestDrain_OneEntryPerTick(t *testing.T) {
	interval := 30 * time.Millisecond
	q := New(Options{Capacity: 5, DrainInterval: interval}, nil)

	var mu sync.Mutex
	var stamps []time.Time
	task := func(ctx context.Context) (string, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return "", nil
	}

	ch1, _ := q.Enqueue(domain.PriorityNormal, task)
	ch2, _ := q.Enqueue(domain.PriorityNormal, task)

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer q.Stop()

	for _, ch := range []<-chan Result{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for drain")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 2 {
		t.Fatalf("ran %d tasks, want 2", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < interval/2 {
		t.Errorf("entries drained %v apart, want at least one tick (%v)", gap, interval)
	}
}
