package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/vietddude/llmrelay/internal/core/domain"
)

// Policy defines retry behavior. MaxAttempts counts the initial attempt,
// so MaxAttempts=4 means one initial call plus three retries.
type Policy struct {
	MaxAttempts int
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added at most, never subtracted
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 4,
	MaxDelay:    15 * time.Second,
	Jitter:      0.20,
}

// ShouldRetry reports whether a failed attempt (1-based) may be retried.
// Model, Cors and Auth failures never retry; everything else retries
// until MaxAttempts, including Unknown.
func (p Policy) ShouldRetry(category domain.ErrorCategory, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return category.Retryable()
}

// Delay returns the jittered backoff delay for the given failed attempt.
// The base doubles per attempt, capped at MaxDelay; jitter is only added.
func (p Policy) Delay(attempt int, category domain.ErrorCategory) time.Duration {
	d := p.backoff(attempt, category)
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

func (p Policy) backoff(attempt int, category domain.ErrorCategory) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(category.BaseDelay()) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Do executes op with classification-driven retries. Transient categories
// retry per the policy; non-retryable categories surface on first
// occurrence. On exhaustion the last classified error is wrapped with a
// distinct retries-exhausted message, preserving its category.
func Do[T any](ctx context.Context, p Policy, target string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		classified := Classify(err, target)
		if !p.ShouldRetry(classified.Category, attempt) {
			if classified.Category.Retryable() && attempt >= p.MaxAttempts {
				return zero, &domain.ClassifiedError{
					Category: classified.Category,
					Message:  fmt.Sprintf("retries exhausted: tried %d times. %s", p.MaxAttempts, classified.Message),
					Cause:    classified,
				}
			}
			return zero, classified
		}

		delay := p.Delay(attempt, classified.Category)
		slog.Debug("retrying request",
			"attempt", attempt,
			"category", classified.Category.String(),
			"delay", delay)

		select {
		case <-ctx.Done():
			return zero, Classify(ctx.Err(), target)
		case <-time.After(delay):
		}
	}
}
