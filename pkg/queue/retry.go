package queue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed item is consumed again, and after how long
type RetryPolicy interface {
	// ShouldRetry reports whether to retry after the attempt-th failure
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before attempt+1
	NextDelay(attempt int) time.Duration
}

// RetryCondition reports whether an error is worth retrying
type RetryCondition func(error) bool

// ExponentialBackoff retries with delays growing by Multiplier up to MaxDelay.
// Cancellation errors are never retried.
type ExponentialBackoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// Jitter spreads each delay by up to this fraction in both directions
	Jitter float64

	// Retryable filters errors, nil retries every error
	Retryable RetryCondition
}

// NewExponentialBackoff creates a policy doubling the delay on every attempt
func NewExponentialBackoff(maxAttempts int, initialDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// ShouldRetry implements RetryPolicy
func (b *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= b.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return b.Retryable == nil || b.Retryable(err)
}

// NextDelay implements RetryPolicy
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(b.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if b.MaxDelay > 0 && (delay > b.MaxDelay || delay < 0) {
		delay = b.MaxDelay
	}
	return applyJitter(delay, b.Jitter)
}

func applyJitter(delay time.Duration, factor float64) time.Duration {
	if factor <= 0 || factor > 1 {
		return delay
	}

	jitterRange := float64(delay) * factor
	result := delay + time.Duration((rand.Float64()-0.5)*2*jitterRange)
	if result < 0 {
		result = delay / 2
	}
	return result
}

// consume runs the consumer on one item, retrying as the policy allows.
// A cancelled wait returns the last consumer error.
func (q *Queue[T]) consume(ctx context.Context, item T) error {
	policy := q.config.retry
	for attempt := 1; ; attempt++ {
		err := q.consumer(ctx, item)
		if err == nil || policy == nil || !policy.ShouldRetry(err, attempt) {
			return err
		}
		q.retried.Add(1)

		t := q.config.clock.NewTimer(policy.NextDelay(attempt), "queue", "retry")
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return err
		}
	}
}
