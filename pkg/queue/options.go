package queue

import (
	"log/slog"
	"runtime"

	"github.com/coder/quartz"
	"golang.org/x/time/rate"
)

// config holds the queue settings collected from options
type config struct {
	batchSize      int
	maxWorkers     int
	itemsPerWorker int
	limiter        *rate.Limiter
	retry          RetryPolicy
	clock          quartz.Clock
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		batchSize:      1,
		maxWorkers:     runtime.NumCPU(),
		itemsPerWorker: 1,
		clock:          quartz.NewReal(),
		logger:         slog.Default(),
	}
}

// Option is a functional option for configuring the queue
type Option func(*config)

// WithBatchSize sets how many items a worker dequeues at once
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxWorkers caps the worker count the queue advises to its pool
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithItemsPerWorker sets how many pending items justify one more worker
func WithItemsPerWorker(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.itemsPerWorker = n
		}
	}
}

// WithRateLimit limits how often workers dequeue. batchesPerSecond is the
// sustained rate, burst the number of batches allowed at once.
//
// Example:
//
//	WithRateLimit(100, 10) // 100 batches/sec with bursts of 10
func WithRateLimit(batchesPerSecond float64, burst int) Option {
	return func(c *config) {
		if batchesPerSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), burst)
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry consumes a failed item again while policy allows it. The worker
// holding the item waits out the delay; cancelling the worker ends the wait.
func WithRetry(policy RetryPolicy) Option {
	return func(c *config) {
		c.retry = policy
	}
}

// WithClock sets the clock used for retry delays
func WithClock(clock quartz.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
