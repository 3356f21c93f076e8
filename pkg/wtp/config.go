package wtp

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/wtpool/pkg/types"
)

// IdleForever disables the idle shutdown of workers
const IdleForever time.Duration = -1

// Config contains configuration for a worker pool
type Config struct {
	// MaxWorkers is the capacity of the worker table
	MaxWorkers int

	// IdleShutdownTimeout is how long a worker may stay idle before it stops.
	// IdleForever keeps idle workers, 0 stops them as soon as they go idle.
	IdleShutdownTimeout time.Duration

	// ShutdownTimeout bounds the graceful phase of Close
	ShutdownTimeout time.Duration

	// Label tags log lines and metrics, generated when empty
	Label string
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:          runtime.NumCPU(),
		IdleShutdownTimeout: time.Minute,
		ShutdownTimeout:     1500 * time.Millisecond,
	}
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("%w: max workers must be positive, got %d", types.ErrConfiguration, c.MaxWorkers)
	}
	if c.IdleShutdownTimeout < IdleForever {
		return fmt.Errorf("%w: idle shutdown timeout must be >= -1, got %v", types.ErrConfiguration, c.IdleShutdownTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown timeout must not be negative, got %v", types.ErrConfiguration, c.ShutdownTimeout)
	}
	return nil
}

// Option is a functional option for configuring the pool
type Option func(*Pool)

// WithClock sets the clock used for idle and shutdown timeouts
func WithClock(clock quartz.Clock) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver sets the receiver of pool events
func WithObserver(observer types.Observer) Option {
	return func(p *Pool) {
		if observer != nil {
			p.observer = observer
		}
	}
}

// WithErrorHandler sets the handler that receives every worker error
func WithErrorHandler(handler types.ErrorHandler) Option {
	return func(p *Pool) {
		p.errorHandler = handler
	}
}
