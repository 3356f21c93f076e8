// Package errors reports per-item worker failures without stopping the pool
package errors

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/jzx17/wtpool/pkg/types"
	"golang.org/x/time/rate"
)

// Default log throttling: at most one worker error line per second, bursts of 10
const (
	DefaultLogLimit = rate.Limit(1)
	DefaultLogBurst = 10
)

// Reporter passes worker errors to a user handler and logs what the handler
// does not absorb. Log output is throttled so a failing source cannot flood it.
type Reporter struct {
	label   string
	handler types.ErrorHandler
	logger  *slog.Logger
	limiter *rate.Limiter

	total      atomic.Int64
	logged     atomic.Int64
	suppressed atomic.Int64
}

// NewReporter creates a new reporter. A nil logger uses slog.Default, a zero
// limit uses DefaultLogLimit.
func NewReporter(label string, handler types.ErrorHandler, logger *slog.Logger, limit rate.Limit, burst int) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if limit == 0 {
		limit = DefaultLogLimit
	}
	if burst <= 0 {
		burst = DefaultLogBurst
	}

	return &Reporter{
		label:   label,
		handler: handler,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Report handles one worker error. It never blocks on the limiter.
func (r *Reporter) Report(ctx context.Context, werr *types.WorkerError) {
	if werr == nil {
		return
	}
	r.total.Add(1)

	var err error = werr
	if r.handler != nil {
		// nil means the handler absorbed the error
		if err = r.handler(werr); err == nil {
			return
		}
	}

	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	r.logged.Add(1)

	attrs := []any{
		slog.String("pool", r.label),
		slog.String("worker", werr.Worker.String()),
		slog.Any("error", err),
	}
	if n := r.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, slog.Int64("suppressed", n))
	}
	if werr.Panic {
		attrs = append(attrs, slog.String("stack", werr.StackTrace))
	}
	r.logger.ErrorContext(ctx, "worker error", attrs...)
}

// Total returns the number of reported errors
func (r *Reporter) Total() int64 {
	return r.total.Load()
}

// Logged returns the number of errors that were written to the log
func (r *Reporter) Logged() int64 {
	return r.logged.Load()
}

// Suppressed returns the number of errors dropped by log throttling since the last logged line
func (r *Reporter) Suppressed() int64 {
	return r.suppressed.Load()
}

// FromPanic converts a recovered panic value into a WorkerError with a stack trace
func FromPanic(w types.WorkerRef, recovered interface{}) *types.WorkerError {
	var buf [4096]byte
	n := runtime.Stack(buf[:], false)

	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	case string:
		cause = fmt.Errorf("%s", v)
	default:
		cause = fmt.Errorf("%v", v)
	}

	return &types.WorkerError{
		Worker:     w,
		Cause:      cause,
		Panic:      true,
		StackTrace: string(buf[:n]),
	}
}

// Wrap converts an error returned by DoWork into a WorkerError, keeping an
// existing WorkerError as is
func Wrap(w types.WorkerRef, err error) *types.WorkerError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*types.WorkerError); ok {
		return we
	}
	return &types.WorkerError{Worker: w, Cause: err}
}
