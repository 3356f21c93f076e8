// Package types defines core interfaces and types shared by the pool and its work sources
package types

import (
	"context"
	"fmt"
)

// PoolState defines the state of a worker pool
type PoolState int32

const (
	// StateRunning workers run in regular mode
	StateRunning PoolState = iota
	// StateShutdownGraceful workers shut down once the work source is idle
	StateShutdownGraceful
	// StateShutdownImmediate workers shut down as soon as possible, even if not idle
	StateShutdownImmediate
)

// String returns the string representation of PoolState
func (s PoolState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateShutdownGraceful:
		return "ShutdownGraceful"
	case StateShutdownImmediate:
		return "ShutdownImmediate"
	default:
		return "Unknown"
	}
}

// IsShutdown reports whether s is one of the shutdown states
func (s PoolState) IsShutdown() bool {
	return s == StateShutdownGraceful || s == StateShutdownImmediate
}

// WorkerRef is a handle to a worker slot. Gen changes every time the slot is
// reused, so a stale handle never refers to a newer worker.
type WorkerRef struct {
	Slot int
	Gen  uint64
}

// String returns the string representation of WorkerRef
func (r WorkerRef) String() string {
	return fmt.Sprintf("%d/%d", r.Slot, r.Gen)
}

// WorkStatus is the outcome of a DoWork call
type WorkStatus int

const (
	// WorkDone means work was dequeued and processed
	WorkDone WorkStatus = iota
	// WorkIdle means the work source had nothing to do
	WorkIdle
	// WorkAbort means the worker must terminate now
	WorkAbort
)

// String returns the string representation of WorkStatus
func (s WorkStatus) String() string {
	switch s {
	case WorkDone:
		return "done"
	case WorkIdle:
		return "idle"
	case WorkAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// IdleMode tells OnIdle what the worker does next
type IdleMode int

const (
	// IdleBrief means the worker saw no work but will not block
	IdleBrief IdleMode = iota
	// IdleSleep means the worker is about to wait for work
	IdleSleep
)

// String returns the string representation of IdleMode
func (m IdleMode) String() string {
	if m == IdleSleep {
		return "sleep"
	}
	return "brief"
}

// StopDecision is the result of a worker stop check
type StopDecision int

const (
	// Continue keeps the worker running
	Continue StopDecision = iota
	// StopWhenIdle stops the worker once the work source has nothing left
	StopWhenIdle
	// StopNow stops the worker before it takes more work
	StopNow
)

// String returns the string representation of StopDecision
func (d StopDecision) String() string {
	switch d {
	case Continue:
		return "continue"
	case StopWhenIdle:
		return "stop-when-idle"
	case StopNow:
		return "stop-now"
	default:
		return "unknown"
	}
}

// PoolInfo is the read-only view of a pool handed to callbacks. All methods
// are lock-free and may be called with the user mutex held.
type PoolInfo interface {
	Label() string
	State() PoolState
	CurrentWorkers() int
	DesiredWorkers() int
}

// WorkSource is the only callback a pool requires. The source is the user
// context: every callback is invoked on it.
type WorkSource interface {
	// DoWork dequeues at most maxBatch items and processes them
	DoWork(ctx context.Context, w WorkerRef, maxBatch int) (WorkStatus, error)
}

// StopChecker adds a source specific stop condition. lockHeld tells whether
// the caller already holds the user mutex.
type StopChecker interface {
	ChkStopWorker(ctx context.Context, w WorkerRef, lockHeld bool) bool
}

// BatchSizer returns the maximum number of items a worker dequeues at once
type BatchSizer interface {
	DeqBatchSize(ctx context.Context) int
}

// ProcessedNotifier is told when a DoWork call consumed work
type ProcessedNotifier interface {
	ObjProcessed(ctx context.Context, w WorkerRef)
}

// RateLimiter is called before every DoWork and may block
type RateLimiter interface {
	RateLimit(ctx context.Context)
}

// IdleChecker reports whether the source has no work. Called with the user
// mutex held, and possibly with the pool mutex held too: only the PoolInfo
// methods of pool may be used.
type IdleChecker interface {
	IsIdle(ctx context.Context, pool PoolInfo) bool
}

// IdleNotifier is told when a worker goes idle. Called with the user mutex held.
type IdleNotifier interface {
	OnIdle(ctx context.Context, mode IdleMode)
}

// CancelNotifier is told before a worker is forcibly cancelled, so it can
// recover the in-flight work of that worker
type CancelNotifier interface {
	OnWorkerCancel(ctx context.Context, w WorkerRef)
}

// LifecycleNotifier is called exactly once per worker at startup and shutdown.
// A startup error prevents the worker from running. Neither hook runs under a
// pool lock, so both may query the pool.
type LifecycleNotifier interface {
	OnWorkerStartup(ctx context.Context) error
	OnWorkerShutdown(ctx context.Context)
}

// Consumer processes one work item
type Consumer[T any] func(ctx context.Context, item T) error

// ErrorHandler defines an error handling function. The pool calls it with
// every *WorkerError; the returned error is only logged.
type ErrorHandler func(error) error

// Observer receives pool events, for metrics collection. StateChanged is
// reported with StateRunning once, when the pool is finalized.
type Observer interface {
	WorkerStarted(label string)
	WorkerStopped(label string)
	WorkerCancelled(label string)
	WorkFailed(label string)
	StateChanged(label string, state PoolState)
	ShutdownEscalated(label string)
}

// NopObserver ignores all events
type NopObserver struct{}

func (NopObserver) WorkerStarted(string) {}
func (NopObserver) WorkerStopped(string) {}
func (NopObserver) WorkerCancelled(string) {}
func (NopObserver) WorkFailed(string) {}
func (NopObserver) StateChanged(string, PoolState) {}
func (NopObserver) ShutdownEscalated(string) {}
