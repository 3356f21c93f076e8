// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrConfiguration indicates a missing callback or an invalid parameter
	ErrConfiguration = errors.New("invalid pool configuration")

	// ErrResource indicates a worker could not be started
	ErrResource = errors.New("worker resource unavailable")

	// ErrState indicates an operation attempted in an invalid pool state
	ErrState = errors.New("invalid pool state")
)

// PoolError represents an error returned by a pool operation
type PoolError struct {
	// Op is the name of the pool operation that failed
	Op string

	// Label is the debug label of the pool
	Label string

	// Kind is one of ErrConfiguration, ErrResource or ErrState
	Kind error

	// Cause is the underlying error, may be nil
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// NewPoolError creates a new pool error of the given kind
func NewPoolError(op, label string, kind, cause error) *PoolError {
	return &PoolError{
		Op:      op,
		Label:   label,
		Kind:    kind,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *PoolError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s: %v", e.Label, e.Op, e.Kind)
	}
	if errors.Is(e.Cause, e.Kind) {
		return fmt.Sprintf("%s: %s: %v", e.Label, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Label, e.Op, e.Kind, e.Cause)
}

// Unwrap returns both the error kind and the underlying cause
func (e *PoolError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// WithContext adds error context
func (e *PoolError) WithContext(key string, value interface{}) *PoolError {
	e.Context[key] = value
	return e
}

// WorkerError represents a failure of a single unit of work. It never stops the pool.
type WorkerError struct {
	// Worker is the handle of the worker that ran the work
	Worker WorkerRef

	// Cause is the underlying error
	Cause error

	// Panic is true when the work panicked and was recovered
	Panic bool

	// StackTrace is captured for recovered panics
	StackTrace string
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("worker %s: panic: %v", e.Worker, e.Cause)
	}
	return fmt.Sprintf("worker %s: %v", e.Worker, e.Cause)
}

// Unwrap returns the underlying error
func (e *WorkerError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether err is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsResourceError reports whether err is a resource error
func IsResourceError(err error) bool {
	return errors.Is(err, ErrResource)
}

// IsStateError reports whether err is a state error
func IsStateError(err error) bool {
	return errors.Is(err, ErrState)
}

// IsWorkerError reports whether err is, or wraps, a WorkerError
func IsWorkerError(err error) bool {
	var we *WorkerError
	return errors.As(err, &we)
}
