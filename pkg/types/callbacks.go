package types

import (
	"context"
	"fmt"
)

// CallbackFuncs builds a work source out of plain functions, one per callback.
// Nil functions are skipped; DoWorkFn is required.
type CallbackFuncs struct {
	DoWorkFn           func(ctx context.Context, w WorkerRef, maxBatch int) (WorkStatus, error)
	ChkStopWorkerFn    func(ctx context.Context, w WorkerRef, lockHeld bool) bool
	DeqBatchSizeFn     func(ctx context.Context) int
	ObjProcessedFn     func(ctx context.Context, w WorkerRef)
	RateLimitFn        func(ctx context.Context)
	IsIdleFn           func(ctx context.Context, pool PoolInfo) bool
	OnIdleFn           func(ctx context.Context, mode IdleMode)
	OnWorkerCancelFn   func(ctx context.Context, w WorkerRef)
	OnWorkerStartupFn  func(ctx context.Context) error
	OnWorkerShutdownFn func(ctx context.Context)
}

var (
	_ WorkSource        = (*CallbackFuncs)(nil)
	_ StopChecker       = (*CallbackFuncs)(nil)
	_ BatchSizer        = (*CallbackFuncs)(nil)
	_ ProcessedNotifier = (*CallbackFuncs)(nil)
	_ RateLimiter       = (*CallbackFuncs)(nil)
	_ IdleChecker       = (*CallbackFuncs)(nil)
	_ IdleNotifier      = (*CallbackFuncs)(nil)
	_ CancelNotifier    = (*CallbackFuncs)(nil)
	_ LifecycleNotifier = (*CallbackFuncs)(nil)
)

// Validate checks that the required callbacks are set
func (c *CallbackFuncs) Validate() error {
	if c.DoWorkFn == nil {
		return fmt.Errorf("%w: DoWork callback is not set", ErrConfiguration)
	}
	return nil
}

// DoWork implements WorkSource
func (c *CallbackFuncs) DoWork(ctx context.Context, w WorkerRef, maxBatch int) (WorkStatus, error) {
	if c.DoWorkFn == nil {
		return WorkAbort, fmt.Errorf("%w: DoWork callback is not set", ErrConfiguration)
	}
	return c.DoWorkFn(ctx, w, maxBatch)
}

// ChkStopWorker implements StopChecker
func (c *CallbackFuncs) ChkStopWorker(ctx context.Context, w WorkerRef, lockHeld bool) bool {
	if c.ChkStopWorkerFn == nil {
		return false
	}
	return c.ChkStopWorkerFn(ctx, w, lockHeld)
}

// DeqBatchSize implements BatchSizer
func (c *CallbackFuncs) DeqBatchSize(ctx context.Context) int {
	if c.DeqBatchSizeFn == nil {
		return 1
	}
	return c.DeqBatchSizeFn(ctx)
}

// ObjProcessed implements ProcessedNotifier
func (c *CallbackFuncs) ObjProcessed(ctx context.Context, w WorkerRef) {
	if c.ObjProcessedFn != nil {
		c.ObjProcessedFn(ctx, w)
	}
}

// RateLimit implements RateLimiter
func (c *CallbackFuncs) RateLimit(ctx context.Context) {
	if c.RateLimitFn != nil {
		c.RateLimitFn(ctx)
	}
}

// IsIdle implements IdleChecker
func (c *CallbackFuncs) IsIdle(ctx context.Context, pool PoolInfo) bool {
	if c.IsIdleFn == nil {
		return true
	}
	return c.IsIdleFn(ctx, pool)
}

// OnIdle implements IdleNotifier
func (c *CallbackFuncs) OnIdle(ctx context.Context, mode IdleMode) {
	if c.OnIdleFn != nil {
		c.OnIdleFn(ctx, mode)
	}
}

// OnWorkerCancel implements CancelNotifier
func (c *CallbackFuncs) OnWorkerCancel(ctx context.Context, w WorkerRef) {
	if c.OnWorkerCancelFn != nil {
		c.OnWorkerCancelFn(ctx, w)
	}
}

// OnWorkerStartup implements LifecycleNotifier
func (c *CallbackFuncs) OnWorkerStartup(ctx context.Context) error {
	if c.OnWorkerStartupFn == nil {
		return nil
	}
	return c.OnWorkerStartupFn(ctx)
}

// OnWorkerShutdown implements LifecycleNotifier
func (c *CallbackFuncs) OnWorkerShutdown(ctx context.Context) {
	if c.OnWorkerShutdownFn != nil {
		c.OnWorkerShutdownFn(ctx)
	}
}
