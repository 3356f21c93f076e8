package wtp

import (
	"context"

	"github.com/jzx17/wtpool/pkg/types"
)

// callbacks is the optional part of the callback table, resolved once at Finalize
type callbacks struct {
	stop      types.StopChecker
	sizer     types.BatchSizer
	processed types.ProcessedNotifier
	limiter   types.RateLimiter
	idle      types.IdleChecker
	idleNote  types.IdleNotifier
	cancel    types.CancelNotifier
	lifecycle types.LifecycleNotifier
}

func resolveCallbacks(src types.WorkSource) callbacks {
	var c callbacks
	c.stop, _ = src.(types.StopChecker)
	c.sizer, _ = src.(types.BatchSizer)
	c.processed, _ = src.(types.ProcessedNotifier)
	c.limiter, _ = src.(types.RateLimiter)
	c.idle, _ = src.(types.IdleChecker)
	c.idleNote, _ = src.(types.IdleNotifier)
	c.cancel, _ = src.(types.CancelNotifier)
	c.lifecycle, _ = src.(types.LifecycleNotifier)
	return c
}

func (c *callbacks) chkStop(ctx context.Context, w types.WorkerRef, lockHeld bool) bool {
	return c.stop != nil && c.stop.ChkStopWorker(ctx, w, lockHeld)
}

func (c *callbacks) batchSize(ctx context.Context) int {
	if c.sizer == nil {
		return 1
	}
	if n := c.sizer.DeqBatchSize(ctx); n > 0 {
		return n
	}
	return 1
}

func (c *callbacks) objProcessed(ctx context.Context, w types.WorkerRef) {
	if c.processed != nil {
		c.processed.ObjProcessed(ctx, w)
	}
}

func (c *callbacks) rateLimit(ctx context.Context) {
	if c.limiter != nil {
		c.limiter.RateLimit(ctx)
	}
}

// isIdle defaults to true: DoWork already reported no work
func (c *callbacks) isIdle(ctx context.Context, p types.PoolInfo) bool {
	return c.idle == nil || c.idle.IsIdle(ctx, p)
}

func (c *callbacks) onIdle(ctx context.Context, mode types.IdleMode) {
	if c.idleNote != nil {
		c.idleNote.OnIdle(ctx, mode)
	}
}

func (c *callbacks) onCancel(ctx context.Context, w types.WorkerRef) {
	if c.cancel != nil {
		c.cancel.OnWorkerCancel(ctx, w)
	}
}

func (c *callbacks) startup(ctx context.Context) error {
	if c.lifecycle == nil {
		return nil
	}
	return c.lifecycle.OnWorkerStartup(ctx)
}

func (c *callbacks) shutdown(ctx context.Context) {
	if c.lifecycle != nil {
		c.lifecycle.OnWorkerShutdown(ctx)
	}
}
