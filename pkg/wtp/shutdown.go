package wtp

import (
	"log/slog"
	"time"

	"github.com/jzx17/wtpool/pkg/types"
)

// WakeupAllWorkers broadcasts on the user condition so every waiting worker
// re-checks its stop condition and the work source
func (p *Pool) WakeupAllWorkers() {
	if p.userCond == nil {
		return
	}
	p.userCond.L.Lock()
	p.userCond.Broadcast()
	p.userCond.L.Unlock()
}

// CancelAll forcibly cancels every occupied slot. OnWorkerCancel runs before
// the worker's context is cancelled so the work source can recover the
// worker's in-flight items. Each worker is cancelled at most once.
func (p *Pool) CancelAll() {
	type victim struct {
		ref    types.WorkerRef
		cancel func()
	}

	p.mu.Lock()
	if p.checkUsableLocked("CancelAll") != nil {
		p.mu.Unlock()
		return
	}
	var victims []victim
	for i, s := range p.slots {
		if !s.occupied || s.cancelled {
			continue
		}
		s.cancelled = true
		victims = append(victims, victim{ref: types.WorkerRef{Slot: i, Gen: s.gen.Load()}, cancel: s.cancel})
	}
	ctx := p.baseCtx
	p.mu.Unlock()

	// callbacks run without the pool mutex, they may query the pool
	for _, v := range victims {
		p.log.Debug("cancelling worker", slog.String("worker", v.ref.String()))
		p.cb.onCancel(ctx, v.ref)
		v.cancel()
		p.observer.WorkerCancelled(p.label)
	}
	p.WakeupAllWorkers()
}

// ShutdownAll stops all workers. mode is StateShutdownGraceful or
// StateShutdownImmediate; a negative timeout waits without bound.
//
// A graceful shutdown waits up to timeout for workers to drain the work
// source, then escalates to an immediate shutdown and waits until the
// cancelled workers are gone. A graceful shutdown with a zero timeout is an
// immediate shutdown. ShutdownAll only fails on invalid arguments or a pool
// that was never finalized; calling it on a terminated or destructed pool is
// a no-op.
func (p *Pool) ShutdownAll(mode types.PoolState, timeout time.Duration) error {
	if !mode.IsShutdown() {
		return p.errorf("ShutdownAll", types.ErrConfiguration, "%s is not a shutdown state", mode)
	}
	p.mu.Lock()
	destructed := p.destructed
	p.mu.Unlock()
	if destructed {
		return nil
	}
	if mode == types.StateShutdownGraceful && timeout == 0 {
		mode = types.StateShutdownImmediate
	}
	if err := p.SetState(mode); err != nil {
		return err
	}
	p.WakeupAllWorkers()

	if p.State() == types.StateShutdownImmediate {
		p.CancelAll()
		if !p.waitTermination(timeout) {
			p.log.Warn("workers still running after cancellation, waiting",
				slog.Duration("timeout", timeout), slog.Int("workers", p.CurrentWorkers()))
			p.waitTermination(-1)
		}
		return nil
	}

	if p.waitTermination(timeout) {
		return nil
	}

	p.log.Warn("graceful shutdown timed out, escalating to immediate shutdown",
		slog.Duration("timeout", timeout), slog.Int("workers", p.CurrentWorkers()))
	p.observer.ShutdownEscalated(p.label)
	if err := p.SetState(types.StateShutdownImmediate); err != nil {
		return err
	}
	p.CancelAll()
	p.waitTermination(-1)
	return nil
}

// waitTermination waits on the termination condition until no slot is
// occupied or timeout elapses. It reports whether all workers are gone.
func (p *Pool) waitTermination(timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Load() == 0 {
		return true
	}

	expired := false
	if timeout >= 0 {
		t := p.clock.AfterFunc(timeout, func() {
			p.mu.Lock()
			expired = true
			p.thrdTrm.Broadcast()
			p.mu.Unlock()
		}, "wtp", "shutdown")
		defer t.Stop()
	}

	for p.current.Load() > 0 && !expired {
		p.thrdTrm.Wait()
	}
	return p.current.Load() == 0
}
