package wtp

import (
	"context"
	"errors"
	"sync/atomic"

	wtperrors "github.com/jzx17/wtpool/internal/errors"
	"github.com/jzx17/wtpool/pkg/types"
)

// slot is one entry of the worker table. occupied, cancelled and cancel are
// guarded by the pool mutex; gen and retiring are read by the worker itself
// without it.
type slot struct {
	occupied  bool
	cancelled bool
	cancel    context.CancelFunc
	gen       atomic.Uint64
	retiring  atomic.Bool
}

// runWorker is the body of one worker goroutine
func (p *Pool) runWorker(ctx context.Context, s *slot, ref types.WorkerRef, started chan<- error) {
	if err := p.startup(ctx, ref); err != nil {
		started <- err
		return
	}
	started <- nil

	reason := p.workerLoop(ctx, ref)
	p.shutdown(ctx, ref)
	p.releaseSlot(s, ref, reason)
}

func (p *Pool) startup(ctx context.Context, ref types.WorkerRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wtperrors.FromPanic(ref, r)
		}
	}()
	return p.cb.startup(ctx)
}

// shutdown runs OnWorkerShutdown; a panic there must not leave the slot occupied
func (p *Pool) shutdown(ctx context.Context, ref types.WorkerRef) {
	defer func() {
		if r := recover(); r != nil {
			p.reporter.Report(ctx, wtperrors.FromPanic(ref, r))
		}
	}()
	p.cb.shutdown(ctx)
}

// Exit reasons of a worker, reported to releaseSlot
const (
	exitCancelled    = "cancelled"
	exitStopped      = "stop requested"
	exitAborted      = "aborted by work source"
	exitShutdownIdle = "idle during shutdown"
	exitIdleTimeout  = "idle timeout"
)

// workerLoop pulls work until the worker has to stop and returns the reason
func (p *Pool) workerLoop(ctx context.Context, ref types.WorkerRef) string {
	timedOut := false

	for {
		if ctx.Err() != nil {
			return exitCancelled
		}
		p.cb.rateLimit(ctx)
		if ctx.Err() != nil {
			return exitCancelled
		}

		decision := p.ChkStopWrkr(ctx, ref, false)
		if decision == types.StopNow {
			return exitStopped
		}

		status, werr := p.doWork(ctx, ref)
		if werr != nil {
			if ctx.Err() != nil && errors.Is(werr, ctx.Err()) {
				return exitCancelled
			}
			// a failing item never takes the worker down
			p.observer.WorkFailed(p.label)
			p.reporter.Report(ctx, werr)
			p.cb.objProcessed(ctx, ref)
			timedOut = false
			continue
		}

		switch status {
		case types.WorkAbort:
			return exitAborted
		case types.WorkDone:
			p.cb.objProcessed(ctx, ref)
			timedOut = false
			continue
		}

		if decision == types.StopWhenIdle {
			return exitShutdownIdle
		}

		var reason string
		if reason, timedOut = p.waitForWork(ctx, ref, timedOut); reason != "" {
			return reason
		}
	}
}

// doWork runs one DoWork call, turning errors and panics into WorkerErrors
func (p *Pool) doWork(ctx context.Context, ref types.WorkerRef) (status types.WorkStatus, werr *types.WorkerError) {
	defer func() {
		if r := recover(); r != nil {
			status = types.WorkDone
			werr = wtperrors.FromPanic(ref, r)
		}
	}()

	status, err := p.source.DoWork(ctx, ref, p.cb.batchSize(ctx))
	return status, wtperrors.Wrap(ref, err)
}

// waitForWork blocks on the user condition until work may be available. All
// exit decisions of an idle worker are taken here, under the user mutex and
// after the work source reported idle. It returns the exit reason when the
// worker must stop, and timedOut when the wait ended by the idle timeout.
func (p *Pool) waitForWork(ctx context.Context, ref types.WorkerRef, timedOut bool) (reason string, expired bool) {
	mu := p.userCond.L
	mu.Lock()
	defer mu.Unlock()

	// work may have arrived between DoWork and taking the lock
	if !p.cb.isIdle(ctx, p) {
		p.cb.onIdle(ctx, types.IdleBrief)
		return "", false
	}
	if ctx.Err() != nil {
		return exitCancelled, false
	}
	switch p.ChkStopWrkr(ctx, ref, true) {
	case types.StopNow:
		return exitStopped, false
	case types.StopWhenIdle:
		return exitShutdownIdle, false
	}

	timeout := p.IdleShutdownTimeout()
	if timedOut || timeout == 0 {
		p.cb.onIdle(ctx, types.IdleBrief)
		return exitIdleTimeout, false
	}
	p.cb.onIdle(ctx, types.IdleSleep)

	var fired atomic.Bool
	if timeout > 0 {
		t := p.clock.AfterFunc(timeout, func() {
			fired.Store(true)
			p.WakeupAllWorkers()
		}, "wtp", "idle")
		defer t.Stop()
	}

	p.userCond.Wait()
	return "", fired.Load()
}
