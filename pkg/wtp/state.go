package wtp

import (
	"context"
	"log/slog"

	"github.com/jzx17/wtpool/pkg/types"
)

// SetState moves the pool to a new state. Running can only be left, and an
// immediate shutdown is never downgraded. Entering a shutdown state wakes all
// workers so they re-evaluate their stop condition.
func (p *Pool) SetState(state types.PoolState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkUsableLocked("SetState"); err != nil {
		return err
	}
	if state < types.StateRunning || state > types.StateShutdownImmediate {
		return p.errorf("SetState", types.ErrConfiguration, "unknown state %d", int(state))
	}

	cur := p.State()
	switch {
	case state == cur:
		return nil
	case state == types.StateRunning:
		return p.errorf("SetState", types.ErrState, "cannot return to %s from %s", state, cur)
	case cur == types.StateShutdownImmediate:
		return nil
	}

	p.state.Store(int32(state))
	p.observer.StateChanged(p.label, state)
	p.log.Debug("pool state changed", slog.String("from", cur.String()), slog.String("to", state.String()))

	p.thrdTrm.Broadcast()
	p.WakeupAllWorkers()
	return nil
}

// ChkStopWrkr tells the calling worker whether to stop. It never takes the
// pool mutex, so workers may call it with the user mutex held; lockHeld is
// passed on to the work source's own stop check.
func (p *Pool) ChkStopWrkr(ctx context.Context, w types.WorkerRef, lockHeld bool) types.StopDecision {
	switch p.State() {
	case types.StateShutdownImmediate:
		return types.StopNow
	case types.StateShutdownGraceful:
		return types.StopWhenIdle
	}

	if p.claimRetirement(w) {
		return types.StopNow
	}
	if p.cb.chkStop(ctx, w, lockHeld) {
		return types.StopNow
	}
	return types.Continue
}

// claimRetirement retires w if more workers run than desired. The claim is a
// CAS on the retiring counter so exactly the excess number of workers stop.
// Only the worker owning w may claim for it.
func (p *Pool) claimRetirement(w types.WorkerRef) bool {
	slots := p.slots
	// generations start at 1, Gen 0 never names a worker
	if w.Gen == 0 || w.Slot < 0 || w.Slot >= len(slots) {
		return false
	}
	s := slots[w.Slot]
	if s.gen.Load() != w.Gen {
		return false
	}
	if s.retiring.Load() {
		return true
	}

	for {
		r := p.retiring.Load()
		if p.current.Load()-r <= p.desired.Load() {
			return false
		}
		if p.retiring.CompareAndSwap(r, r+1) {
			s.retiring.Store(true)
			return true
		}
	}
}
