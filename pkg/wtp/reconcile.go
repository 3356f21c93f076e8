package wtp

import (
	"context"
	"log/slog"

	"github.com/jzx17/wtpool/pkg/types"
)

// AdviseMaxWorkers sets the desired worker count, clamped to the table
// capacity, and reconciles the running workers against it
func (p *Pool) AdviseMaxWorkers(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkUsableLocked("AdviseMaxWorkers"); err != nil {
		return err
	}
	if n < 0 {
		return p.errorf("AdviseMaxWorkers", types.ErrConfiguration, "worker count must not be negative, got %d", n)
	}
	if st := p.State(); st != types.StateRunning {
		return p.errorf("AdviseMaxWorkers", types.ErrState, "pool is %s", st)
	}
	if n > len(p.slots) {
		n = len(p.slots)
	}

	p.desired.Store(int32(n))
	return p.processThreadChangesLocked()
}

// ProcessThreadChanges starts missing workers, or wakes idle ones so that
// excess workers retire at their next stop check. Calling it without a count
// change does nothing.
func (p *Pool) ProcessThreadChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkUsableLocked("ProcessThreadChanges"); err != nil {
		return err
	}
	return p.processThreadChangesLocked()
}

func (p *Pool) processThreadChangesLocked() error {
	// startWorkerLocked drops the mutex during the startup handshake, so the
	// counts are re-read after every start
	for {
		desired := int(p.desired.Load())
		active := p.activeLocked()

		if active > desired {
			p.WakeupAllWorkers()
			return nil
		}
		if active == desired || p.destructed || p.State() != types.StateRunning {
			return nil
		}
		// retiring workers keep their slot until they exit
		if int(p.current.Load()) >= len(p.slots) {
			return nil
		}
		if err := p.startWorkerLocked(); err != nil {
			return err
		}
	}
}

// activeLocked returns the number of workers that are not retiring
func (p *Pool) activeLocked() int {
	return int(p.current.Load() - p.retiring.Load())
}

// startWorkerLocked occupies a free slot and starts its worker. It returns
// once OnWorkerStartup has completed. The pool mutex is released while the
// startup hook runs, so the hook may query the pool.
func (p *Pool) startWorkerLocked() error {
	idx := -1
	for i, s := range p.slots {
		if !s.occupied {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p.errorf("ProcessThreadChanges", types.ErrResource, "no free worker slot (capacity %d)", len(p.slots))
	}

	s := p.slots[idx]
	ref := types.WorkerRef{Slot: idx, Gen: s.gen.Add(1)}
	ctx, cancel := context.WithCancel(p.baseCtx)
	s.occupied = true
	s.cancelled = false
	s.cancel = cancel
	s.retiring.Store(false)
	p.current.Add(1)

	started := make(chan error, 1)
	go p.runWorker(ctx, s, ref, started)

	p.mu.Unlock()
	err := <-started
	p.mu.Lock()

	// the occupied slot is counted in current, so Destruct cannot have run
	if err != nil {
		cancel()
		s.occupied = false
		s.cancel = nil
		p.current.Add(-1)
		p.thrdTrm.Broadcast()
		p.log.Warn("worker startup failed", slog.String("worker", ref.String()), slog.Any("error", err))
		return types.NewPoolError("ProcessThreadChanges", p.label, types.ErrResource, err).
			WithContext("worker", ref.String())
	}

	p.observer.WorkerStarted(p.label)
	p.log.Debug("worker started", slog.String("worker", ref.String()),
		slog.Int("current", p.CurrentWorkers()), slog.Int("desired", p.DesiredWorkers()))
	return nil
}

// releaseSlot empties the slot of an exiting worker and signals the
// termination condition
func (p *Pool) releaseSlot(s *slot, ref types.WorkerRef, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.occupied = false
	retired := s.retiring.Swap(false)
	if retired {
		p.retiring.Add(-1)
	}
	p.current.Add(-1)

	p.observer.WorkerStopped(p.label)
	p.log.Debug("worker stopped", slog.String("worker", ref.String()), slog.String("reason", reason),
		slog.Int("current", p.CurrentWorkers()))
	p.thrdTrm.Broadcast()

	if p.destructed || p.State() != types.StateRunning || p.activeLocked() >= p.DesiredWorkers() {
		return
	}
	// desired was raised while this worker was retiring, or work arrived after
	// an idle worker decided to exit; an enqueue in that window still counted
	// this worker as running
	if retired || (reason == exitIdleTimeout && p.workPending()) {
		if err := p.processThreadChangesLocked(); err != nil {
			p.log.Warn("replacing exited worker failed", slog.Any("error", err))
		}
	}
}

// workPending asks the work source, under the user mutex, whether work is waiting
func (p *Pool) workPending() bool {
	mu := p.userCond.L
	mu.Lock()
	defer mu.Unlock()
	return !p.cb.isIdle(p.baseCtx, p)
}
