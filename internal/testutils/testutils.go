// Package testutils provides a recording work source and helper functions for pool tests
package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/wtpool/pkg/types"
	"github.com/stretchr/testify/require"
)

// Default timings for tests running on the real clock
const (
	WaitTimeout = 5 * time.Second
	WaitTick    = 5 * time.Millisecond
)

// WorkFunc processes n work units taken by worker w
type WorkFunc func(ctx context.Context, w types.WorkerRef, n int) error

// Source is a work source counting every callback it receives. Work is a
// plain counter of pending units guarded by the source mutex.
type Source struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	work    WorkFunc

	startupErr atomic.Pointer[error]
	batch      atomic.Int32

	startups   atomic.Int64
	shutdowns  atomic.Int64
	cancels    atomic.Int64
	processed  atomic.Int64
	doWorks    atomic.Int64
	idleBrief  atomic.Int64
	idleSleep  atomic.Int64
	lockChecks atomic.Int64

	eventsMu sync.Mutex
	events   []string
}

var (
	_ types.WorkSource        = (*Source)(nil)
	_ types.BatchSizer        = (*Source)(nil)
	_ types.ProcessedNotifier = (*Source)(nil)
	_ types.IdleChecker       = (*Source)(nil)
	_ types.IdleNotifier      = (*Source)(nil)
	_ types.CancelNotifier    = (*Source)(nil)
	_ types.LifecycleNotifier = (*Source)(nil)
	_ types.StopChecker       = (*Source)(nil)
)

// NewSource creates a source whose work units are handled by work; nil work
// consumes units without doing anything
func NewSource(work WorkFunc) *Source {
	s := &Source{work: work}
	s.cond = sync.NewCond(&s.mu)
	s.batch.Store(1)
	return s
}

// Cond returns the condition to lend to the pool
func (s *Source) Cond() *sync.Cond {
	return s.cond
}

// Add makes n more work units available and wakes one waiting worker per unit
func (s *Source) Add(n int) {
	s.mu.Lock()
	s.pending += n
	for i := 0; i < n; i++ {
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// Pending returns the number of units not yet taken
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetBatchSize sets the value returned by DeqBatchSize
func (s *Source) SetBatchSize(n int) {
	s.batch.Store(int32(n))
}

// FailStartup makes every following OnWorkerStartup return err; nil clears it
func (s *Source) FailStartup(err error) {
	if err == nil {
		s.startupErr.Store(nil)
		return
	}
	s.startupErr.Store(&err)
}

// DoWork implements types.WorkSource
func (s *Source) DoWork(ctx context.Context, w types.WorkerRef, maxBatch int) (types.WorkStatus, error) {
	s.doWorks.Add(1)

	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return types.WorkIdle, nil
	}
	n := min(maxBatch, s.pending)
	s.pending -= n
	s.mu.Unlock()

	if s.work == nil {
		return types.WorkDone, nil
	}
	return types.WorkDone, s.work(ctx, w, n)
}

// ChkStopWorker implements types.StopChecker; it never asks a worker to stop
func (s *Source) ChkStopWorker(ctx context.Context, w types.WorkerRef, lockHeld bool) bool {
	if lockHeld {
		s.lockChecks.Add(1)
	}
	return false
}

// DeqBatchSize implements types.BatchSizer
func (s *Source) DeqBatchSize(ctx context.Context) int {
	return int(s.batch.Load())
}

// ObjProcessed implements types.ProcessedNotifier
func (s *Source) ObjProcessed(ctx context.Context, w types.WorkerRef) {
	s.processed.Add(1)
}

// IsIdle implements types.IdleChecker; the caller holds the source mutex
func (s *Source) IsIdle(ctx context.Context, pool types.PoolInfo) bool {
	return s.pending == 0
}

// OnIdle implements types.IdleNotifier
func (s *Source) OnIdle(ctx context.Context, mode types.IdleMode) {
	if mode == types.IdleSleep {
		s.idleSleep.Add(1)
		return
	}
	s.idleBrief.Add(1)
}

// OnWorkerCancel implements types.CancelNotifier
func (s *Source) OnWorkerCancel(ctx context.Context, w types.WorkerRef) {
	s.cancels.Add(1)
	s.record(fmt.Sprintf("cancel %s", w))
}

// OnWorkerStartup implements types.LifecycleNotifier
func (s *Source) OnWorkerStartup(ctx context.Context) error {
	if err := s.startupErr.Load(); err != nil {
		return *err
	}
	s.startups.Add(1)
	s.record("startup")
	return nil
}

// OnWorkerShutdown implements types.LifecycleNotifier
func (s *Source) OnWorkerShutdown(ctx context.Context) {
	s.shutdowns.Add(1)
	s.record("shutdown")
}

func (s *Source) record(event string) {
	s.eventsMu.Lock()
	s.events = append(s.events, event)
	s.eventsMu.Unlock()
}

// Events returns the recorded lifecycle events in order
func (s *Source) Events() []string {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return append([]string(nil), s.events...)
}

// Startups returns the number of successful OnWorkerStartup calls
func (s *Source) Startups() int64 { return s.startups.Load() }

// Shutdowns returns the number of OnWorkerShutdown calls
func (s *Source) Shutdowns() int64 { return s.shutdowns.Load() }

// Cancels returns the number of OnWorkerCancel calls
func (s *Source) Cancels() int64 { return s.cancels.Load() }

// Processed returns the number of ObjProcessed calls
func (s *Source) Processed() int64 { return s.processed.Load() }

// DoWorks returns the number of DoWork calls
func (s *Source) DoWorks() int64 { return s.doWorks.Load() }

// IdleSleeps returns the number of OnIdle(IdleSleep) calls
func (s *Source) IdleSleeps() int64 { return s.idleSleep.Load() }

// IdleBriefs returns the number of OnIdle(IdleBrief) calls
func (s *Source) IdleBriefs() int64 { return s.idleBrief.Load() }

// LockedStopChecks returns the number of stop checks made with the source mutex held
func (s *Source) LockedStopChecks() int64 { return s.lockChecks.Load() }

// BlockUntilCancelled is a WorkFunc that never finishes on its own
func BlockUntilCancelled(ctx context.Context, _ types.WorkerRef, _ int) error {
	<-ctx.Done()
	return ctx.Err()
}

// Gate is a WorkFunc that blocks every worker until Open is called
type Gate struct {
	ch      chan struct{}
	once    sync.Once
	entered atomic.Int64
}

// NewGate creates a closed gate
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Work implements WorkFunc
func (g *Gate) Work(ctx context.Context, _ types.WorkerRef, _ int) error {
	g.entered.Add(1)
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open releases all blocked and future workers
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Entered returns how many work calls reached the gate
func (g *Gate) Entered() int64 {
	return g.entered.Load()
}

// Context returns a context cancelled when the test ends
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), WaitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// WaitFor waits until condition holds on the real clock
func WaitFor(t testing.TB, condition func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, condition, WaitTimeout, WaitTick, msgAndArgs...)
}
