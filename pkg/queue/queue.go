// Package queue provides an in-memory FIFO work source for the worker pool.
//
// The queue owns the user mutex and condition the pool sleeps on, advises the
// pool how many workers its backlog needs, and recovers the in-flight items of
// cancelled workers so they are not lost.
//
//	q := queue.New(consume, queue.WithBatchSize(16), queue.WithMaxWorkers(4))
//	p, err := wtp.NewFromConfig(cfg, q, q.Cond())
//	...
//	q.Attach(p)
//	q.Enqueue(item)
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jzx17/wtpool/pkg/types"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Enqueue after Close
var ErrClosed = fmt.Errorf("%w: queue is closed", types.ErrState)

// Pool is the part of the worker pool the queue talks to
type Pool interface {
	types.PoolInfo
	AdviseMaxWorkers(n int) error
}

// Producer feeds items into the queue through enqueue until it returns
type Producer[T any] func(ctx context.Context, enqueue func(T) error) error

// Stats is a snapshot of the queue counters
type Stats struct {
	Enqueued  int64
	Processed int64
	Failed    int64
	Requeued  int64
	Retried   int64
	Batches   int64
	Pending   int
	Workers   int64
}

// batch is the set of items a worker dequeued. Items are claimed one by one
// through next, so an item is either consumed by the worker or requeued.
type batch[T any] struct {
	items []T
	next  atomic.Int64
}

// claim returns the index of the next item to consume, or -1
func (b *batch[T]) claim() int {
	i := b.next.Add(1) - 1
	if i >= int64(len(b.items)) {
		return -1
	}
	return int(i)
}

// unclaimed takes every item not yet claimed
func (b *batch[T]) unclaimed() []T {
	i := b.next.Swap(int64(len(b.items)))
	if i >= int64(len(b.items)) {
		return nil
	}
	return b.items[i:]
}

// Queue is a FIFO work source. It implements every pool callback except OnIdle.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	inflight map[types.WorkerRef]*batch[T]
	closed   bool

	consumer types.Consumer[T]
	config   config
	pool     atomic.Pointer[poolRef]
	enqOnly  atomic.Bool

	enqueued  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	requeued  atomic.Int64
	retried   atomic.Int64
	batches   atomic.Int64
	workers   atomic.Int64
}

type poolRef struct {
	Pool
}

var (
	_ types.WorkSource        = (*Queue[int])(nil)
	_ types.StopChecker       = (*Queue[int])(nil)
	_ types.BatchSizer        = (*Queue[int])(nil)
	_ types.ProcessedNotifier = (*Queue[int])(nil)
	_ types.RateLimiter       = (*Queue[int])(nil)
	_ types.IdleChecker       = (*Queue[int])(nil)
	_ types.CancelNotifier    = (*Queue[int])(nil)
	_ types.LifecycleNotifier = (*Queue[int])(nil)
)

// New creates a queue whose items are handled by consumer
func New[T any](consumer types.Consumer[T], opts ...Option) *Queue[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &Queue[T]{
		inflight: make(map[types.WorkerRef]*batch[T]),
		consumer: consumer,
		config:   cfg,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Validate implements the pool's work source validation
func (q *Queue[T]) Validate() error {
	if q.consumer == nil {
		return fmt.Errorf("%w: queue consumer is not set", types.ErrConfiguration)
	}
	return nil
}

// Cond returns the condition to lend to the pool; its L guards the queue
func (q *Queue[T]) Cond() *sync.Cond {
	return q.cond
}

// Attach connects the pool the queue advises, and advises it for the
// current backlog
func (q *Queue[T]) Attach(p Pool) {
	q.pool.Store(&poolRef{Pool: p})
	q.advise(q.Len())
}

// Enqueue appends an item and wakes a worker, starting more workers if the
// backlog needs them
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.enqueued.Add(1)
	n := len(q.items)
	q.cond.Signal()
	q.mu.Unlock()

	q.advise(n)
	return nil
}

// EnqueueAll appends items in order under one lock acquisition
func (q *Queue[T]) EnqueueAll(items ...T) error {
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, items...)
	q.enqueued.Add(int64(len(items)))
	n := len(q.items)
	q.cond.Broadcast()
	q.mu.Unlock()

	q.advise(n)
	return nil
}

// Produce runs the producers concurrently. The first failing producer
// cancels the others and its error is returned.
func (q *Queue[T]) Produce(ctx context.Context, producers ...Producer[T]) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, produce := range producers {
		g.Go(func() error {
			return produce(ctx, q.Enqueue)
		})
	}
	return g.Wait()
}

// Close rejects further items. Items already queued are still handed out.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// SetEnqueueOnly stops workers from dequeuing while on. Turning it off wakes
// the pool again.
func (q *Queue[T]) SetEnqueueOnly(on bool) {
	if q.enqOnly.Swap(on) == on {
		return
	}
	if !on {
		q.advise(q.Len())
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// Len returns the number of queued items, in-flight items excluded
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of the queue counters
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Requeued:  q.requeued.Load(),
		Retried:   q.retried.Load(),
		Batches:   q.batches.Load(),
		Pending:   q.Len(),
		Workers:   q.workers.Load(),
	}
}

// advise asks the pool for enough workers for n pending items. It only ever
// asks for more workers than are running; shrinking is left to idle timeouts.
func (q *Queue[T]) advise(n int) {
	ref := q.pool.Load()
	if ref == nil || n == 0 || q.enqOnly.Load() {
		return
	}
	p := ref.Pool
	if p.State() != types.StateRunning {
		return
	}

	want := min((n+q.config.itemsPerWorker-1)/q.config.itemsPerWorker, q.config.maxWorkers)
	if want <= p.CurrentWorkers() {
		return
	}
	if err := p.AdviseMaxWorkers(want); err != nil && !types.IsStateError(err) {
		q.config.logger.Warn("advising worker count failed",
			slog.String("pool", p.Label()), slog.Int("workers", want), slog.Any("error", err))
	}
}

// DoWork implements types.WorkSource
func (q *Queue[T]) DoWork(ctx context.Context, w types.WorkerRef, maxBatch int) (types.WorkStatus, error) {
	if q.enqOnly.Load() {
		return types.WorkIdle, nil
	}

	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return types.WorkIdle, nil
	}
	n := min(maxBatch, len(q.items))
	b := &batch[T]{items: make([]T, n)}
	copy(b.items, q.items)
	clear(q.items[:n])
	q.items = q.items[n:]
	q.inflight[w] = b
	q.mu.Unlock()

	defer q.finish(w, b)

	var errs []error
	for i := b.claim(); i >= 0; i = b.claim() {
		if err := q.consume(ctx, b.items[i]); err != nil {
			q.failed.Add(1)
			errs = append(errs, err)
		} else {
			q.processed.Add(1)
		}
		if ctx.Err() != nil {
			return types.WorkDone, ctx.Err()
		}
	}
	return types.WorkDone, errors.Join(errs...)
}

// finish drops the worker's batch, requeueing items it never reached
func (q *Queue[T]) finish(w types.WorkerRef, b *batch[T]) {
	left := b.unclaimed()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[w] == b {
		delete(q.inflight, w)
	}
	q.requeueLocked(left)
}

// requeueLocked puts items back at the head of the queue
func (q *Queue[T]) requeueLocked(items []T) {
	if len(items) == 0 {
		return
	}
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
	q.requeued.Add(int64(len(items)))
	q.cond.Broadcast()
}

// OnWorkerCancel implements types.CancelNotifier. The cancelled worker keeps
// only the item it is consuming; the rest of its batch goes back to the queue.
func (q *Queue[T]) OnWorkerCancel(ctx context.Context, w types.WorkerRef) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b, ok := q.inflight[w]
	if !ok {
		return
	}
	delete(q.inflight, w)
	q.requeueLocked(b.unclaimed())
}

// ChkStopWorker implements types.StopChecker: workers stop while the queue
// is in enqueue-only mode
func (q *Queue[T]) ChkStopWorker(ctx context.Context, w types.WorkerRef, lockHeld bool) bool {
	return q.enqOnly.Load()
}

// DeqBatchSize implements types.BatchSizer
func (q *Queue[T]) DeqBatchSize(ctx context.Context) int {
	return q.config.batchSize
}

// ObjProcessed implements types.ProcessedNotifier
func (q *Queue[T]) ObjProcessed(ctx context.Context, w types.WorkerRef) {
	q.batches.Add(1)
}

// RateLimit implements types.RateLimiter
func (q *Queue[T]) RateLimit(ctx context.Context) {
	if q.config.limiter != nil {
		// a cancelled wait only means the worker is stopping
		_ = q.config.limiter.Wait(ctx)
	}
}

// IsIdle implements types.IdleChecker; the caller holds the queue mutex
func (q *Queue[T]) IsIdle(ctx context.Context, pool types.PoolInfo) bool {
	return len(q.items) == 0 || q.enqOnly.Load()
}

// OnWorkerStartup implements types.LifecycleNotifier
func (q *Queue[T]) OnWorkerStartup(ctx context.Context) error {
	q.workers.Add(1)
	return nil
}

// OnWorkerShutdown implements types.LifecycleNotifier
func (q *Queue[T]) OnWorkerShutdown(ctx context.Context) {
	q.workers.Add(-1)
}
