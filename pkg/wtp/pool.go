package wtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	wtperrors "github.com/jzx17/wtpool/internal/errors"
	"github.com/jzx17/wtpool/pkg/types"
)

// Pool manages a set of worker goroutines pulling work from one work source.
//
// Lock order: the pool mutex may be held while the user mutex is taken, never
// the reverse. Everything a worker does under the user mutex is lock-free with
// respect to the pool.
type Pool struct {
	// guards slots, finalized and destructed; state and counts are written under it
	mu sync.Mutex
	// signalled when a worker terminates
	thrdTrm *sync.Cond

	state    atomic.Int32
	desired  atomic.Int32
	current  atomic.Int32
	retiring atomic.Int32

	maxWorkers      int
	slots           []*slot
	idleTimeout     atomic.Int64
	shutdownTimeout time.Duration
	label           string

	source   types.WorkSource
	cb       callbacks
	userCond *sync.Cond

	clock        quartz.Clock
	logger       *slog.Logger
	log          *slog.Logger
	observer     types.Observer
	errorHandler types.ErrorHandler
	reporter     *wtperrors.Reporter

	baseCtx    context.Context
	baseCancel context.CancelFunc

	finalized  bool
	destructed bool
}

var _ types.PoolInfo = (*Pool)(nil)

// New creates an empty pool: no workers, state Running. Configure it with the
// setters, then call Finalize.
func New(opts ...Option) *Pool {
	defaults := DefaultConfig()
	p := &Pool{
		maxWorkers:      defaults.MaxWorkers,
		shutdownTimeout: defaults.ShutdownTimeout,
		clock:           quartz.NewReal(),
		logger:          slog.Default(),
		observer:        types.NopObserver{},
	}
	p.thrdTrm = sync.NewCond(&p.mu)
	p.idleTimeout.Store(int64(defaults.IdleShutdownTimeout))

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates and finalizes a pool in one step
func NewFromConfig(config *Config, src types.WorkSource, cond *sync.Cond, opts ...Option) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, types.NewPoolError("NewFromConfig", config.Label, types.ErrConfiguration, err)
	}

	p := New(opts...)
	p.maxWorkers = config.MaxWorkers
	p.idleTimeout.Store(int64(config.IdleShutdownTimeout))
	p.shutdownTimeout = config.ShutdownTimeout
	p.label = config.Label
	p.source = src
	p.userCond = cond

	if err := p.Finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetMaxWorkers sets the capacity of the worker table. Only valid before Finalize.
func (p *Pool) SetMaxWorkers(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return p.errorf("SetMaxWorkers", types.ErrState, "worker table already allocated")
	}
	p.maxWorkers = n
	return nil
}

// SetIdleShutdownTimeout sets how long workers may stay idle; see IdleForever
func (p *Pool) SetIdleShutdownTimeout(d time.Duration) error {
	if d < IdleForever {
		return p.errorf("SetIdleShutdownTimeout", types.ErrConfiguration, "timeout must be >= -1, got %v", d)
	}
	p.idleTimeout.Store(int64(d))
	return nil
}

// SetShutdownTimeout sets the graceful shutdown timeout used by Close
func (p *Pool) SetShutdownTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownTimeout = d
}

// SetLabel sets the debug label. Only valid before Finalize.
func (p *Pool) SetLabel(label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return p.errorf("SetLabel", types.ErrState, "pool already finalized")
	}
	p.label = label
	return nil
}

// SetLogger sets the structured logger. Only valid before Finalize.
func (p *Pool) SetLogger(logger *slog.Logger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return p.errorf("SetLogger", types.ErrState, "pool already finalized")
	}
	if logger != nil {
		p.logger = logger
	}
	return nil
}

// SetWorkSource installs the callback table. Only valid before Finalize.
func (p *Pool) SetWorkSource(src types.WorkSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return p.errorf("SetWorkSource", types.ErrState, "pool already finalized")
	}
	p.source = src
	return nil
}

// SetUserCond lends the work source's condition to the pool; cond.L is the
// user mutex. Both must outlive the pool. Only valid before Finalize.
func (p *Pool) SetUserCond(cond *sync.Cond) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		return p.errorf("SetUserCond", types.ErrState, "pool already finalized")
	}
	p.userCond = cond
	return nil
}

// Finalize validates the configuration and allocates the worker table
func (p *Pool) Finalize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finalized {
		return p.errorf("Finalize", types.ErrState, "pool already finalized")
	}
	if p.label == "" {
		p.label = "wtp-" + uuid.NewString()[:8]
	}
	if p.source == nil {
		return p.errorf("Finalize", types.ErrConfiguration, "work source is not set")
	}
	if v, ok := p.source.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return types.NewPoolError("Finalize", p.label, types.ErrConfiguration, err)
		}
	}
	if p.maxWorkers <= 0 {
		return types.NewPoolError("Finalize", p.label, types.ErrConfiguration,
			fmt.Errorf("max workers must be positive, got %d", p.maxWorkers)).
			WithContext("max_workers", p.maxWorkers)
	}
	if p.userCond == nil || p.userCond.L == nil {
		return p.errorf("Finalize", types.ErrConfiguration, "user condition is not set")
	}

	p.cb = resolveCallbacks(p.source)
	p.slots = make([]*slot, p.maxWorkers)
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())
	p.log = p.logger.With(slog.String("pool", p.label))
	p.reporter = wtperrors.NewReporter(p.label, p.errorHandler, p.logger, 0, 0)
	p.finalized = true
	p.observer.StateChanged(p.label, types.StateRunning)

	p.log.Debug("pool finalized", slog.Int("max_workers", p.maxWorkers),
		slog.Duration("idle_timeout", p.IdleShutdownTimeout()))
	return nil
}

// Destruct releases the worker table. All workers must have terminated.
func (p *Pool) Destruct() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destructed {
		return nil
	}
	if n := p.current.Load(); n > 0 {
		return types.NewPoolError("Destruct", p.label, types.ErrState,
			errors.New("workers still running")).WithContext("workers", int(n))
	}

	p.slots = nil
	p.destructed = true
	if p.baseCancel != nil {
		p.baseCancel()
	}
	if p.log != nil {
		p.log.Debug("pool destructed")
	}
	return nil
}

// Close shuts the pool down gracefully, escalating after the configured
// shutdown timeout, and destructs it
func (p *Pool) Close() error {
	p.mu.Lock()
	timeout, done := p.shutdownTimeout, p.destructed
	p.mu.Unlock()
	if done {
		return nil
	}

	if err := p.ShutdownAll(types.StateShutdownGraceful, timeout); err != nil {
		return err
	}
	return p.Destruct()
}

// Label returns the debug label
func (p *Pool) Label() string {
	return p.label
}

// State returns the pool state
func (p *Pool) State() types.PoolState {
	return types.PoolState(p.state.Load())
}

// CurrentWorkers returns the number of occupied worker slots
func (p *Pool) CurrentWorkers() int {
	return int(p.current.Load())
}

// DesiredWorkers returns the advised worker count
func (p *Pool) DesiredWorkers() int {
	return int(p.desired.Load())
}

// MaxWorkers returns the capacity of the worker table
func (p *Pool) MaxWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWorkers
}

// IdleShutdownTimeout returns the idle timeout of workers
func (p *Pool) IdleShutdownTimeout() time.Duration {
	return time.Duration(p.idleTimeout.Load())
}

// Workers returns the handles of all occupied slots
func (p *Pool) Workers() []types.WorkerRef {
	p.mu.Lock()
	defer p.mu.Unlock()

	refs := make([]types.WorkerRef, 0, len(p.slots))
	for i, s := range p.slots {
		if s.occupied {
			refs = append(refs, types.WorkerRef{Slot: i, Gen: s.gen.Load()})
		}
	}
	return refs
}

// WorkerErrors returns the number of worker errors reported so far
func (p *Pool) WorkerErrors() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reporter == nil {
		return 0
	}
	return p.reporter.Total()
}

// checkUsableLocked rejects operations on pools that are not finalized or already destructed
func (p *Pool) checkUsableLocked(op string) error {
	if !p.finalized {
		return p.errorf(op, types.ErrState, "pool is not finalized")
	}
	if p.destructed {
		return p.errorf(op, types.ErrState, "pool is destructed")
	}
	return nil
}

func (p *Pool) errorf(op string, kind error, format string, args ...interface{}) error {
	return types.NewPoolError(op, p.label, kind, fmt.Errorf(format, args...))
}
