/*
Package wtp provides a worker thread pool engine: a dynamically sized set of worker goroutines that pull work from a caller-owned work source.

# Overview

The pool knows nothing about the work it runs. All domain behaviour is injected through the callback interfaces of the types package:
- DoWork (required): dequeue and process a batch
- Stop checks, batch sizing, rate limiting and idle detection
- Processed, idle, cancel, startup and shutdown notifications

The pool itself only owns:
- The worker table and the desired/current worker counts
- The pool state machine (Running, ShutdownGraceful, ShutdownImmediate)
- Idle and shutdown timeouts
- Synchronization between workers, the pool and the work source

# Lifecycle

	p := wtp.New(wtp.WithLogger(logger))
	p.SetMaxWorkers(8)
	p.SetIdleShutdownTimeout(time.Minute)
	p.SetWorkSource(source)
	p.SetUserCond(source.Cond())
	if err := p.Finalize(); err != nil {
		log.Fatal(err)
	}

	p.AdviseMaxWorkers(4)
	...
	p.ShutdownAll(types.StateShutdownGraceful, 5*time.Second)
	p.Destruct()

NewFromConfig does the same from a Config in one call, Close combines ShutdownAll and Destruct.

# Worker Count Reconciliation

AdviseMaxWorkers sets the desired worker count. Missing workers are started right away; OnWorkerStartup has run for each of them when the call returns. Excess workers are never interrupted: they retire at their next stop check, after finishing their current batch. Workers that stay idle longer than the idle shutdown timeout exit on their own; the work source advises the pool again when new work arrives.

# Synchronization

Two locks are involved:
- The pool mutex, private to the pool, guards the worker table and state
- The user mutex (the L of the condition lent with SetUserCond), owned by the work source, guards "work available"

The pool may take the user mutex while holding its own mutex, never the reverse. Workers evaluate ChkStopWrkr with the user mutex held before they sleep; it is lock-free with respect to the pool. Callbacks that run with the user mutex held (IsIdle, OnIdle, ChkStopWorker with lockHeld) may use the PoolInfo methods but must not call any other pool operation.

# Shutdown

ShutdownAll with StateShutdownGraceful lets workers drain the work source and stop once it is idle. If they do not finish within the timeout the pool escalates: it switches to StateShutdownImmediate, calls OnWorkerCancel for every remaining worker and cancels the worker contexts. Work sources must honour the context passed to DoWork, since a goroutine cannot be killed. Shutdown never fails because of a timeout; it returns once every worker is gone.

# Error Handling

Configuration problems are returned by Finalize and the setters (types.ErrConfiguration), startup failures by AdviseMaxWorkers and ProcessThreadChanges (types.ErrResource), operations in the wrong state return types.ErrState. Errors and panics from DoWork become *types.WorkerError values, go to the error handler and a throttled log, and never stop the worker.
*/
package wtp
