package wtp

import (
	"strings"
	"testing"
	"time"

	"github.com/jzx17/wtpool/internal/testutils"
	"github.com/jzx17/wtpool/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetState(t *testing.T) {
	obs := &recordingObserver{}
	p := newTestPool(t, testutils.NewSource(nil), 2, WithObserver(obs))

	require.NoError(t, p.SetState(types.StateRunning), "same state is a no-op")
	require.NoError(t, p.SetState(types.StateShutdownGraceful))
	assert.Equal(t, types.StateShutdownGraceful, p.State())

	err := p.SetState(types.StateRunning)
	assert.True(t, types.IsStateError(err))

	require.NoError(t, p.SetState(types.StateShutdownImmediate))
	require.NoError(t, p.SetState(types.StateShutdownGraceful), "downgrade is ignored")
	assert.Equal(t, types.StateShutdownImmediate, p.State())

	err = p.SetState(types.PoolState(7))
	assert.True(t, types.IsConfigurationError(err))

	assert.Equal(t, []types.PoolState{
		types.StateRunning, types.StateShutdownGraceful, types.StateShutdownImmediate,
	}, obs.States())
}

func TestShutdownAll_InvalidMode(t *testing.T) {
	p := newTestPool(t, testutils.NewSource(nil), 2)

	err := p.ShutdownAll(types.StateRunning, time.Second)
	assert.True(t, types.IsConfigurationError(err))
	assert.Equal(t, types.StateRunning, p.State())
}

func TestShutdownAll_GracefulDrainsWork(t *testing.T) {
	src := testutils.NewSource(nil)
	p := newTestPool(t, src, 2)
	require.NoError(t, p.SetIdleShutdownTimeout(IdleForever))

	src.Add(100)
	require.NoError(t, p.AdviseMaxWorkers(2))
	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, 5*time.Second))

	assert.Zero(t, src.Pending())
	assert.Equal(t, int64(100), src.Processed())
	assert.Equal(t, int64(2), src.Shutdowns())
	assert.Zero(t, src.Cancels())
	assert.Equal(t, []string{"startup", "startup", "shutdown", "shutdown"}, src.Events())
}

func TestShutdownAll_Immediate(t *testing.T) {
	gate := testutils.NewGate()
	src := testutils.NewSource(gate.Work)
	obs := &recordingObserver{}
	p := newTestPool(t, src, 4, WithObserver(obs))

	src.Add(10)
	require.NoError(t, p.AdviseMaxWorkers(2))
	testutils.WaitFor(t, func() bool { return gate.Entered() == 2 })

	require.NoError(t, p.ShutdownAll(types.StateShutdownImmediate, time.Second))

	assert.Equal(t, 0, p.CurrentWorkers())
	assert.Equal(t, int64(2), src.Cancels())
	assert.Equal(t, int64(2), src.Shutdowns())
	assert.Equal(t, int64(2), obs.cancelled.Load())
	assert.Zero(t, obs.escalated.Load())
	assert.Zero(t, p.WorkerErrors(), "cancellation is not a worker error")
	assert.Equal(t, 8, src.Pending(), "cancelled workers take no more work")
}

func TestShutdownAll_GracefulEscalates(t *testing.T) {
	src := testutils.NewSource(testutils.BlockUntilCancelled)
	obs := &recordingObserver{}
	p := newTestPool(t, src, 2, WithObserver(obs))

	src.Add(1)
	require.NoError(t, p.AdviseMaxWorkers(1))
	testutils.WaitFor(t, func() bool { return src.DoWorks() == 1 })

	start := time.Now()
	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, 100*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, types.StateShutdownImmediate, p.State())
	assert.Equal(t, 0, p.CurrentWorkers())
	assert.Equal(t, int64(1), src.Cancels())
	assert.Equal(t, int64(1), src.Shutdowns())
	assert.Equal(t, int64(1), obs.escalated.Load())
}

func TestShutdownAll_GracefulEscalatesOnMockClock(t *testing.T) {
	mock := testutils.NewMockClock(t)
	src := testutils.NewSource(testutils.BlockUntilCancelled)
	p := newTestPool(t, src, 2, WithClock(mock))

	src.Add(1)
	require.NoError(t, p.AdviseMaxWorkers(1))
	testutils.WaitFor(t, func() bool { return src.DoWorks() == 1 })

	done := make(chan error, 1)
	go func() {
		done <- p.ShutdownAll(types.StateShutdownGraceful, 5*time.Second)
	}()

	testutils.WaitForTimer(t, mock)
	select {
	case <-done:
		t.Fatal("shutdown returned before its timeout")
	default:
	}
	assert.Equal(t, types.StateShutdownGraceful, p.State())
	assert.Zero(t, src.Cancels())

	testutils.FireNext(t, mock)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutils.WaitTimeout):
		t.Fatal("shutdown did not escalate")
	}
	assert.Equal(t, types.StateShutdownImmediate, p.State())
	assert.Equal(t, int64(1), src.Cancels())
}

// A graceful shutdown with a zero timeout is treated as an immediate one.
func TestShutdownAll_GracefulZeroTimeout(t *testing.T) {
	src := testutils.NewSource(testutils.BlockUntilCancelled)
	p := newTestPool(t, src, 2)

	src.Add(1)
	require.NoError(t, p.AdviseMaxWorkers(1))
	testutils.WaitFor(t, func() bool { return src.DoWorks() == 1 })

	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, 0))
	assert.Equal(t, types.StateShutdownImmediate, p.State())
	assert.Equal(t, int64(1), src.Cancels())
	assert.Equal(t, 0, p.CurrentWorkers())
}

func TestShutdownAll_Idempotent(t *testing.T) {
	src := testutils.NewSource(nil)
	p := newTestPool(t, src, 4)
	require.NoError(t, p.AdviseMaxWorkers(3))

	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, time.Second))
	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, time.Second))
	require.NoError(t, p.ShutdownAll(types.StateShutdownImmediate, time.Second))

	assert.Equal(t, int64(3), src.Startups())
	assert.Equal(t, int64(3), src.Shutdowns())
	assert.Zero(t, src.Cancels())
	assert.Equal(t, 0, p.CurrentWorkers())
}

func TestShutdownAll_AfterDestruct(t *testing.T) {
	src := testutils.NewSource(nil)
	p := newTestPool(t, src, 2)
	require.NoError(t, p.AdviseMaxWorkers(2))

	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, time.Second))
	require.NoError(t, p.Destruct())

	assert.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, time.Second))
	assert.NoError(t, p.ShutdownAll(types.StateShutdownImmediate, 0))
	assert.Equal(t, types.StateShutdownGraceful, p.State())
	assert.Zero(t, src.Cancels())
}

func TestShutdownAll_NoWorkers(t *testing.T) {
	p := newTestPool(t, testutils.NewSource(nil), 4)

	require.NoError(t, p.ShutdownAll(types.StateShutdownGraceful, -1))
	assert.Equal(t, types.StateShutdownGraceful, p.State())
}

func TestCancelAll_OncePerWorker(t *testing.T) {
	gate := testutils.NewGate()
	src := testutils.NewSource(gate.Work)
	p := newTestPool(t, src, 4)

	src.Add(2)
	require.NoError(t, p.AdviseMaxWorkers(2))
	testutils.WaitFor(t, func() bool { return gate.Entered() == 2 })

	p.CancelAll()
	p.CancelAll()

	testutils.WaitFor(t, func() bool { return p.CurrentWorkers() == 0 })
	assert.Equal(t, int64(2), src.Cancels())
	assert.Equal(t, types.StateRunning, p.State())

	events := src.Events()
	require.Len(t, events, 6)
	assert.Contains(t, events[2], "cancel", "OnWorkerCancel runs before the worker stops")
	cancels := 0
	for _, e := range events {
		if strings.HasPrefix(e, "cancel ") {
			cancels++
		}
	}
	assert.Equal(t, 2, cancels)
}

func TestWakeupAllWorkers(t *testing.T) {
	src := testutils.NewSource(nil)
	p := newTestPool(t, src, 2)
	require.NoError(t, p.SetIdleShutdownTimeout(IdleForever))
	require.NoError(t, p.AdviseMaxWorkers(2))
	testutils.WaitFor(t, func() bool { return src.IdleSleeps() >= 2 })

	before := src.DoWorks()
	p.WakeupAllWorkers()

	testutils.WaitFor(t, func() bool { return src.DoWorks() >= before+2 })
	testutils.WaitFor(t, func() bool { return src.IdleSleeps() >= 4 })
	assert.Equal(t, 2, p.CurrentWorkers())
}
