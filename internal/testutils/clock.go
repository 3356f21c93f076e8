package testutils

import (
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// WaitForTimer waits on the real clock until some goroutine has armed a timer
// on the mock clock
func WaitForTimer(t testing.TB, mock *quartz.Mock) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := mock.Peek()
		return ok
	}, WaitTimeout, WaitTick, "no timer armed on mock clock")
}

// FireNext advances the mock clock to its next timer and waits until the
// timer callbacks have run
func FireNext(t testing.TB, mock *quartz.Mock) {
	t.Helper()
	WaitForTimer(t, mock)
	d, ok := mock.Peek()
	require.True(t, ok)
	mock.Advance(d).MustWait(Context(t))
}
