package errors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/jzx17/wtpool/pkg/types"
	"golang.org/x/time/rate"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TestReporterLogsUnhandledErrors tests that errors without a handler are logged
func TestReporterLogsUnhandledErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter("wtp-test", nil, newTestLogger(&buf), rate.Inf, 1)

	r.Report(context.Background(), &types.WorkerError{
		Worker: types.WorkerRef{Slot: 1, Gen: 3},
		Cause:  errors.New("bad record"),
	})

	if r.Total() != 1 {
		t.Errorf("Expected total 1, got %d", r.Total())
	}
	if r.Logged() != 1 {
		t.Errorf("Expected logged 1, got %d", r.Logged())
	}

	out := buf.String()
	for _, want := range []string{"worker error", "pool=wtp-test", "worker=1/3", "bad record"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %q, got %q", want, out)
		}
	}
}

// TestReporterHandlerAbsorbsError tests that a nil handler result suppresses logging
func TestReporterHandlerAbsorbsError(t *testing.T) {
	var buf bytes.Buffer
	var seen error
	handler := func(err error) error {
		seen = err
		return nil
	}
	r := NewReporter("wtp-test", handler, newTestLogger(&buf), rate.Inf, 1)

	werr := &types.WorkerError{Cause: errors.New("ignored")}
	r.Report(context.Background(), werr)

	if seen != werr {
		t.Errorf("Expected handler to receive the worker error, got %v", seen)
	}
	if r.Total() != 1 || r.Logged() != 0 {
		t.Errorf("Expected total 1 logged 0, got %d %d", r.Total(), r.Logged())
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no log output, got %q", buf.String())
	}
}

// TestReporterHandlerReplacesError tests that the handler result is what gets logged
func TestReporterHandlerReplacesError(t *testing.T) {
	var buf bytes.Buffer
	handler := func(err error) error {
		return errors.New("translated failure")
	}
	r := NewReporter("wtp-test", handler, newTestLogger(&buf), rate.Inf, 1)

	r.Report(context.Background(), &types.WorkerError{Cause: errors.New("raw")})

	if !strings.Contains(buf.String(), "translated failure") {
		t.Errorf("Expected translated error in log, got %q", buf.String())
	}
}

// TestReporterThrottling tests that log output is limited while all errors are counted
func TestReporterThrottling(t *testing.T) {
	var buf bytes.Buffer
	// A limit this low never refills during the test, only the burst is logged
	r := NewReporter("wtp-test", nil, newTestLogger(&buf), rate.Every(1e12), 2)

	for i := 0; i < 10; i++ {
		r.Report(context.Background(), &types.WorkerError{Cause: errors.New("flood")})
	}

	if r.Total() != 10 {
		t.Errorf("Expected total 10, got %d", r.Total())
	}
	if r.Logged() != 2 {
		t.Errorf("Expected logged 2, got %d", r.Logged())
	}
	if r.Suppressed() != 8 {
		t.Errorf("Expected suppressed 8, got %d", r.Suppressed())
	}
}

// TestReporterNil tests that a nil worker error is ignored
func TestReporterNil(t *testing.T) {
	r := NewReporter("wtp-test", nil, nil, 0, 0)
	r.Report(context.Background(), nil)

	if r.Total() != 0 {
		t.Errorf("Expected total 0, got %d", r.Total())
	}
}

// TestFromPanic tests conversion of recovered panic values
func TestFromPanic(t *testing.T) {
	ref := types.WorkerRef{Slot: 4, Gen: 2}
	sentinel := errors.New("sentinel")

	tests := []struct {
		name      string
		recovered interface{}
		wantMsg   string
	}{
		{"error value", sentinel, "sentinel"},
		{"string value", "exploded", "exploded"},
		{"other value", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			werr := FromPanic(ref, tt.recovered)

			if !werr.Panic {
				t.Errorf("Expected Panic to be set")
			}
			if werr.Worker != ref {
				t.Errorf("Expected worker %v, got %v", ref, werr.Worker)
			}
			if !strings.Contains(werr.Cause.Error(), tt.wantMsg) {
				t.Errorf("Expected cause to contain %q, got %q", tt.wantMsg, werr.Cause.Error())
			}
			if werr.StackTrace == "" {
				t.Errorf("Expected a stack trace")
			}
		})
	}

	if werr := FromPanic(ref, sentinel); !errors.Is(werr, sentinel) {
		t.Errorf("Expected panic error to unwrap to the sentinel")
	}
}

// TestWrap tests wrapping of DoWork errors
func TestWrap(t *testing.T) {
	ref := types.WorkerRef{Slot: 0, Gen: 1}

	if Wrap(ref, nil) != nil {
		t.Errorf("Expected nil for nil error")
	}

	plain := errors.New("plain")
	werr := Wrap(ref, plain)
	if werr.Worker != ref || !errors.Is(werr, plain) {
		t.Errorf("Expected wrapped error for worker %v, got %+v", ref, werr)
	}

	existing := &types.WorkerError{Worker: types.WorkerRef{Slot: 9}, Cause: plain}
	if Wrap(ref, existing) != existing {
		t.Errorf("Expected existing WorkerError to be returned unchanged")
	}
}
