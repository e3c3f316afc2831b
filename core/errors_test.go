package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestNewAggregateError(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	errC := errors.New("c")

	if NewAggregateError() != nil || NewAggregateError(nil, nil) != nil {
		t.Error("NewAggregateError without errors must be nil")
	}

	agg := NewAggregateError(errA, nil, NewAggregateError(errB), multierr.Combine(errC))
	if len(agg.Errors) != 3 || agg.Errors[0] != errA || agg.Errors[1] != errB || agg.Errors[2] != errC {
		t.Fatalf("Errors = %v, want flattened [a b c]", agg.Errors)
	}
	for _, target := range []error{errA, errB, errC} {
		if !errors.Is(agg, target) {
			t.Errorf("errors.Is(agg, %v) = false", target)
		}
	}
	if msg := agg.Error(); !strings.Contains(msg, "(a)") || !strings.Contains(msg, "(c)") {
		t.Errorf("Error() = %q", msg)
	}

	var nilAgg *AggregateError
	if nilAgg.First() != nil {
		t.Error("First() on nil aggregate must be nil")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"canceled", &CanceledError{TaskID: 3}, ErrCanceled},
		{"invalid state", &InvalidStateError{TaskID: 3, Op: "start", State: StateRunning}, ErrInvalidState},
		{"timeout", &TimeoutError{Timeout: time.Second}, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestCanceledError_Message(t *testing.T) {
	if got := (&CanceledError{}).Error(); got != "operation was canceled" {
		t.Errorf("Error() = %q", got)
	}
	got := (&CanceledError{TaskID: 9, Cause: ErrPoolClosed}).Error()
	if !strings.Contains(got, "task 9") || !strings.Contains(got, ErrPoolClosed.Error()) {
		t.Errorf("Error() = %q, want task ID and cause", got)
	}
	if !errors.Is(&CanceledError{Cause: ErrPoolClosed}, ErrPoolClosed) {
		t.Error("CanceledError must unwrap to its cause")
	}
}

func TestInvalidStateError_Message(t *testing.T) {
	err := &InvalidStateError{TaskID: 4, Op: "start", State: StateScheduled, Reason: "already started"}
	want := "task 4: cannot start in state Scheduled (already started)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPanicError_Unwrap(t *testing.T) {
	cause := errors.New("nil map")
	if !errors.Is(&PanicError{Value: cause}, cause) {
		t.Error("PanicError with an error value must unwrap to it")
	}
	if (&PanicError{Value: 42}).Unwrap() != nil {
		t.Error("PanicError with a non-error value must not unwrap")
	}
}

func TestTaskState_String(t *testing.T) {
	states := map[TaskState]string{
		StateCreated:         "Created",
		StateScheduled:       "Scheduled",
		StateRunning:         "Running",
		StateRanToCompletion: "RanToCompletion",
		StateFaulted:         "Faulted",
		StateCanceled:        "Canceled",
		TaskState(99):        "Unknown",
	}
	for state, want := range states {
		if state.String() != want {
			t.Errorf("String() = %q, want %q", state.String(), want)
		}
	}
	if StateRunning.IsTerminal() || !StateCanceled.IsTerminal() {
		t.Error("IsTerminal misclassifies states")
	}
}
