package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrCanceled is matched by every cancellation outcome (errors.Is).
	ErrCanceled = errors.New("operation was canceled")

	// ErrInvalidState is matched by operations attempted in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid task state")

	// ErrTimeout is matched when a bounded wait elapses first.
	ErrTimeout = errors.New("wait timed out")

	// ErrPoolClosed is returned when submitting to a thread pool that has shut down.
	ErrPoolClosed = errors.New("thread pool is shut down")

	// ErrNoThreadPool is returned when a task has no pool and no default is installed.
	ErrNoThreadPool = errors.New("no thread pool available")
)

// =============================================================================
// AggregateError
// =============================================================================

// AggregateError carries one or more task failures in the order they were collected.
// Result and Wait on a faulted task return an AggregateError wrapping the original
// cause, so errors.Is and errors.As reach the error the work function returned.
type AggregateError struct {
	Errors []error
}

// NewAggregateError collects the non-nil errors, flattening nested aggregates and
// multierr values. It returns nil when nothing remains.
func NewAggregateError(errs ...error) *AggregateError {
	var flat []error
	for _, err := range multierr.Errors(multierr.Combine(errs...)) {
		if agg, ok := err.(*AggregateError); ok {
			flat = append(flat, agg.Errors...)
			continue
		}
		flat = append(flat, err)
	}
	if len(flat) == 0 {
		return nil
	}
	return &AggregateError{Errors: flat}
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	b.WriteString("one or more errors occurred")
	for _, err := range e.Errors {
		b.WriteString(" (")
		b.WriteString(err.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// First returns the first collected error, or nil.
func (e *AggregateError) First() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}

// =============================================================================
// CanceledError
// =============================================================================

// CanceledError reports that a task ended in the Canceled state.
// Cause is the error that triggered the cancellation, if any.
type CanceledError struct {
	TaskID TaskID
	Cause  error
}

func (e *CanceledError) Error() string {
	msg := "operation was canceled"
	if !e.TaskID.IsZero() {
		msg = fmt.Sprintf("task %s was canceled", e.TaskID)
	}
	if e.Cause != nil && e.Cause != ErrCanceled {
		if _, nested := e.Cause.(*CanceledError); !nested {
			msg += ": " + e.Cause.Error()
		}
	}
	return msg
}

func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

func (e *CanceledError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// InvalidStateError
// =============================================================================

// InvalidStateError reports an operation that is not valid for the task's state.
type InvalidStateError struct {
	TaskID TaskID
	Op     string
	State  TaskState
	Reason string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("task %s: cannot %s in state %s", e.TaskID, e.Op, e.State)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// =============================================================================
// TimeoutError
// =============================================================================

// TimeoutError reports that a bounded wait elapsed. The awaited tasks are unaffected.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("wait timed out after %v", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// =============================================================================
// PanicError
// =============================================================================

// PanicError is stored as the fault of a task whose work function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// isCancellation reports whether err returned from a work function means the work
// aborted cooperatively.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
