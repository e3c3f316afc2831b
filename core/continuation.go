package core

import (
	"context"
	"fmt"
	"time"
)

// ContinuationCondition decides, from the antecedent's terminal state, whether a
// continuation runs. The zero value is ContinueAny.
type ContinuationCondition int

const (
	ContinueAny ContinuationCondition = iota
	ContinueOnSuccess
	ContinueOnFault
	ContinueOnCanceled
)

func (c ContinuationCondition) String() string {
	switch c {
	case ContinueAny:
		return "Any"
	case ContinueOnSuccess:
		return "OnSuccess"
	case ContinueOnFault:
		return "OnFault"
	case ContinueOnCanceled:
		return "OnCanceled"
	default:
		return fmt.Sprintf("ContinuationCondition(%d)", int(c))
	}
}

// Matches reports whether a continuation with this condition runs after an
// antecedent that ended in state.
func (c ContinuationCondition) Matches(state TaskState) bool {
	switch c {
	case ContinueAny:
		return state.IsTerminal()
	case ContinueOnSuccess:
		return state == StateRanToCompletion
	case ContinueOnFault:
		return state == StateFaulted
	case ContinueOnCanceled:
		return state == StateCanceled
	default:
		return false
	}
}

// ContinuationFunc is the work of a continuation; it receives the terminal
// antecedent and may inspect its State, Result and Err.
type ContinuationFunc[R, S any] func(ctx context.Context, antecedent *Task[R]) (S, error)

// continuation is one entry of an antecedent's continuation list. The antecedent
// references the successor only until it fires.
type continuation struct {
	successor Runnable
	pool      func() ThreadPool
	condition ContinuationCondition
}

// fire schedules the successor when the condition matches the antecedent's terminal
// state, and otherwise moves it straight to Canceled without running it.
func (c continuation) fire(antecedent TaskState) {
	if !c.condition.Matches(antecedent) {
		c.successor.cancelPending(fmt.Errorf("continuation condition %s not met by antecedent state %s",
			c.condition, antecedent))
		return
	}

	pool := c.pool()
	if pool == nil {
		c.successor.cancelPending(ErrNoThreadPool)
		return
	}
	if err := pool.Submit(c.successor); err != nil {
		c.successor.cancelPending(err)
	}
}

// ContinueWith creates a task that runs fn after antecedent reaches a terminal state
// matching cond. The continuation's payload is the antecedent. It runs on the pool
// the antecedent ran on unless WithThreadPool says otherwise.
//
// The returned task is in StateCreated and must not be started by the caller: it is
// scheduled when the antecedent completes, immediately if the antecedent is already
// terminal, or moved to Canceled when cond does not match.
func ContinueWith[R, S any](antecedent *Task[R], fn ContinuationFunc[R, S], cond ContinuationCondition, opts ...TaskOption) *Task[S] {
	o := collectTaskOptions(opts)
	if o.pool == nil {
		o.pool = antecedent.pool
	}
	o.payload = antecedent

	work := func(ctx context.Context, _ any) (S, error) {
		return fn(ctx, antecedent)
	}
	successor := newTask(work, resolveTaskName(fn, o.name), o)
	successor.continuation = true

	antecedent.addContinuation(continuation{
		successor: successor,
		pool: func() ThreadPool {
			pool := successor.pool
			if pool == nil {
				pool = antecedent.ranOn
			}
			if pool == nil {
				pool = DefaultThreadPool()
			}
			successor.ranOn = pool
			return pool
		},
		condition: cond,
	})
	return successor
}

// ContinueWith attaches follow-up work that produces no value. See the package-level
// ContinueWith for the scheduling rules.
func (t *Task[R]) ContinueWith(fn func(ctx context.Context, antecedent *Task[R]) error, cond ContinuationCondition, opts ...TaskOption) *Task[struct{}] {
	if !hasName(opts) {
		opts = append([]TaskOption{WithName(resolveTaskName(fn, ""))}, opts...)
	}
	return ContinueWith(t, func(ctx context.Context, antecedent *Task[R]) (struct{}, error) {
		return struct{}{}, fn(ctx, antecedent)
	}, cond, opts...)
}

func hasName(opts []TaskOption) bool {
	return collectTaskOptions(opts).name != ""
}

// Delay returns a task that completes after d without occupying a worker while it
// waits. It is a convenient antecedent for time-based continuations.
func Delay(d time.Duration, opts ...TaskOption) (*Task[struct{}], error) {
	t := NewActionTask(func(context.Context, any) error { return nil }, append([]TaskOption{WithName("delay")}, opts...)...)
	if err := t.StartAfter(d); err != nil {
		return nil, err
	}
	return t, nil
}
