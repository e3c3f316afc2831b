package core

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// =============================================================================
// WaitAll
// =============================================================================

// WaitAll blocks until every task is terminal. It does not report individual
// failures; inspect each task, or call Faults, afterwards. Nil handles are ignored.
func WaitAll(tasks ...TaskHandle) {
	_ = WaitAllContext(context.Background(), tasks...)
}

// WaitAllTimeout is WaitAll bounded by d. It returns a *TimeoutError when d elapses
// first; the tasks keep running.
func WaitAllTimeout(d time.Duration, tasks ...TaskHandle) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	if err := WaitAllContext(ctx, tasks...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Timeout: d}
		}
		return err
	}
	return nil
}

// WaitAllContext is WaitAll bounded by ctx; it returns ctx.Err() if ctx ends first.
func WaitAllContext(ctx context.Context, tasks ...TaskHandle) error {
	for _, t := range tasks {
		if t == nil {
			continue
		}
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// =============================================================================
// WaitAny
// =============================================================================

// WaitAny blocks until at least one task is terminal and returns it. When several
// are already terminal at the time of the call, the one with the lowest ID wins.
// The other tasks are left running. It returns nil for an empty list.
func WaitAny(tasks ...TaskHandle) TaskHandle {
	t, _ := WaitAnyContext(context.Background(), tasks...)
	return t
}

// WaitAnyTimeout is WaitAny bounded by d; it returns a *TimeoutError when d elapses.
func WaitAnyTimeout(d time.Duration, tasks ...TaskHandle) (TaskHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	t, err := WaitAnyContext(ctx, tasks...)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, &TimeoutError{Timeout: d}
	}
	return t, err
}

// WaitAnyContext is WaitAny bounded by ctx.
func WaitAnyContext(ctx context.Context, tasks ...TaskHandle) (TaskHandle, error) {
	live := make([]TaskHandle, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	if t := lowestCompleted(live); t != nil {
		return t, nil
	}

	cases := make([]reflect.SelectCase, 0, len(live)+1)
	for _, t := range live {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.Done())})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(live) {
		return nil, ctx.Err()
	}
	// Select picks at random among ready cases; keep ties on the lowest ID.
	if t := lowestCompleted(live); t != nil {
		return t, nil
	}
	return live[chosen], nil
}

func lowestCompleted(tasks []TaskHandle) TaskHandle {
	var winner TaskHandle
	for _, t := range tasks {
		if !t.IsCompleted() {
			continue
		}
		if winner == nil || t.ID() < winner.ID() {
			winner = t
		}
	}
	return winner
}

// =============================================================================
// Aggregation
// =============================================================================

// Faults collects, in argument order, the errors of every faulted task into a single
// *AggregateError. It returns nil when no task faulted. Pending, successful and
// canceled tasks contribute nothing.
func Faults(tasks ...TaskHandle) error {
	var errs []error
	for _, t := range tasks {
		if t == nil || t.State() != StateFaulted {
			continue
		}
		errs = append(errs, t.Err())
	}
	if agg := NewAggregateError(errs...); agg != nil {
		return agg
	}
	return nil
}
