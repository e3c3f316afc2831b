package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Func is the unit of work of a result-bearing task. payload is the value given to
// WithPayload (the antecedent task for continuations). ctx carries the task's
// cancellation token (TokenFromContext) and is canceled when the token trips.
type Func[R any] func(ctx context.Context, payload any) (R, error)

// Action is the unit of work of a task that produces no value.
type Action func(ctx context.Context, payload any) error

// TaskHandle is the type-erased view of a task used by the wait combinators and
// by continuations that only inspect their antecedent's outcome.
type TaskHandle interface {
	ID() TaskID
	Name() string
	State() TaskState
	IsCompleted() bool
	Done() <-chan struct{}
	Err() error
	Payload() any
}

// Runnable is what a ThreadPool queues and executes. It is implemented only by
// *Task[R]; the unexported methods keep state transitions inside this package.
type Runnable interface {
	TaskHandle

	// Execute runs the task on the calling goroutine. It is a no-op unless the task
	// is Scheduled, so a worker may call it exactly once per dequeue.
	Execute(ctx context.Context) ExecutionReport

	// Token is the cancellation token the task observes.
	Token() CancellationToken

	markScheduled(at time.Time) bool
	cancelPending(cause error) bool
}

// ExecutionReport describes one Execute call, for metrics and history.
type ExecutionReport struct {
	TaskID     TaskID
	Name       string
	State      TaskState
	Err        error
	Executed   bool // false when pre-empted by cancellation or not Scheduled
	Panic      any
	Stack      []byte
	StartedAt  time.Time
	FinishedAt time.Time
}

// Times records when a task passed each lifecycle point. Zero values mean the
// point has not been reached.
type Times struct {
	Created   time.Time
	Scheduled time.Time
	Started   time.Time
	Finished  time.Time
}

// =============================================================================
// Task
// =============================================================================

// Task is one deferred computation producing a value of type R.
//
// A task is created in StateCreated and does nothing until Start (or a matching
// continuation trigger) hands it to a ThreadPool. State is readable at any time
// without blocking; Result, Wait and friends block until the task is terminal.
//
// The result and error slots are written once, on the terminal transition, and
// are immutable afterwards.
type Task[R any] struct {
	id           TaskID
	name         string
	payload      any
	fn           Func[R]
	token        CancellationToken
	pool         ThreadPool
	continuation bool

	// ranOn is the pool the task was actually submitted to; continuations
	// without an explicit pool follow it.
	ranOn ThreadPool

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	mu            sync.Mutex
	result        R
	err           error
	continuations []continuation
	times         Times
}

// NewTask creates a result-bearing task in StateCreated. It does not execute.
func NewTask[R any](fn Func[R], opts ...TaskOption) *Task[R] {
	o := collectTaskOptions(opts)
	return newTask(fn, resolveTaskName(fn, o.name), o)
}

// NewActionTask creates a task that runs fn and produces no value.
func NewActionTask(fn Action, opts ...TaskOption) *Task[struct{}] {
	o := collectTaskOptions(opts)
	return newTask(actionFunc(fn), resolveTaskName(fn, o.name), o)
}

func actionFunc(fn Action) Func[struct{}] {
	return func(ctx context.Context, payload any) (struct{}, error) {
		if fn == nil {
			panic("core: nil Action")
		}
		return struct{}{}, fn(ctx, payload)
	}
}

func newTask[R any](fn Func[R], name string, o taskOptions) *Task[R] {
	t := &Task[R]{
		id:      GenerateTaskID(),
		name:    name,
		payload: o.payload,
		fn:      fn,
		token:   o.token,
		pool:    o.pool,
		done:    make(chan struct{}),
	}
	t.times.Created = time.Now()
	return t
}

// ID returns the process-unique task identifier.
func (t *Task[R]) ID() TaskID { return t.id }

// Name returns the display name used in logs, history and metrics.
func (t *Task[R]) Name() string { return t.name }

// Payload returns the input value supplied at creation.
func (t *Task[R]) Payload() any { return t.payload }

// Token returns the cancellation token bound to the task.
func (t *Task[R]) Token() CancellationToken { return t.token }

// IsContinuation reports whether the task was created by ContinueWith.
func (t *Task[R]) IsContinuation() bool { return t.continuation }

// State returns a snapshot of the lifecycle state.
func (t *Task[R]) State() TaskState {
	return TaskState(t.state.Load())
}

// IsCompleted reports whether the task reached a terminal state.
func (t *Task[R]) IsCompleted() bool { return t.State().IsTerminal() }

// IsCompletedSuccessfully reports whether the task ran to completion.
func (t *Task[R]) IsCompletedSuccessfully() bool { return t.State() == StateRanToCompletion }

// IsFaulted reports whether the task ended with an error.
func (t *Task[R]) IsFaulted() bool { return t.State() == StateFaulted }

// IsCanceled reports whether the task ended canceled.
func (t *Task[R]) IsCanceled() bool { return t.State() == StateCanceled }

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task[R]) Done() <-chan struct{} { return t.done }

// Times returns the lifecycle timestamps recorded so far.
func (t *Task[R]) Times() Times {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.times
}

// =============================================================================
// Starting
// =============================================================================

// Start hands the task to its thread pool (WithThreadPool, or the process-wide
// default). It fails with *InvalidStateError when the task was already started or
// is a continuation, which the engine starts on its own.
func (t *Task[R]) Start() error {
	return t.StartOn(nil)
}

// StartOn is Start with an explicit pool; nil means the task's own pool.
func (t *Task[R]) StartOn(pool ThreadPool) error {
	if pool == nil {
		pool = t.threadPool()
	}
	if err := t.claimStart("start", pool); err != nil {
		return err
	}
	t.ranOn = pool
	if err := pool.Submit(t); err != nil {
		t.started.Store(false)
		return err
	}
	return nil
}

// StartAfter schedules the task and enqueues it once delay has elapsed.
func (t *Task[R]) StartAfter(delay time.Duration) error {
	pool := t.threadPool()
	if err := t.claimStart("start", pool); err != nil {
		return err
	}
	t.ranOn = pool
	if err := pool.SubmitAfter(t, delay); err != nil {
		t.started.Store(false)
		return err
	}
	return nil
}

// RunSynchronously executes the task on the calling goroutine and returns once it
// is terminal. Continuations still go to their pools.
func (t *Task[R]) RunSynchronously() error {
	if err := t.claimStartable("run synchronously"); err != nil {
		return err
	}
	if !t.markScheduled(time.Now()) {
		return &InvalidStateError{TaskID: t.id, Op: "run synchronously", State: t.State()}
	}
	t.Execute(context.Background())
	return nil
}

func (t *Task[R]) claimStart(op string, pool ThreadPool) error {
	if pool == nil {
		return ErrNoThreadPool
	}
	return t.claimStartable(op)
}

func (t *Task[R]) claimStartable(op string) error {
	if t.continuation {
		return &InvalidStateError{TaskID: t.id, Op: op, State: t.State(), Reason: "continuation tasks are started by their antecedent"}
	}
	if t.State() != StateCreated || !t.started.CompareAndSwap(false, true) {
		return &InvalidStateError{TaskID: t.id, Op: op, State: t.State()}
	}
	return nil
}

func (t *Task[R]) threadPool() ThreadPool {
	if t.pool != nil {
		return t.pool
	}
	return DefaultThreadPool()
}

// =============================================================================
// Observing
// =============================================================================

// Result blocks until the task is terminal and returns its value.
//
//   - RanToCompletion: the value and nil.
//   - Faulted: the zero value and an *AggregateError wrapping the original cause.
//   - Canceled: the zero value and a *CanceledError.
func (t *Task[R]) Result() (R, error) {
	<-t.done
	return t.result, t.err
}

// ResultContext is Result bounded by ctx. If ctx ends first, ctx.Err() is returned
// and the task is unaffected.
func (t *Task[R]) ResultContext(ctx context.Context) (R, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Err returns the terminal error without blocking: nil while the task is still
// pending or when it ran to completion.
func (t *Task[R]) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task is terminal and returns the same error as Result.
func (t *Task[R]) Wait() error {
	<-t.done
	return t.err
}

// WaitTimeout is Wait bounded by d. It returns a *TimeoutError if d elapses first.
func (t *Task[R]) WaitTimeout(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.err
	case <-timer.C:
		return &TimeoutError{Timeout: d}
	}
}

// WaitContext is Wait bounded by ctx.
func (t *Task[R]) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Execution
// =============================================================================

// Execute implements Runnable.
func (t *Task[R]) Execute(ctx context.Context) ExecutionReport {
	report := ExecutionReport{TaskID: t.id, Name: t.name}

	if t.token.IsCancellationRequested() {
		t.finish(StateScheduled, StateCanceled, zeroOf[R](), &CanceledError{TaskID: t.id})
		report.State = t.State()
		report.Err = t.Err()
		return report
	}

	startedAt := time.Now()
	t.mu.Lock()
	if t.State() != StateScheduled {
		t.mu.Unlock()
		report.State = t.State()
		return report
	}
	t.times.Started = startedAt
	t.state.Store(int32(StateRunning))
	t.mu.Unlock()

	result, panicked, stack, err := t.invoke(ctx)

	report.Executed = true
	report.StartedAt = startedAt
	switch {
	case panicked != nil:
		t.finish(StateRunning, StateFaulted, zeroOf[R](), &PanicError{Value: panicked, Stack: stack})
		report.Panic = panicked
		report.Stack = stack
	case err == nil:
		t.finish(StateRunning, StateRanToCompletion, result, nil)
	case isCancellation(err):
		t.finish(StateRunning, StateCanceled, zeroOf[R](), &CanceledError{TaskID: t.id, Cause: err})
	default:
		t.finish(StateRunning, StateFaulted, zeroOf[R](), err)
	}
	report.FinishedAt = time.Now()
	report.State = t.State()
	report.Err = t.Err()
	return report
}

func (t *Task[R]) invoke(ctx context.Context) (result R, panicked any, stack []byte, err error) {
	runCtx := withTaskValues(ctx, t.id, t.token)
	if t.token.CanBeCanceled() {
		var cancel context.CancelFunc
		runCtx, cancel = t.token.Context(runCtx)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			panicked = r
			stack = debug.Stack()
		}
	}()

	if t.fn == nil {
		panic("core: nil task function")
	}
	result, err = t.fn(runCtx, t.payload)
	return result, nil, nil, err
}

// finish performs the single terminal transition from the expected state. fault is
// the raw cause; it is wrapped here so every observer sees the same error value.
// Continuations fire after the task lock is released.
func (t *Task[R]) finish(from, to TaskState, result R, fault error) bool {
	t.mu.Lock()
	if t.State() != from {
		t.mu.Unlock()
		return false
	}

	switch to {
	case StateRanToCompletion:
		t.result = result
	case StateFaulted:
		t.err = NewAggregateError(fault)
	case StateCanceled:
		t.err = fault
	}
	t.times.Finished = time.Now()
	t.state.Store(int32(to))
	pending := t.continuations
	t.continuations = nil
	close(t.done)
	t.mu.Unlock()

	for _, c := range pending {
		c.fire(to)
	}
	return true
}

func (t *Task[R]) markScheduled(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() != StateCreated {
		return false
	}
	t.times.Scheduled = at
	t.state.Store(int32(StateScheduled))
	return true
}

func (t *Task[R]) cancelPending(cause error) bool {
	canceled := &CanceledError{TaskID: t.id, Cause: cause}
	if t.finish(StateScheduled, StateCanceled, zeroOf[R](), canceled) {
		return true
	}
	return t.finish(StateCreated, StateCanceled, zeroOf[R](), canceled)
}

// addContinuation appends c, or fires it on the calling goroutine when the task
// is already terminal.
func (t *Task[R]) addContinuation(c continuation) {
	t.mu.Lock()
	state := t.State()
	if !state.IsTerminal() {
		t.continuations = append(t.continuations, c)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	c.fire(state)
}

func zeroOf[R any]() R {
	var zero R
	return zero
}
