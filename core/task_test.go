package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewTask_DoesNotRun verifies a created task is inert
// Given: A task created with NewTask
// When: Nothing starts it
// Then: It stays Created and its work never runs
func TestNewTask_DoesNotRun(t *testing.T) {
	// Arrange
	var ran atomic.Bool
	task := NewTask(func(context.Context, any) (int, error) {
		ran.Store(true)
		return 1, nil
	})

	// Act
	time.Sleep(10 * time.Millisecond)

	// Assert
	if task.State() != StateCreated {
		t.Errorf("State() = %s, want Created", task.State())
	}
	if task.IsCompleted() {
		t.Error("IsCompleted() = true for a created task")
	}
	if task.Err() != nil {
		t.Errorf("Err() = %v for a pending task, want nil", task.Err())
	}
	if ran.Load() {
		t.Error("work ran without Start")
	}
}

func TestTaskIDs_AreUniqueAndIncreasing(t *testing.T) {
	a := NewTask(func(context.Context, any) (int, error) { return 0, nil })
	b := NewTask(func(context.Context, any) (int, error) { return 0, nil })

	if a.ID().IsZero() || b.ID().IsZero() {
		t.Fatal("task IDs must never be zero")
	}
	if b.ID() <= a.ID() {
		t.Errorf("IDs not increasing: %s then %s", a.ID(), b.ID())
	}
}

// TestTask_RunsToCompletion verifies the happy path
// Given: A task bound to a running pool
// When: The task is started and awaited
// Then: It ends RanToCompletion with the work's result and timestamps in order
func TestTask_RunsToCompletion(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 2)
	task := NewTask(func(_ context.Context, payload any) (int, error) {
		return payload.(int) * 2, nil
	}, WithPayload(21), WithThreadPool(pool))

	// Act
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got, err := task.Result()

	// Assert
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Result() = %d, want 42", got)
	}
	if !task.IsCompletedSuccessfully() {
		t.Errorf("State() = %s, want RanToCompletion", task.State())
	}
	if task.Payload() != 21 {
		t.Errorf("Payload() = %v, want 21", task.Payload())
	}

	times := task.Times()
	if times.Scheduled.Before(times.Created) || times.Started.Before(times.Scheduled) || times.Finished.Before(times.Started) {
		t.Errorf("timestamps out of order: %+v", times)
	}
}

// TestTask_StateProgression verifies Scheduled and Running are observable
// Given: A single-worker pool whose worker is held by a blocker task
// When: A second task is started behind it, then released
// Then: The second task is Scheduled while waiting and Running while its work executes
func TestTask_StateProgression(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	holdWorker := newGate()
	holdWork := newGate()
	blocker := NewActionTask(func(context.Context, any) error {
		holdWorker.wait()
		return nil
	}, WithThreadPool(pool))
	task := NewActionTask(func(context.Context, any) error {
		holdWork.wait()
		return nil
	}, WithThreadPool(pool))

	// Act & Assert
	if err := blocker.Start(); err != nil {
		t.Fatalf("Start(blocker) error = %v", err)
	}
	waitForState(t, blocker, StateRunning)

	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if task.State() != StateScheduled {
		t.Errorf("State() behind a busy worker = %s, want Scheduled", task.State())
	}

	holdWorker.open()
	waitForState(t, task, StateRunning)

	holdWork.open()
	waitDone(t, task)
	if task.State() != StateRanToCompletion {
		t.Errorf("State() = %s, want RanToCompletion", task.State())
	}
}

func TestTask_StartTwiceIsInvalid(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	task := NewActionTask(func(context.Context, any) error { return nil }, WithThreadPool(pool))

	if err := task.Start(); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	err := task.Start()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start() error = %v, want ErrInvalidState", err)
	}
	var ise *InvalidStateError
	if !errors.As(err, &ise) || ise.TaskID != task.ID() {
		t.Errorf("error = %#v, want *InvalidStateError for task %s", err, task.ID())
	}

	waitDone(t, task)
	if err := task.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start() after completion error = %v, want ErrInvalidState", err)
	}
}

func TestTask_StartWithoutPool(t *testing.T) {
	SetDefaultThreadPoolProvider(nil)
	task := NewActionTask(func(context.Context, any) error { return nil })

	if err := task.Start(); !errors.Is(err, ErrNoThreadPool) {
		t.Fatalf("Start() error = %v, want ErrNoThreadPool", err)
	}
	if task.State() != StateCreated {
		t.Errorf("State() = %s, want Created after failed Start", task.State())
	}
}

func TestTask_StartUsesDefaultPool(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	installDefaultPool(t, pool)

	task := NewTask(func(context.Context, any) (string, error) { return "ok", nil })
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got, err := task.Result(); err != nil || got != "ok" {
		t.Errorf("Result() = %q, %v; want ok, nil", got, err)
	}
}

// TestTask_FaultIsAggregated verifies a returned error faults the task
// Given: A task whose work returns an error
// When: The result is read
// Then: It is Faulted and Result returns an *AggregateError that wraps the cause
func TestTask_FaultIsAggregated(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	cause := errors.New("disk full")
	task := NewTask(func(context.Context, any) (int, error) { return 7, cause }, WithThreadPool(pool))

	// Act
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got, err := task.Result()

	// Assert
	if !task.IsFaulted() {
		t.Fatalf("State() = %s, want Faulted", task.State())
	}
	if got != 0 {
		t.Errorf("Result() value = %d, want zero value on fault", got)
	}
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("Result() error = %T, want *AggregateError", err)
	}
	if agg.First() != cause {
		t.Errorf("First() = %v, want %v", agg.First(), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if task.Err() != err || task.Wait() != err {
		t.Error("Err() and Wait() must return the same error as Result()")
	}
}

func TestTask_PanicFaultsTask(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	task := NewActionTask(func(context.Context, any) error {
		panic("boom")
	}, WithThreadPool(pool))

	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err := task.Wait()

	if !task.IsFaulted() {
		t.Fatalf("State() = %s, want Faulted", task.State())
	}
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Wait() error = %v, want a *PanicError inside", err)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %v with %d stack bytes", pe.Value, len(pe.Stack))
	}

	// The worker survives the panic.
	next := NewTask(func(context.Context, any) (int, error) { return 1, nil }, WithThreadPool(pool))
	if err := next.Start(); err != nil {
		t.Fatalf("Start() after panic error = %v", err)
	}
	if _, err := next.Result(); err != nil {
		t.Errorf("task after panic error = %v", err)
	}
}

// TestTask_CooperativeCancellation verifies work that observes its token ends Canceled
// Given: A running task polling CheckCanceled
// When: Its source is canceled
// Then: The task ends Canceled and Wait matches ErrCanceled
func TestTask_CooperativeCancellation(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	source := NewCancellationSource()
	started := newGate()
	task := NewTask(func(ctx context.Context, _ any) (int, error) {
		started.open()
		for {
			if err := CheckCanceled(ctx); err != nil {
				return 0, err
			}
			time.Sleep(time.Millisecond)
		}
	}, WithThreadPool(pool), WithCancellation(source.Token()))

	// Act
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	started.wait()
	source.Cancel()
	err := task.Wait()

	// Assert
	if !task.IsCanceled() {
		t.Fatalf("State() = %s, want Canceled", task.State())
	}
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("Wait() error = %v, want ErrCanceled", err)
	}
	var ce *CanceledError
	if !errors.As(err, &ce) || ce.TaskID != task.ID() {
		t.Errorf("error = %#v, want *CanceledError for task %s", err, task.ID())
	}
}

func TestTask_ContextCancellationIsCanceled(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	source := NewCancellationSource()
	task := NewActionTask(func(ctx context.Context, _ any) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithThreadPool(pool), WithCancellation(source.Token()))

	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, task, StateRunning)
	source.Cancel()
	waitDone(t, task)

	if !task.IsCanceled() {
		t.Errorf("State() = %s, want Canceled for context.Canceled", task.State())
	}
}

// TestTask_CancellationBeforeDequeuePreemptsWork verifies pre-emption
// Given: A task queued behind a busy single worker
// When: Its token trips before the worker reaches it
// Then: It ends Canceled without its work ever running
func TestTask_CancellationBeforeDequeuePreemptsWork(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	hold := newGate()
	blocker := NewActionTask(func(context.Context, any) error {
		hold.wait()
		return nil
	}, WithThreadPool(pool))

	source := NewCancellationSource()
	var ran atomic.Bool
	task := NewActionTask(func(context.Context, any) error {
		ran.Store(true)
		return nil
	}, WithThreadPool(pool), WithCancellation(source.Token()))

	// Act
	if err := blocker.Start(); err != nil {
		t.Fatalf("Start(blocker) error = %v", err)
	}
	waitForState(t, blocker, StateRunning)
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	source.Cancel()
	hold.open()
	waitDone(t, task)

	// Assert
	if !task.IsCanceled() {
		t.Errorf("State() = %s, want Canceled", task.State())
	}
	if ran.Load() {
		t.Error("work ran although the token tripped before dequeue")
	}
}

func TestTask_WorkErrorIsNotCancellationWithoutToken(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	task := NewActionTask(func(context.Context, any) error {
		return errors.New("plain failure")
	}, WithThreadPool(pool))

	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, task)
	if !task.IsFaulted() {
		t.Errorf("State() = %s, want Faulted", task.State())
	}
}

func TestTask_WaitTimeout(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	hold := newGate()
	defer hold.open()
	task := NewActionTask(func(context.Context, any) error {
		hold.wait()
		return nil
	}, WithThreadPool(pool))
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := task.WaitTimeout(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitTimeout() error = %v, want ErrTimeout", err)
	}
	if task.IsCompleted() {
		t.Error("timeout must not complete the task")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := task.ResultContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ResultContext() error = %v, want context.Canceled", err)
	}
}

func TestTask_StartAfter(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	task := NewActionTask(func(context.Context, any) error { return nil }, WithThreadPool(pool))

	begin := time.Now()
	if err := task.StartAfter(30 * time.Millisecond); err != nil {
		t.Fatalf("StartAfter() error = %v", err)
	}
	if task.State() != StateScheduled {
		t.Errorf("State() while delayed = %s, want Scheduled", task.State())
	}
	waitDone(t, task)

	if elapsed := time.Since(begin); elapsed < 30*time.Millisecond {
		t.Errorf("task completed after %v, want at least 30ms", elapsed)
	}
	if !task.IsCompletedSuccessfully() {
		t.Errorf("State() = %s, want RanToCompletion", task.State())
	}
}

func TestTask_RunSynchronously(t *testing.T) {
	var seen TaskID
	task := NewTask(func(ctx context.Context, _ any) (int, error) {
		seen, _ = CurrentTaskID(ctx)
		return 5, nil
	})

	if err := task.RunSynchronously(); err != nil {
		t.Fatalf("RunSynchronously() error = %v", err)
	}
	// Terminal on return, no waiting required.
	if !task.IsCompletedSuccessfully() {
		t.Fatalf("State() = %s, want RanToCompletion", task.State())
	}
	if seen != task.ID() {
		t.Errorf("CurrentTaskID = %s, want %s", seen, task.ID())
	}
	if err := task.RunSynchronously(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second RunSynchronously() error = %v, want ErrInvalidState", err)
	}
}

func TestTask_CurrentTaskIDOutsideTask(t *testing.T) {
	if _, ok := CurrentTaskID(context.Background()); ok {
		t.Error("CurrentTaskID reported a task outside any task")
	}
	if TokenFromContext(context.Background()).CanBeCanceled() {
		t.Error("TokenFromContext outside a task must be None")
	}
}

func TestTask_Names(t *testing.T) {
	named := NewTask(func(context.Context, any) (int, error) { return 0, nil }, WithName("loader"))
	if named.Name() != "loader" {
		t.Errorf("Name() = %q, want loader", named.Name())
	}

	anon := NewTask(func(context.Context, any) (int, error) { return 0, nil })
	if !strings.HasPrefix(anon.Name(), "core.") {
		t.Errorf("Name() = %q, want the function symbol without its import path", anon.Name())
	}
}

func TestTask_ExecuteOutsideScheduledIsNoop(t *testing.T) {
	var ran atomic.Bool
	task := NewActionTask(func(context.Context, any) error {
		ran.Store(true)
		return nil
	})

	report := task.Execute(context.Background())

	if report.Executed || ran.Load() {
		t.Error("Execute ran a task that was never scheduled")
	}
	if task.State() != StateCreated {
		t.Errorf("State() = %s, want Created", task.State())
	}
}

// TestTask_CancelWhileDelayed verifies a delayed task reacts to its token at once
// Given: A task delayed by an hour with a cancelable token
// When: The token trips
// Then: The task ends Canceled right away and leaves the delay manager
func TestTask_CancelWhileDelayed(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	source := NewCancellationSource()
	delay, err := Delay(time.Hour, WithThreadPool(pool), WithCancellation(source.Token()))
	if err != nil {
		t.Fatalf("Delay() error = %v", err)
	}
	followUp := delay.ContinueWith(func(context.Context, *Task[struct{}]) error { return nil }, ContinueOnCanceled)
	if pool.DelayedTaskCount() != 1 {
		t.Fatalf("DelayedTaskCount() = %d, want 1", pool.DelayedTaskCount())
	}

	// Act
	source.Cancel()

	// Assert
	if err := delay.WaitTimeout(time.Second); !errors.Is(err, ErrCanceled) {
		t.Fatalf("WaitTimeout() error = %v, want ErrCanceled", err)
	}
	if delay.State() != StateCanceled {
		t.Errorf("State() = %s, want Canceled", delay.State())
	}
	if pool.DelayedTaskCount() != 0 {
		t.Errorf("DelayedTaskCount() = %d, want 0", pool.DelayedTaskCount())
	}
	if got := pool.Stats().Canceled; got != 1 {
		t.Errorf("Stats().Canceled = %d, want 1", got)
	}
	waitDone(t, followUp)
	if followUp.State() != StateRanToCompletion {
		t.Errorf("OnCanceled continuation State() = %s, want RanToCompletion", followUp.State())
	}
}

func TestTask_StartAfterWithTrippedToken(t *testing.T) {
	pool := startTestThreadPool(t, 1)
	source := NewCancellationSource()
	source.Cancel()

	var ran atomic.Bool
	task := NewActionTask(func(context.Context, any) error {
		ran.Store(true)
		return nil
	}, WithThreadPool(pool), WithCancellation(source.Token()))
	if err := task.StartAfter(time.Hour); err != nil {
		t.Fatalf("StartAfter() error = %v", err)
	}

	waitDone(t, task)
	if task.State() != StateCanceled || ran.Load() {
		t.Errorf("State() = %s, ran = %v; want Canceled without running", task.State(), ran.Load())
	}
	if pool.DelayedTaskCount() != 0 {
		t.Errorf("DelayedTaskCount() = %d, want 0", pool.DelayedTaskCount())
	}
}

// TestTask_TerminalStateIsFinal verifies a completed task never changes again
// Given: A task that ran to completion with result 5
// When: Its token trips, its pool shuts down, and it is canceled, executed and resubmitted
// Then: State and Result stay RanToCompletion and 5
func TestTask_TerminalStateIsFinal(t *testing.T) {
	// Arrange
	pool := startTestThreadPool(t, 1)
	source := NewCancellationSource()
	var runs atomic.Int32
	task := NewTask(func(context.Context, any) (int, error) {
		runs.Add(1)
		return 5, nil
	}, WithThreadPool(pool), WithCancellation(source.Token()))
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, task)

	assertFinal := func(step string) {
		t.Helper()
		for range 3 {
			if task.State() != StateRanToCompletion {
				t.Fatalf("after %s: State() = %s, want RanToCompletion", step, task.State())
			}
			got, err := task.Result()
			if err != nil || got != 5 {
				t.Fatalf("after %s: Result() = %d, %v; want 5, nil", step, got, err)
			}
			if task.Err() != nil {
				t.Fatalf("after %s: Err() = %v, want nil", step, task.Err())
			}
		}
	}
	assertFinal("completion")

	// Act / Assert
	source.Cancel()
	assertFinal("token cancel")

	pool.scheduler.Shutdown()
	assertFinal("pool shutdown")

	if task.cancelPending(ErrPoolClosed) {
		t.Error("cancelPending() = true on a terminal task")
	}
	assertFinal("cancelPending")

	if report := task.Execute(context.Background()); report.Executed {
		t.Error("Execute() ran a terminal task")
	}
	assertFinal("Execute")

	if err := pool.scheduler.Submit(task); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after shutdown error = %v, want ErrPoolClosed", err)
	}
	if err := task.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start() error = %v, want ErrInvalidState", err)
	}
	assertFinal("resubmit")

	if runs.Load() != 1 {
		t.Errorf("work ran %d times, want 1", runs.Load())
	}
}
