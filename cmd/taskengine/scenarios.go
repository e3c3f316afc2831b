package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	taskengine "github.com/Swind/go-task-engine"
	"github.com/Swind/go-task-engine/core"
)

type scenario struct {
	name        string
	description string
	run         func(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error
}

var allScenarios = []scenario{
	{"lifecycle", "walk one task through Created, Scheduled and RanToCompletion", runLifecycle},
	{"result", "compute 2+3 on the default pool and read the result", runResult},
	{"payload", "hand a payload to the work function and read it back", runPayload},
	{"fault", "surface a work error through the aggregate error", runFault},
	{"cancel", "cancel a polling task with CancelAfter", runCancel},
	{"continuation", "attach success and fault continuations to one task", runContinuation},
	{"wait", "WaitAll and WaitAny over a batch, then collect faults", runWait},
	{"delay", "start a continuation after a delay", runDelay},
	{"synchronous", "run a task on the calling goroutine", runSynchronous},
}

func findScenario(name string) (scenario, bool) {
	for _, sc := range allScenarios {
		if sc.name == name {
			return sc, true
		}
	}
	return scenario{}, false
}

func expectState(h core.TaskHandle, want core.TaskState) error {
	if got := h.State(); got != want {
		return fmt.Errorf("task %s state = %s, want %s", h.ID(), got, want)
	}
	return nil
}

func runLifecycle(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	release := make(chan struct{})
	task := core.NewActionTask(func(ctx context.Context, _ any) error {
		id, _ := core.CurrentTaskID(ctx)
		logger.Info("work running", "current_task", id)
		<-release
		return nil
	}, core.WithThreadPool(pool), core.WithName("lifecycle"))

	logger.Info("created", "task", task.ID(), "state", task.State())
	if err := expectState(task, core.StateCreated); err != nil {
		return err
	}

	if err := task.Start(); err != nil {
		return err
	}
	logger.Info("started", "task", task.ID(), "state", task.State())

	close(release)
	if err := task.WaitContext(ctx); err != nil {
		return err
	}
	logger.Info("finished", "task", task.ID(), "state", task.State(), "completed", task.IsCompleted())
	return expectState(task, core.StateRanToCompletion)
}

type operands struct{ a, b int }

func runResult(ctx context.Context, _ core.ThreadPool, logger *slog.Logger) error {
	// No WithThreadPool: the task runs on the process-wide default pool.
	task, err := taskengine.Run(func(_ context.Context, payload any) (int, error) {
		op := payload.(operands)
		return op.a + op.b, nil
	}, core.WithPayload(operands{2, 3}), core.WithName("sum"))
	if err != nil {
		return err
	}

	sum, err := task.ResultContext(ctx)
	if err != nil {
		return err
	}
	logger.Info("result", "sum", sum)
	if sum != 5 {
		return fmt.Errorf("sum = %d, want 5", sum)
	}
	return nil
}

func runPayload(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	task := core.NewTask(func(_ context.Context, payload any) (string, error) {
		return fmt.Sprintf("hello, %v", payload), nil
	}, core.WithPayload("payload"), core.WithThreadPool(pool))
	if err := task.Start(); err != nil {
		return err
	}

	greeting, err := task.ResultContext(ctx)
	if err != nil {
		return err
	}
	logger.Info("payload", "payload", task.Payload(), "greeting", greeting)
	return nil
}

var errDivideByZero = errors.New("divide by zero")

func runFault(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	task := core.NewTask(func(context.Context, any) (int, error) {
		return 0, errDivideByZero
	}, core.WithThreadPool(pool), core.WithName("divide"))
	if err := task.Start(); err != nil {
		return err
	}

	_, err := task.ResultContext(ctx)
	var agg *core.AggregateError
	if !errors.As(err, &agg) {
		return fmt.Errorf("error %v is not an aggregate", err)
	}
	logger.Info("faulted", "state", task.State(), "error", err, "inner", agg.First())
	if !errors.Is(err, errDivideByZero) {
		return fmt.Errorf("aggregate %v does not wrap the work error", err)
	}
	return expectState(task, core.StateFaulted)
}

func runCancel(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	source := core.NewCancellationSource()
	token := source.Token()

	iterations := 0
	task := core.NewActionTask(func(ctx context.Context, _ any) error {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			if err := core.CheckCanceled(ctx); err != nil {
				logger.Info("cancellation observed", "iterations", iterations)
				return err
			}
			iterations++
			<-ticker.C
		}
	}, core.WithThreadPool(pool), core.WithCancellation(token), core.WithName("poller"))
	if err := task.Start(); err != nil {
		return err
	}

	source.CancelAfter(30 * time.Millisecond)
	err := task.WaitContext(ctx)
	logger.Info("canceled", "state", task.State(), "error", err)
	if !errors.Is(err, core.ErrCanceled) {
		return fmt.Errorf("wait error %v does not match ErrCanceled", err)
	}
	return expectState(task, core.StateCanceled)
}

func runContinuation(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	antecedent := core.NewTask(func(context.Context, any) (byte, error) {
		return 42, nil
	}, core.WithThreadPool(pool), core.WithName("produce"))

	good := core.ContinueWith(antecedent, func(_ context.Context, ante *core.Task[byte]) (string, error) {
		v, err := ante.Result()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("completed with %d", v), nil
	}, core.ContinueOnSuccess)
	bad := antecedent.ContinueWith(func(_ context.Context, ante *core.Task[byte]) error {
		logger.Warn("antecedent did not complete", "state", ante.State())
		return nil
	}, core.ContinueOnFault)

	if err := antecedent.Start(); err != nil {
		return err
	}
	if err := core.WaitAllContext(ctx, good, bad); err != nil {
		return err
	}

	msg, err := good.Result()
	if err != nil {
		return err
	}
	logger.Info("continuations", "good", msg, "good_state", good.State(), "bad_state", bad.State())
	return expectState(bad, core.StateCanceled)
}

func runWait(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	tasks := make([]core.TaskHandle, 0, 4)
	for i := range 4 {
		delay := time.Duration(i+1) * 10 * time.Millisecond
		t := core.NewTask(func(ctx context.Context, _ any) (int, error) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			if i%2 == 1 {
				return 0, fmt.Errorf("task %d failed", i)
			}
			return i, nil
		}, core.WithThreadPool(pool))
		if err := t.Start(); err != nil {
			return err
		}
		tasks = append(tasks, t)
	}

	first, err := core.WaitAnyContext(ctx, tasks...)
	if err != nil {
		return err
	}
	logger.Info("first finished", "task", first.ID(), "state", first.State())

	if err := core.WaitAllContext(ctx, tasks...); err != nil {
		return err
	}
	faults := core.Faults(tasks...)
	logger.Info("all finished", "faults", faults)

	var agg *core.AggregateError
	if !errors.As(faults, &agg) || len(agg.Errors) != 2 {
		return fmt.Errorf("faults = %v, want two", faults)
	}
	return nil
}

func runDelay(ctx context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	start := time.Now()
	delay, err := core.Delay(20*time.Millisecond, core.WithThreadPool(pool))
	if err != nil {
		return err
	}
	after := delay.ContinueWith(func(context.Context, *core.Task[struct{}]) error {
		logger.Info("delay elapsed", "after", time.Since(start).Round(time.Millisecond))
		return nil
	}, core.ContinueOnSuccess)
	return after.WaitContext(ctx)
}

func runSynchronous(_ context.Context, pool core.ThreadPool, logger *slog.Logger) error {
	var ranIn core.TaskID
	task := core.NewActionTask(func(ctx context.Context, _ any) error {
		ranIn, _ = core.CurrentTaskID(ctx)
		return nil
	}, core.WithThreadPool(pool))
	if err := task.RunSynchronously(); err != nil {
		return err
	}
	logger.Info("ran synchronously", "task", task.ID(), "current_task", ranIn, "state", task.State())
	if ranIn != task.ID() {
		return fmt.Errorf("CurrentTaskID = %s, want %s", ranIn, task.ID())
	}
	return expectState(task, core.StateRanToCompletion)
}
