// Package taskengine provides tasks: deferred computations with an observable
// lifecycle that run on a fixed pool of workers.
//
// A task is created inert, started onto a ThreadPool, and ends in exactly one of
// three terminal states. Work never runs on the caller's goroutine unless asked to
// (RunSynchronously), and cancellation is cooperative.
//
// # Quick Start
//
// Run starts a task on the process-wide default pool, which is created with one
// worker per CPU on first use:
//
//	t, err := taskengine.Run(func(ctx context.Context, _ any) (int, error) {
//		return 2 + 3, nil
//	})
//	if err != nil {
//		return err
//	}
//	sum, err := t.Result() // 5, nil
//
// # Key Concepts
//
// Task: Created -> Scheduled -> Running -> RanToCompletion | Faulted | Canceled.
// State is readable at any time; Result, Wait and the WaitAll/WaitAny helpers block
// until a task is terminal. A faulted task reports an *AggregateError wrapping the
// error its work returned (or a *PanicError if it panicked).
//
// CancellationSource / CancellationToken: a source trips once; tokens observe it.
// A token that trips before a worker picks the task up prevents the work from
// running. Running work polls CheckCanceled (or its ctx) and returns the error to
// end Canceled.
//
// Continuations: ContinueWith attaches follow-up work that the engine schedules when
// the antecedent finishes, filtered by ContinueAny, ContinueOnSuccess,
// ContinueOnFault or ContinueOnCanceled. A continuation whose condition does not
// match ends Canceled without running.
//
// ThreadPool: GoroutineThreadPool runs a fixed number of worker goroutines over a
// FIFO ready queue; AntsThreadPool does the same on top of an ants pool. Stop
// cancels tasks that are still waiting; StopGraceful lets them drain first.
//
// # Example
//
//	pool := taskengine.NewGoroutineThreadPool("work", 4)
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	load := taskengine.NewTask(fetch, taskengine.WithThreadPool(pool))
//	show := load.ContinueWith(render, taskengine.ContinueOnSuccess)
//	report := load.ContinueWith(logFailure, taskengine.ContinueOnFault)
//
//	if err := load.Start(); err != nil {
//		return err
//	}
//	taskengine.WaitAll(show, report)
//
// For metrics, see the observability/prometheus package.
package taskengine
