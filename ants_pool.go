package taskengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Swind/go-task-engine/core"
)

// BackendAnts names the ants-backed worker backend in PoolStats.
const BackendAnts = "ants"

// AntsThreadPool runs tasks on an ants goroutine pool. A single dispatcher pops
// the FIFO ready queue and hands tasks to ants one at a time, after acquiring one
// of a fixed number of worker slots, so dispatch order is submission order and
// concurrency never exceeds the worker count.
type AntsThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	pool      *ants.PoolWithFunc
	slots     chan int

	dispatcher sync.WaitGroup
	inflight   sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool
	runningMu  sync.RWMutex
}

type antsJob struct {
	ctx  context.Context
	slot int
	item core.TaskItem
}

// NewAntsThreadPool creates a pool with default handlers.
func NewAntsThreadPool(id string, workers int, antsOptions ...ants.Option) (*AntsThreadPool, error) {
	return NewAntsThreadPoolWithConfig(id, workers, core.DefaultTaskSchedulerConfig(), antsOptions...)
}

// NewAntsThreadPoolWithConfig creates a pool whose scheduler uses config. Extra
// ants options are applied after the pool's own logger and panic handler.
func NewAntsThreadPoolWithConfig(id string, workers int, config *core.TaskSchedulerConfig, antsOptions ...ants.Option) (*AntsThreadPool, error) {
	id = poolID(id)
	scheduler := core.NewTaskSchedulerWithConfig(id, workers, config)
	workers = scheduler.WorkerCount()

	tp := &AntsThreadPool{
		id:        id,
		workers:   workers,
		scheduler: scheduler,
		slots:     make(chan int, workers),
	}
	for i := range workers {
		tp.slots <- i
	}

	logger := scheduler.GetLogger()
	opts := append([]ants.Option{
		ants.WithLogger(antsLogger{logger: logger}),
		ants.WithPanicHandler(func(p any) {
			logger.Error("ants worker panicked", core.F("pool", id), core.F("panic", p))
		}),
	}, antsOptions...)

	pool, err := ants.NewPoolWithFunc(workers, tp.process, opts...)
	if err != nil {
		scheduler.Shutdown()
		return nil, fmt.Errorf("create ants pool %s: %w", id, err)
	}
	tp.pool = pool
	return tp, nil
}

// Start launches the dispatcher goroutine.
func (tp *AntsThreadPool) Start(ctx context.Context) {
	tp.runningMu.Lock()
	defer tp.runningMu.Unlock()

	if tp.running {
		return
	}

	tp.ctx, tp.cancel = context.WithCancel(ctx)
	tp.running = true

	tp.dispatcher.Add(1)
	go tp.dispatchLoop(tp.ctx)
	tp.scheduler.GetLogger().Debug("thread pool started", core.F("pool", tp.id), core.F("workers", tp.workers), core.F("backend", BackendAnts))
}

func (tp *AntsThreadPool) dispatchLoop(ctx context.Context) {
	defer tp.dispatcher.Done()
	stopCh := ctx.Done()

	for {
		var slot int
		select {
		case slot = <-tp.slots:
		case <-stopCh:
			return
		}

		item, ok := tp.scheduler.GetWork(stopCh)
		if !ok {
			tp.slots <- slot
			return
		}

		tp.inflight.Add(1)
		job := antsJob{ctx: ctx, slot: slot, item: item}
		if err := tp.pool.Invoke(job); err != nil {
			// The task is already dequeued, so it still has to run somewhere.
			tp.scheduler.GetLogger().Warn("ants invoke failed, running on dispatcher",
				core.F("pool", tp.id), core.F("task", item.Task.ID()), core.F("error", err))
			tp.process(job)
		}
	}
}

func (tp *AntsThreadPool) process(arg any) {
	job := arg.(antsJob)
	defer func() {
		tp.slots <- job.slot
		tp.inflight.Done()
	}()
	tp.scheduler.Execute(job.ctx, job.slot, job.item)
}

// Stop cancels queued and delayed tasks, waits for running ones, and releases
// the ants pool.
func (tp *AntsThreadPool) Stop() {
	tp.scheduler.Shutdown()
	tp.stopDispatcher()
}

// StopGraceful waits up to timeout for queued tasks to run before stopping.
func (tp *AntsThreadPool) StopGraceful(timeout time.Duration) error {
	err := tp.scheduler.ShutdownGraceful(timeout)
	tp.stopDispatcher()
	return err
}

func (tp *AntsThreadPool) stopDispatcher() {
	tp.runningMu.Lock()
	wasRunning := tp.running
	tp.running = false
	tp.runningMu.Unlock()

	if wasRunning {
		tp.cancel()
		tp.dispatcher.Wait()
		tp.inflight.Wait()
	}
	if !tp.pool.IsClosed() {
		tp.pool.Release()
	}
	if wasRunning {
		tp.scheduler.GetLogger().Debug("thread pool stopped", core.F("pool", tp.id))
	}
}

// Submit implements core.ThreadPool.
func (tp *AntsThreadPool) Submit(r core.Runnable) error {
	return tp.scheduler.Submit(r)
}

// SubmitAfter implements core.ThreadPool.
func (tp *AntsThreadPool) SubmitAfter(r core.Runnable, delay time.Duration) error {
	return tp.scheduler.SubmitAfter(r, delay)
}

func (tp *AntsThreadPool) ID() string { return tp.id }

func (tp *AntsThreadPool) IsRunning() bool {
	tp.runningMu.RLock()
	defer tp.runningMu.RUnlock()
	return tp.running
}

func (tp *AntsThreadPool) WorkerCount() int      { return tp.workers }
func (tp *AntsThreadPool) QueuedTaskCount() int  { return tp.scheduler.QueuedTaskCount() }
func (tp *AntsThreadPool) ActiveTaskCount() int  { return tp.scheduler.ActiveTaskCount() }
func (tp *AntsThreadPool) DelayedTaskCount() int { return tp.scheduler.DelayedTaskCount() }

// Stats returns a snapshot of the pool's counters.
func (tp *AntsThreadPool) Stats() core.PoolStats {
	stats := tp.scheduler.Stats()
	stats.Backend = BackendAnts
	stats.Running = tp.IsRunning()
	return stats
}

// RecentTasks returns up to limit execution records, newest first.
func (tp *AntsThreadPool) RecentTasks(limit int) []core.TaskExecutionRecord {
	return tp.scheduler.RecentTasks(limit)
}

// antsLogger routes ants' printf-style messages to a core.Logger.
type antsLogger struct {
	logger core.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), core.F("component", "ants"))
}
