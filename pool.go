package taskengine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-task-engine/core"
)

// BackendGoroutine names the plain goroutine worker backend in PoolStats.
const BackendGoroutine = "goroutine"

// GoroutineThreadPool manages a fixed set of worker goroutines.
// Each worker pulls the oldest ready task from the scheduler and executes it.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewGoroutineThreadPool creates a new GoroutineThreadPool with default handlers.
// An empty id is replaced by a generated one.
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, core.DefaultTaskSchedulerConfig())
}

// NewGoroutineThreadPoolWithConfig creates a pool whose scheduler uses config.
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *core.TaskSchedulerConfig) *GoroutineThreadPool {
	id = poolID(id)
	scheduler := core.NewTaskSchedulerWithConfig(id, workers, config)
	return &GoroutineThreadPool{
		id:        id,
		workers:   scheduler.WorkerCount(),
		scheduler: scheduler,
	}
}

func poolID(id string) string {
	if id != "" {
		return id
	}
	return "pool-" + uuid.NewString()
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return // Already running
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
	tg.scheduler.GetLogger().Debug("thread pool started", core.F("pool", tg.id), core.F("workers", tg.workers))
}

// Stop stops the thread pool. Tasks still queued or delayed are canceled; running
// tasks finish before Stop returns.
func (tg *GoroutineThreadPool) Stop() {
	// Always shutdown scheduler to clean up resources (queue, delayed tasks)
	// even if pool was never started
	tg.scheduler.Shutdown()

	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.runningMu.Unlock()

	tg.stopWorkers()
}

// StopGraceful stops the thread pool gracefully, waiting for queued tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		tg.scheduler.Shutdown()
		return nil
	}
	tg.runningMu.Unlock()

	err := tg.scheduler.ShutdownGraceful(timeout)
	tg.stopWorkers()
	return err
}

func (tg *GoroutineThreadPool) stopWorkers() {
	if tg.cancel != nil {
		tg.cancel()
	}
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
	tg.scheduler.GetLogger().Debug("thread pool stopped", core.F("pool", tg.id))
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()

	for {
		item, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		// Panics are recovered inside the task and reported by the scheduler.
		tg.scheduler.Execute(ctx, id, item)
	}
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// Submit implements core.ThreadPool.
func (tg *GoroutineThreadPool) Submit(r core.Runnable) error {
	return tg.scheduler.Submit(r)
}

// SubmitAfter implements core.ThreadPool.
func (tg *GoroutineThreadPool) SubmitAfter(r core.Runnable, delay time.Duration) error {
	return tg.scheduler.SubmitAfter(r, delay)
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.scheduler.DelayedTaskCount()
}

// Stats returns a snapshot of the pool's counters.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	stats := tg.scheduler.Stats()
	stats.Backend = BackendGoroutine
	stats.Running = tg.IsRunning()
	return stats
}

// RecentTasks returns up to limit execution records, newest first.
func (tg *GoroutineThreadPool) RecentTasks(limit int) []core.TaskExecutionRecord {
	return tg.scheduler.RecentTasks(limit)
}

// GetScheduler exposes the scheduler for inspection and tests.
func (tg *GoroutineThreadPool) GetScheduler() *core.TaskScheduler {
	return tg.scheduler
}
