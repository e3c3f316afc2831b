package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskScheduler is the engine behind a ThreadPool: it owns the FIFO ready queue,
// the delay manager for StartAfter, and the per-pool handlers, counters and
// history. Pools own the workers and call GetWork and Execute from them.
type TaskScheduler struct {
	poolID      string
	queue       *FIFOTaskQueue
	signal      chan struct{}
	workerCount int

	delayManager *DelayManager

	metricQueued atomic.Int32 // Waiting in the ready queue
	metricActive atomic.Int32 // Executing in a worker

	completed atomic.Int64
	faulted   atomic.Int64
	canceled  atomic.Int64
	rejected  atomic.Int64

	// Handlers and Metrics
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger
	history             *ExecutionHistory

	// Lifecycle. Submit holds the read side while it enqueues, so once Shutdown
	// has flipped the flag under the write side nothing else reaches the queue.
	lifecycle    sync.RWMutex
	shuttingDown atomic.Bool
}

func NewTaskScheduler(poolID string, workerCount int) *TaskScheduler {
	return NewTaskSchedulerWithConfig(poolID, workerCount, DefaultTaskSchedulerConfig())
}

func NewTaskSchedulerWithConfig(poolID string, workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	s := &TaskScheduler{
		poolID:      poolID,
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
		queue:       NewFIFOTaskQueue(),
	}
	s.delayManager = NewDelayManager(s.enqueueDelayed)

	historyCapacity := defaultTaskHistoryCapacity
	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
		s.logger = config.Logger
		if config.HistoryCapacity > 0 {
			historyCapacity = config.HistoryCapacity
		}
	}

	// Use defaults if not provided
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: s.logger}
	}
	s.history = NewExecutionHistory(historyCapacity)

	return s
}

// =============================================================================
// Submission
// =============================================================================

// Submit schedules r and pushes it on the ready queue.
func (s *TaskScheduler) Submit(r Runnable) error {
	return s.submit(r, 0)
}

// SubmitAfter schedules r now and enqueues it once delay has elapsed.
func (s *TaskScheduler) SubmitAfter(r Runnable, delay time.Duration) error {
	return s.submit(r, delay)
}

func (s *TaskScheduler) submit(r Runnable, delay time.Duration) error {
	if r == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidState)
	}

	delayed, err := s.schedule(r, delay)
	if delayed {
		s.watchDelayed(r)
	}
	return err
}

func (s *TaskScheduler) schedule(r Runnable, delay time.Duration) (delayed bool, err error) {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.shuttingDown.Load() {
		s.reject(r, "shutting down")
		return false, ErrPoolClosed
	}

	now := time.Now()
	if !r.markScheduled(now) {
		if state := r.State(); state != StateScheduled {
			return false, &InvalidStateError{TaskID: r.ID(), Op: "submit", State: state}
		}
		return false, nil
	}

	if delay > 0 {
		s.delayManager.AddDelayedTask(r, delay)
		return true, nil
	}
	s.push(TaskItem{Task: r, ReadyAt: now})
	return false, nil
}

// watchDelayed cancels r as soon as its token trips while it still waits in the
// delay manager. Once r has left the heap, Execute handles the token instead.
// Runs without the lifecycle lock: canceling fires continuations, which submit.
func (s *TaskScheduler) watchDelayed(r Runnable) {
	token := r.Token()
	if !token.CanBeCanceled() {
		return
	}
	unregister := token.Register(func() {
		if s.delayManager.Remove(r) && r.cancelPending(nil) {
			s.canceled.Add(1)
		}
	})
	go func() {
		<-r.Done()
		unregister()
	}()
}

func (s *TaskScheduler) enqueueDelayed(r Runnable) {
	s.lifecycle.RLock()
	closed := s.shuttingDown.Load()
	if !closed {
		s.push(TaskItem{Task: r, ReadyAt: time.Now()})
	}
	s.lifecycle.RUnlock()

	// Canceling fires continuations, which submit; that must happen unlocked.
	if closed && r.cancelPending(ErrPoolClosed) {
		s.canceled.Add(1)
	}
}

func (s *TaskScheduler) push(item TaskItem) {
	s.queue.Push(item)
	depth := s.metricQueued.Add(1)
	s.metrics.RecordQueueDepth(s.poolID, int(depth))

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
}

func (s *TaskScheduler) reject(r Runnable, reason string) {
	s.rejected.Add(1)
	s.rejectedTaskHandler.HandleRejectedTask(s.poolID, r.ID(), reason)
	s.metrics.RecordTaskRejected(s.poolID, reason)
}

// =============================================================================
// Worker side
// =============================================================================

// GetWork blocks until a task is ready or stopCh closes. Only the calling worker
// blocks; the queue lock is never held while waiting.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (TaskItem, bool) {
	for {
		if item, ok := s.queue.Pop(); ok {
			s.metricQueued.Add(-1)
			return item, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return TaskItem{}, false
		}
	}
}

// Execute runs one dequeued task on the calling worker and records its outcome
// in the counters, metrics and history.
func (s *TaskScheduler) Execute(ctx context.Context, workerID int, item TaskItem) ExecutionReport {
	s.OnTaskStart()
	defer s.OnTaskEnd()

	report := item.Task.Execute(ctx)

	record := TaskExecutionRecord{
		TaskID:     report.TaskID,
		Name:       report.Name,
		PoolID:     s.poolID,
		WorkerID:   workerID,
		State:      report.State,
		Err:        report.Err,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Panicked:   report.Panic != nil,
	}

	if report.Executed {
		record.QueuedFor = report.StartedAt.Sub(item.ReadyAt)
		record.Duration = report.FinishedAt.Sub(report.StartedAt)
		s.metrics.RecordQueueLatency(s.poolID, record.QueuedFor)
		s.metrics.RecordTaskDuration(s.poolID, report.State, record.Duration)
	}

	if report.Panic != nil {
		s.metrics.RecordTaskPanic(s.poolID, report.Panic)
		s.panicHandler.HandlePanic(ctx, s.poolID, workerID, report.TaskID, report.Panic, report.Stack)
	}

	switch report.State {
	case StateRanToCompletion:
		s.completed.Add(1)
	case StateFaulted:
		s.faulted.Add(1)
		s.logger.Debug("task faulted", F("pool", s.poolID), F("task", report.TaskID), F("name", report.Name), F("error", report.Err))
	case StateCanceled:
		s.canceled.Add(1)
	}

	s.history.Add(record)
	return report
}

func (s *TaskScheduler) OnTaskStart() {
	s.metricActive.Add(1)
}

func (s *TaskScheduler) OnTaskEnd() {
	s.metricActive.Add(-1)
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops accepting submissions and cancels every task still waiting,
// whether queued or delayed. Tasks already running are not interrupted.
func (s *TaskScheduler) Shutdown() {
	if !s.beginShutdown() {
		return
	}
	delayed := s.delayManager.Stop()
	queued := s.drainQueue()
	n := s.cancelAll(delayed) + s.cancelAll(queued)
	if n > 0 {
		s.logger.Info("canceled pending tasks on shutdown", F("pool", s.poolID), F("count", n))
	}
}

// ShutdownGraceful stops accepting submissions and waits for queued and active
// tasks to finish. Delayed tasks are canceled immediately. If timeout elapses
// first, whatever is still queued is canceled and an error is returned.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.beginShutdown()
	s.cancelAll(s.delayManager.Stop())

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
			return nil
		}
		select {
		case <-deadline:
			n := s.cancelAll(s.drainQueue())
			return fmt.Errorf("shutdown graceful timeout after %v, canceled %d queued tasks", timeout, n)
		case <-ticker.C:
		}
	}
}

func (s *TaskScheduler) beginShutdown() bool {
	if s.shuttingDown.Load() {
		return false
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.shuttingDown.CompareAndSwap(false, true)
}

func (s *TaskScheduler) drainQueue() []Runnable {
	items := s.queue.Drain()
	s.metricQueued.Add(-int32(len(items)))
	out := make([]Runnable, len(items))
	for i, item := range items {
		out[i] = item.Task
	}
	return out
}

// cancelAll runs outside the lifecycle lock: canceling fires continuations, whose
// submissions must observe the shutdown flag and be rejected.
func (s *TaskScheduler) cancelAll(tasks []Runnable) int {
	n := 0
	for _, r := range tasks {
		if r.cancelPending(ErrPoolClosed) {
			n++
		}
	}
	s.canceled.Add(int64(n))
	return n
}

// IsShuttingDown reports whether Shutdown or ShutdownGraceful has been called.
func (s *TaskScheduler) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// =============================================================================
// Observability
// =============================================================================

func (s *TaskScheduler) PoolID() string        { return s.poolID }
func (s *TaskScheduler) WorkerCount() int      { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int  { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int  { return int(s.metricActive.Load()) }
func (s *TaskScheduler) DelayedTaskCount() int { return s.delayManager.TaskCount() }

// Stats returns the scheduler's share of PoolStats; the pool fills in Backend and Running.
func (s *TaskScheduler) Stats() PoolStats {
	return PoolStats{
		ID:        s.poolID,
		Workers:   s.workerCount,
		Queued:    s.QueuedTaskCount(),
		Active:    s.ActiveTaskCount(),
		Delayed:   s.DelayedTaskCount(),
		Completed: s.completed.Load(),
		Faulted:   s.faulted.Load(),
		Canceled:  s.canceled.Load(),
		Rejected:  s.rejected.Load(),
	}
}

// RecentTasks returns up to limit execution records, newest first.
func (s *TaskScheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// LastTask returns the most recent execution record.
func (s *TaskScheduler) LastTask() (TaskExecutionRecord, bool) {
	return s.history.Last()
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *TaskScheduler) GetMetrics() Metrics {
	return s.metrics
}

// GetLogger returns the logger for this scheduler
func (s *TaskScheduler) GetLogger() Logger {
	return s.logger
}
