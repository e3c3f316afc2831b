package core

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// ThreadPool: where tasks execute
// =============================================================================

// ThreadPool executes Runnables on a fixed set of workers in FIFO order.
// Implementations live in the root package (GoroutineThreadPool, AntsThreadPool).
type ThreadPool interface {
	// Submit moves r from Created to Scheduled and enqueues it. Submitting an
	// already Scheduled task is a no-op; a closed pool returns ErrPoolClosed.
	Submit(r Runnable) error

	// SubmitAfter is Submit, but the task only enters the ready queue once delay
	// has elapsed. It is Scheduled from the moment of the call.
	SubmitAfter(r Runnable, delay time.Duration) error

	Start(ctx context.Context)
	Stop()
	ID() string
	IsRunning() bool

	WorkerCount() int
	QueuedTaskCount() int
	ActiveTaskCount() int
	DelayedTaskCount() int
	Stats() PoolStats
}

var defaultPoolProvider atomic.Pointer[func() ThreadPool]

// SetDefaultThreadPoolProvider installs the function DefaultThreadPool consults.
// The root package registers its global pool here at init.
func SetDefaultThreadPoolProvider(fn func() ThreadPool) {
	if fn == nil {
		defaultPoolProvider.Store(nil)
		return
	}
	defaultPoolProvider.Store(&fn)
}

// DefaultThreadPool returns the process-wide pool used by tasks created without
// WithThreadPool, or nil when no provider is installed.
func DefaultThreadPool() ThreadPool {
	fn := defaultPoolProvider.Load()
	if fn == nil {
		return nil
	}
	pool := (*fn)()
	if pool == nil {
		return nil
	}
	return pool
}

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task's work function panics. The task itself is
// already Faulted with a *PanicError by the time the handler runs.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The worker context
	// - poolID: The ID of the pool that ran the task
	// - workerID: The index of the worker that ran the task
	// - taskID: The task that panicked
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, taskID TaskID, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at Error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, taskID TaskID, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("pool", poolID),
		F("worker", workerID),
		F("task", taskID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task ran and the terminal state it reached.
	RecordTaskDuration(poolID string, state TaskState, duration time.Duration)

	// RecordQueueLatency records how long a task waited between Scheduled and Running.
	RecordQueueLatency(poolID string, latency time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolID string, panicInfo any)

	// RecordQueueDepth records the current ready queue depth.
	RecordQueueDepth(poolID string, depth int)

	// RecordTaskRejected records that a submission was rejected (e.g., during shutdown).
	RecordTaskRejected(poolID string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, state TaskState, duration time.Duration) {}
func (m *NilMetrics) RecordQueueLatency(poolID string, latency time.Duration)                 {}
func (m *NilMetrics) RecordTaskPanic(poolID string, panicInfo any)                            {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)                               {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string)                         {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when the scheduler refuses a submission, which
// happens once the pool is shutting down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolID string, taskID TaskID, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at Warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolID string, taskID TaskID, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("pool", poolID), F("task", taskID), F("reason", reason))
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle and failure logs. Defaults to DefaultLogger.
	Logger Logger

	// HistoryCapacity bounds the execution history ring. Defaults to 100.
	HistoryCapacity int
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	logger := NewDefaultLogger()
	return &TaskSchedulerConfig{
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Logger:              logger,
		HistoryCapacity:     defaultTaskHistoryCapacity,
	}
}
