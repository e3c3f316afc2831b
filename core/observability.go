package core

import "time"

// TaskExecutionRecord captures one task handled by a pool worker.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolID     string
	WorkerID   int
	State      TaskState
	Err        error
	QueuedFor  time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Backend string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool

	// Outcome counters since the pool was created.
	Completed int64
	Faulted   int64
	Canceled  int64
	Rejected  int64
}
