package taskengine

import (
	"context"
	"runtime"
	"sync"

	"github.com/Swind/go-task-engine/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

const globalPoolID = "global-pool"

var (
	globalThreadPool core.ThreadPool
	globalMu         sync.Mutex
)

func init() {
	core.SetDefaultThreadPoolProvider(Default)
}

// InitGlobalThreadPool initializes the global thread pool with the given number of
// workers and starts it. The first initialization wins; later calls are no-ops
// until ShutdownGlobalThreadPool.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}
	globalThreadPool = newGlobalPool(workers)
}

func newGlobalPool(workers int) core.ThreadPool {
	pool := NewGoroutineThreadPool(globalPoolID, workers)
	pool.Start(context.Background())
	return pool
}

// GetGlobalThreadPool returns the global thread pool, creating and starting one
// with runtime.NumCPU() workers on first use.
func GetGlobalThreadPool() core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		globalThreadPool = newGlobalPool(runtime.NumCPU())
	}
	return globalThreadPool
}

// Default is the process-wide pool used by tasks created without WithThreadPool.
// It is the same pool GetGlobalThreadPool returns.
func Default() core.ThreadPool {
	return GetGlobalThreadPool()
}

// SetDefault replaces the global pool with pool and returns a function that puts
// the previous one back. The replaced pool is not stopped. Intended for tests.
func SetDefault(pool core.ThreadPool) (restore func()) {
	globalMu.Lock()
	prev := globalThreadPool
	globalThreadPool = pool
	globalMu.Unlock()

	return func() {
		globalMu.Lock()
		globalThreadPool = prev
		globalMu.Unlock()
	}
}

// ShutdownGlobalThreadPool stops the global thread pool. Pending tasks on it are
// canceled. A later GetGlobalThreadPool starts a fresh pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	pool := globalThreadPool
	globalThreadPool = nil
	globalMu.Unlock()

	// Stopping cancels queued tasks, whose continuations may consult Default().
	if pool != nil {
		pool.Stop()
	}
}
