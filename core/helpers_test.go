package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testThreadPool is a minimal ThreadPool over a TaskScheduler, so core tests can
// run tasks without importing the root package.
type testThreadPool struct {
	scheduler *TaskScheduler
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newTestThreadPool(workers int) *testThreadPool {
	cfg := DefaultTaskSchedulerConfig()
	cfg.Logger = NewNoOpLogger()
	cfg.PanicHandler = &DefaultPanicHandler{Logger: cfg.Logger}
	cfg.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: cfg.Logger}
	return &testThreadPool{
		scheduler: NewTaskSchedulerWithConfig("test-pool", workers, cfg),
		workers:   workers,
	}
}

// startTestThreadPool starts a pool and stops it when the test ends.
func startTestThreadPool(t *testing.T, workers int) *testThreadPool {
	t.Helper()
	tp := newTestThreadPool(workers)
	tp.Start(context.Background())
	t.Cleanup(tp.Stop)
	return tp
}

func (tp *testThreadPool) Start(ctx context.Context) {
	tp.ctx, tp.cancel = context.WithCancel(ctx)
	for i := range tp.workers {
		tp.wg.Add(1)
		go tp.worker(i)
	}
}

func (tp *testThreadPool) worker(id int) {
	defer tp.wg.Done()
	for {
		item, ok := tp.scheduler.GetWork(tp.ctx.Done())
		if !ok {
			return
		}
		tp.scheduler.Execute(tp.ctx, id, item)
	}
}

func (tp *testThreadPool) Stop() {
	tp.scheduler.Shutdown()
	if tp.cancel != nil {
		tp.cancel()
	}
	tp.wg.Wait()
}

func (tp *testThreadPool) Submit(r Runnable) error { return tp.scheduler.Submit(r) }
func (tp *testThreadPool) SubmitAfter(r Runnable, d time.Duration) error {
	return tp.scheduler.SubmitAfter(r, d)
}
func (tp *testThreadPool) ID() string            { return "test-pool" }
func (tp *testThreadPool) IsRunning() bool       { return !tp.scheduler.IsShuttingDown() }
func (tp *testThreadPool) WorkerCount() int      { return tp.workers }
func (tp *testThreadPool) QueuedTaskCount() int  { return tp.scheduler.QueuedTaskCount() }
func (tp *testThreadPool) ActiveTaskCount() int  { return tp.scheduler.ActiveTaskCount() }
func (tp *testThreadPool) DelayedTaskCount() int { return tp.scheduler.DelayedTaskCount() }
func (tp *testThreadPool) Stats() PoolStats      { return tp.scheduler.Stats() }

// installDefaultPool makes pool the process-wide default for the test.
func installDefaultPool(t *testing.T, pool ThreadPool) {
	t.Helper()
	SetDefaultThreadPoolProvider(func() ThreadPool { return pool })
	t.Cleanup(func() { SetDefaultThreadPoolProvider(nil) })
}

// gate blocks work functions until opened.
type gate chan struct{}

func newGate() gate  { return make(gate) }
func (g gate) open() { close(g) }
func (g gate) wait() { <-g }

func waitShort() <-chan time.Time { return time.After(2 * time.Second) }

func waitDone(t *testing.T, h TaskHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-waitShort():
		t.Fatalf("task %s did not complete, state %s", h.ID(), h.State())
	}
}

func waitForState(t *testing.T, h TaskHandle, want TaskState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("task %s state = %s, want %s", h.ID(), h.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
