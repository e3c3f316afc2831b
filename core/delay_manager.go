package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask is a Scheduled task waiting for its ready time.
type DelayedTask struct {
	RunAt time.Time
	Task  Runnable
	index int // for heap interface
}

// DelayedTaskHeap implements heap.Interface
type DelayedTaskHeap []*DelayedTask

func (h DelayedTaskHeap) Len() int           { return len(h) }
func (h DelayedTaskHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h DelayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *DelayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *DelayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *DelayedTaskHeap) Peek() *DelayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds delayed tasks in a min-heap and hands each one to onExpire,
// on its own goroutine, once its RunAt has passed.
type DelayManager struct {
	pq       DelayedTaskHeap
	mu       sync.Mutex
	wakeup   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	onExpire func(Runnable)
}

func NewDelayManager(onExpire func(Runnable)) *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:       make(DelayedTaskHeap, 0),
		wakeup:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		onExpire: onExpire,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

func (dm *DelayManager) AddDelayedTask(task Runnable, delay time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := &DelayedTask{
		RunAt: time.Now().Add(delay),
		Task:  task,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

// Remove takes task out of the heap. It reports false when task is not waiting,
// for example because it already expired.
func (dm *DelayManager) Remove(task Runnable) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, item := range dm.pq {
		if item.Task == task {
			heap.Remove(&dm.pq, item.index)
			return true
		}
	}
	return false
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun := dm.calculateNextRun()
		if nextRun < 0 {
			// No tasks, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpiredTasks()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun returns how long to wait for the earliest task: 0 if it is
// already due, -1 if the heap is empty.
func (dm *DelayManager) calculateNextRun() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return -1
	}

	now := time.Now()
	if !item.RunAt.After(now) {
		return 0
	}
	return item.RunAt.Sub(now)
}

func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*DelayedTask

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	// Hand off outside the lock
	for _, item := range expired {
		dm.onExpire(item.Task)
	}
}

// Stop ends the timer goroutine and returns the tasks that never expired, in
// RunAt order.
func (dm *DelayManager) Stop() []Runnable {
	dm.cancel()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	pending := make([]Runnable, 0, len(dm.pq))
	for dm.pq.Len() > 0 {
		pending = append(pending, heap.Pop(&dm.pq).(*DelayedTask).Task)
	}
	return pending
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
