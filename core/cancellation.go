package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// CancellationSource / CancellationToken
// =============================================================================
//
// Cancellation is cooperative. Tripping a source never interrupts running work:
// the work function must observe the token at safe points (IsCancellationRequested,
// ThrowIfCancellationRequested, Done, or the ctx it was handed) and return an error
// matching ErrCanceled or context.Canceled. The engine then records the task as
// Canceled. A token that trips before a worker dequeues the task prevents the work
// function from running at all.

type cancelState struct {
	requested atomic.Bool
	done      chan struct{}

	mu        sync.Mutex
	callbacks map[uint64]func()
	nextID    uint64
	timer     *time.Timer
}

// CancellationSource owns a cancellation flag. Only the source can trip it; tokens
// handed out by Token are read-only observers. A source trips at most once.
type CancellationSource struct {
	state *cancelState
}

// NewCancellationSource creates an untripped source.
func NewCancellationSource() *CancellationSource {
	return &CancellationSource{state: &cancelState{
		done:      make(chan struct{}),
		callbacks: make(map[uint64]func()),
	}}
}

// NewCancellationSourceFromContext creates a source that trips when ctx is done.
func NewCancellationSourceFromContext(ctx context.Context) *CancellationSource {
	s := NewCancellationSource()
	stop := context.AfterFunc(ctx, s.Cancel)
	s.Token().Register(func() { stop() })
	return s
}

// Token returns a read-only handle observing this source.
func (s *CancellationSource) Token() CancellationToken {
	return CancellationToken{state: s.state}
}

// IsCancellationRequested reports whether Cancel has been called.
func (s *CancellationSource) IsCancellationRequested() bool {
	return s.state.requested.Load()
}

// Cancel trips the source. Registered callbacks run synchronously on the calling
// goroutine, once. Later calls are no-ops.
func (s *CancellationSource) Cancel() {
	st := s.state
	if !st.requested.CompareAndSwap(false, true) {
		return
	}

	st.mu.Lock()
	callbacks := st.callbacks
	st.callbacks = nil
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	close(st.done)
	st.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// CancelAfter trips the source once d has elapsed. A later call replaces the
// pending timer; calling it on a tripped source does nothing.
func (s *CancellationSource) CancelAfter(d time.Duration) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.requested.Load() {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(d, s.Cancel)
}

// CancellationToken observes a CancellationSource. The zero value (None) never trips.
type CancellationToken struct {
	state *cancelState
}

// None is a token that can never be canceled.
var None = CancellationToken{}

// CanBeCanceled reports whether the token is bound to a source.
func (t CancellationToken) CanBeCanceled() bool {
	return t.state != nil
}

// IsCancellationRequested reports whether the source has been tripped.
func (t CancellationToken) IsCancellationRequested() bool {
	return t.state != nil && t.state.requested.Load()
}

// Done returns a channel closed when the source trips. For None it returns nil,
// which blocks forever in a select.
func (t CancellationToken) Done() <-chan struct{} {
	if t.state == nil {
		return nil
	}
	return t.state.done
}

// ThrowIfCancellationRequested returns a *CanceledError once the source has tripped,
// nil otherwise. Work functions return it to abort cooperatively:
//
//	if err := token.ThrowIfCancellationRequested(); err != nil {
//		return 0, err
//	}
func (t CancellationToken) ThrowIfCancellationRequested() error {
	if t.IsCancellationRequested() {
		return &CanceledError{}
	}
	return nil
}

// Register arranges for fn to run when the source trips. If it already has, fn runs
// immediately on the calling goroutine. The returned func unregisters fn.
func (t CancellationToken) Register(fn func()) (unregister func()) {
	if t.state == nil || fn == nil {
		return func() {}
	}

	st := t.state
	st.mu.Lock()
	if st.requested.Load() {
		st.mu.Unlock()
		fn()
		return func() {}
	}
	id := st.nextID
	st.nextID++
	st.callbacks[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		delete(st.callbacks, id)
	}
}

// Context derives a context from parent that is canceled when the token trips.
// context.Cause on the derived context reports ErrCanceled in that case.
func (t CancellationToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	unregister := t.Register(func() { cancel(ErrCanceled) })
	return ctx, func() {
		unregister()
		cancel(context.Canceled)
	}
}
