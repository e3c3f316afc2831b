package core

// Factory creates and starts tasks with shared defaults: a pool and a cancellation
// token applied to every task it makes. Options passed per call override them.
type Factory struct {
	Pool  ThreadPool
	Token CancellationToken
}

// NewFactory returns a factory bound to pool and token. A nil pool means the
// process-wide default at the time each task starts.
func NewFactory(pool ThreadPool, token CancellationToken) *Factory {
	return &Factory{Pool: pool, Token: token}
}

func (f *Factory) options(opts []TaskOption) []TaskOption {
	base := make([]TaskOption, 0, len(opts)+2)
	if f != nil {
		if f.Pool != nil {
			base = append(base, WithThreadPool(f.Pool))
		}
		if f.Token.CanBeCanceled() {
			base = append(base, WithCancellation(f.Token))
		}
	}
	return append(base, opts...)
}

// StartNew creates a task from fn and starts it. The task is returned even when
// Start fails, so the caller can inspect it.
func StartNew[R any](f *Factory, fn Func[R], opts ...TaskOption) (*Task[R], error) {
	t := NewTask(fn, f.options(opts)...)
	return t, t.Start()
}

// StartNewAction is StartNew for work that produces no value.
func (f *Factory) StartNewAction(fn Action, opts ...TaskOption) (*Task[struct{}], error) {
	t := NewActionTask(fn, f.options(opts)...)
	return t, t.Start()
}
