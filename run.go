package taskengine

import "github.com/Swind/go-task-engine/core"

// defaultFactory has no pool of its own, so tasks resolve Default() when they start.
var defaultFactory = core.NewFactory(nil, core.None)

// Run creates a task from fn and starts it on the default pool, or on the pool
// given with WithThreadPool. The task is returned even if Start fails.
//
//	t, err := taskengine.Run(func(ctx context.Context, _ any) (int, error) {
//		return 2 + 3, nil
//	})
//	if err != nil {
//		return err
//	}
//	sum, err := t.Result()
func Run[R any](fn Func[R], opts ...TaskOption) (*Task[R], error) {
	return core.StartNew(defaultFactory, fn, opts...)
}

// RunAction is Run for work that produces no value.
func RunAction(fn Action, opts ...TaskOption) (*Task[struct{}], error) {
	return defaultFactory.StartNewAction(fn, opts...)
}
