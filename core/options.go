package core

// TaskOption configures a task at creation.
type TaskOption func(*taskOptions)

type taskOptions struct {
	payload any
	token   CancellationToken
	pool    ThreadPool
	name    string
}

func collectTaskOptions(opts []TaskOption) taskOptions {
	var o taskOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithPayload supplies the opaque input handed to the work function.
func WithPayload(payload any) TaskOption {
	return func(o *taskOptions) { o.payload = payload }
}

// WithCancellation binds a cancellation token to the task.
func WithCancellation(token CancellationToken) TaskOption {
	return func(o *taskOptions) { o.token = token }
}

// WithThreadPool binds the pool Start submits to, instead of the default pool.
func WithThreadPool(pool ThreadPool) TaskOption {
	return func(o *taskOptions) { o.pool = pool }
}

// WithName sets the display name; by default it is the work function's symbol.
func WithName(name string) TaskOption {
	return func(o *taskOptions) { o.name = name }
}
