package core

import "context"

// =============================================================================
// Context Helper
// =============================================================================

type tokenKeyType struct{}
type taskIDKeyType struct{}

var (
	tokenKey  tokenKeyType
	taskIDKey taskIDKeyType
)

// TokenFromContext returns the cancellation token bound to the running task,
// or None outside a task.
func TokenFromContext(ctx context.Context) CancellationToken {
	if v := ctx.Value(tokenKey); v != nil {
		return v.(CancellationToken)
	}
	return None
}

// CurrentTaskID returns the ID of the task executing with ctx.
func CurrentTaskID(ctx context.Context) (TaskID, bool) {
	if v := ctx.Value(taskIDKey); v != nil {
		return v.(TaskID), true
	}
	return 0, false
}

// CheckCanceled is the polling point for work functions: it returns a *CanceledError
// once the task's token has tripped or ctx is done, nil otherwise.
func CheckCanceled(ctx context.Context) error {
	if err := TokenFromContext(ctx).ThrowIfCancellationRequested(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &CanceledError{Cause: err}
	}
	return nil
}

func withTaskValues(ctx context.Context, id TaskID, token CancellationToken) context.Context {
	ctx = context.WithValue(ctx, taskIDKey, id)
	return context.WithValue(ctx, tokenKey, token)
}
