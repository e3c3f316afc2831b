package taskengine

import "github.com/Swind/go-task-engine/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskengine package for most use cases.

// Task is one deferred computation producing a value of type R.
type Task[R any] = core.Task[R]

// TaskHandle is the type-erased view of a task used by WaitAll and WaitAny.
type TaskHandle = core.TaskHandle

// TaskState is a point in the task lifecycle.
type TaskState = core.TaskState

// TaskID identifies a task for the lifetime of the process.
type TaskID = core.TaskID

// TaskOption configures a task at creation.
type TaskOption = core.TaskOption

// ThreadPool is re-exported for type compatibility
type ThreadPool = core.ThreadPool

// Func and Action are the two shapes of work a task runs.
type (
	Func[R any] = core.Func[R]
	Action      = core.Action
)

// ContinuationCondition selects which antecedent outcomes trigger a continuation.
type ContinuationCondition = core.ContinuationCondition

// ContinuationFunc is the work of a continuation.
type ContinuationFunc[R, S any] = core.ContinuationFunc[R, S]

// Factory starts tasks with a shared pool and cancellation token.
type Factory = core.Factory

// CancellationSource and CancellationToken implement cooperative cancellation.
type (
	CancellationSource = core.CancellationSource
	CancellationToken  = core.CancellationToken
)

// Error types
type (
	AggregateError    = core.AggregateError
	CanceledError     = core.CanceledError
	InvalidStateError = core.InvalidStateError
	TimeoutError      = core.TimeoutError
	PanicError        = core.PanicError
)

// State constants
const (
	StateCreated         = core.StateCreated
	StateScheduled       = core.StateScheduled
	StateRunning         = core.StateRunning
	StateRanToCompletion = core.StateRanToCompletion
	StateFaulted         = core.StateFaulted
	StateCanceled        = core.StateCanceled
)

// Continuation conditions
const (
	ContinueAny        = core.ContinueAny
	ContinueOnSuccess  = core.ContinueOnSuccess
	ContinueOnFault    = core.ContinueOnFault
	ContinueOnCanceled = core.ContinueOnCanceled
)

// Sentinel errors
var (
	ErrCanceled     = core.ErrCanceled
	ErrInvalidState = core.ErrInvalidState
	ErrTimeout      = core.ErrTimeout
	ErrPoolClosed   = core.ErrPoolClosed
	ErrNoThreadPool = core.ErrNoThreadPool
)

// Task options
var (
	WithPayload      = core.WithPayload
	WithCancellation = core.WithCancellation
	WithThreadPool   = core.WithThreadPool
	WithName         = core.WithName
)

// Cancellation and wait helpers
var (
	NewCancellationSource            = core.NewCancellationSource
	NewCancellationSourceFromContext = core.NewCancellationSourceFromContext
	NewActionTask                    = core.NewActionTask
	NewFactory                       = core.NewFactory
	Delay                            = core.Delay
	CheckCanceled                    = core.CheckCanceled
	CurrentTaskID                    = core.CurrentTaskID
	TokenFromContext                 = core.TokenFromContext
	WaitAll                          = core.WaitAll
	WaitAllTimeout                   = core.WaitAllTimeout
	WaitAllContext                   = core.WaitAllContext
	WaitAny                          = core.WaitAny
	WaitAnyTimeout                   = core.WaitAnyTimeout
	WaitAnyContext                   = core.WaitAnyContext
	Faults                           = core.Faults
)

// None is the token that never trips.
var None = core.None

// NewTask creates a result-bearing task in StateCreated.
func NewTask[R any](fn Func[R], opts ...TaskOption) *Task[R] {
	return core.NewTask(fn, opts...)
}

// ContinueWith attaches a result-bearing continuation to antecedent.
func ContinueWith[R, S any](antecedent *Task[R], fn ContinuationFunc[R, S], cond ContinuationCondition, opts ...TaskOption) *Task[S] {
	return core.ContinueWith(antecedent, fn, cond, opts...)
}

// StartNew creates a task from fn through f and starts it.
func StartNew[R any](f *Factory, fn Func[R], opts ...TaskOption) (*Task[R], error) {
	return core.StartNew(f, fn, opts...)
}
