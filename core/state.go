package core

// TaskState is a point in the task lifecycle.
//
//	Created -> Scheduled -> Running -> RanToCompletion | Faulted | Canceled
//
// Scheduled may also move straight to Canceled when the task's token trips before a
// worker picks it up, and a continuation whose condition does not match moves from
// Created to Canceled. Terminal states never change.
type TaskState int32

const (
	StateCreated TaskState = iota
	// StateScheduled is also known as WaitingToRun: the task sits in a ready queue
	// (or in the delay manager) waiting for a worker.
	StateScheduled
	StateRunning
	StateRanToCompletion
	StateFaulted
	StateCanceled
)

func (s TaskState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateScheduled:
		return "Scheduled"
	case StateRunning:
		return "Running"
	case StateRanToCompletion:
		return "RanToCompletion"
	case StateFaulted:
		return "Faulted"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s TaskState) IsTerminal() bool {
	return s == StateRanToCompletion || s == StateFaulted || s == StateCanceled
}
