package core

import (
	"strconv"
	"sync/atomic"
)

// TaskID identifies a task for the lifetime of the process.
// IDs are assigned at creation and increase monotonically; zero is never assigned.
type TaskID uint64

var lastTaskID atomic.Uint64

// GenerateTaskID returns the next process-unique task identifier.
func GenerateTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

// IsZero reports whether the ID was never assigned.
func (id TaskID) IsZero() bool {
	return id == 0
}

func (id TaskID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
