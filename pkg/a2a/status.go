package a2a

import "time"

/*
TaskState enumerates the mutually exclusive states a task may be in.
Unrecognized states map to "unknown".
*/
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateInputReq  TaskState = "input-required"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
	TaskStateUnknown   TaskState = "unknown"
)

// Terminal reports whether no further transitions are possible.
func (state TaskState) Terminal() bool {
	switch state {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

/*
ValidTransition reports whether moving from one state to another follows
the task lifecycle: submitted → working → {input-required → working}* →
{completed | failed | canceled}, with cancellation allowed from any
non-terminal state.
*/
func ValidTransition(from, to TaskState) bool {
	if from.Terminal() {
		return false
	}

	if to == TaskStateCanceled {
		return true
	}

	switch from {
	case TaskStateSubmitted:
		return to == TaskStateWorking
	case TaskStateWorking:
		return to == TaskStateInputReq ||
			to == TaskStateCompleted ||
			to == TaskStateFailed
	case TaskStateInputReq:
		return to == TaskStateWorking || to == TaskStateFailed
	}

	return false
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
