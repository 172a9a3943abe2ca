package stream

import (
	"github.com/a2anet/a2anet-go/pkg/a2a"
)

/*
EventKind tags the variants of an update event.
*/
type EventKind string

const (
	// EventStatusChanged reports a non-failure state transition.
	EventStatusChanged EventKind = "status-changed"
	// EventArtifactProduced carries a discrete output produced mid-run.
	EventArtifactProduced EventKind = "artifact-produced"
	// EventError reports a classified execution failure; always final.
	EventError EventKind = "error"
	// EventCompleted reports successful completion; always final.
	EventCompleted EventKind = "completed"
)

/*
Event is one entry in a task's update channel.  Seq is assigned by the
bus on publish: strictly increasing and gap-free per task.  Final marks
the last event a subscription will ever deliver.
*/
type Event struct {
	Kind     EventKind       `json:"kind"`
	TaskID   string          `json:"taskId"`
	Seq      uint64          `json:"seq"`
	Status   *a2a.TaskStatus `json:"status,omitempty"`
	Artifact *a2a.Artifact   `json:"artifact,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Final    bool            `json:"final"`
}

/*
StatusEvent wraps a state transition.  A canceled status is terminal, so
the event is marked final; completed and failed states use their own
constructors instead.
*/
func StatusEvent(taskID string, status a2a.TaskStatus) Event {
	return Event{
		Kind:   EventStatusChanged,
		TaskID: taskID,
		Status: &status,
		Final:  status.State.Terminal(),
	}
}

func ArtifactEvent(taskID string, artifact a2a.Artifact) Event {
	return Event{
		Kind:     EventArtifactProduced,
		TaskID:   taskID,
		Artifact: &artifact,
	}
}

func ErrorEvent(taskID string, status a2a.TaskStatus, reason string) Event {
	return Event{
		Kind:   EventError,
		TaskID: taskID,
		Status: &status,
		Reason: reason,
		Final:  true,
	}
}

func CompletedEvent(taskID string, status a2a.TaskStatus) Event {
	return Event{
		Kind:   EventCompleted,
		TaskID: taskID,
		Status: &status,
		Final:  true,
	}
}
