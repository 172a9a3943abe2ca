package a2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateTerminal(t *testing.T) {
	assert.True(t, TaskStateCompleted.Terminal())
	assert.True(t, TaskStateFailed.Terminal())
	assert.True(t, TaskStateCanceled.Terminal())

	assert.False(t, TaskStateSubmitted.Terminal())
	assert.False(t, TaskStateWorking.Terminal())
	assert.False(t, TaskStateInputReq.Terminal())
	assert.False(t, TaskStateUnknown.Terminal())
}

func TestValidTransition(t *testing.T) {
	// The happy path walks the full lifecycle
	assert.True(t, ValidTransition(TaskStateSubmitted, TaskStateWorking))
	assert.True(t, ValidTransition(TaskStateWorking, TaskStateInputReq))
	assert.True(t, ValidTransition(TaskStateInputReq, TaskStateWorking))
	assert.True(t, ValidTransition(TaskStateWorking, TaskStateCompleted))
	assert.True(t, ValidTransition(TaskStateWorking, TaskStateFailed))
	assert.True(t, ValidTransition(TaskStateInputReq, TaskStateFailed))

	// Cancellation is reachable from every non-terminal state
	assert.True(t, ValidTransition(TaskStateSubmitted, TaskStateCanceled))
	assert.True(t, ValidTransition(TaskStateWorking, TaskStateCanceled))
	assert.True(t, ValidTransition(TaskStateInputReq, TaskStateCanceled))

	// Terminal states never transition again
	assert.False(t, ValidTransition(TaskStateCompleted, TaskStateWorking))
	assert.False(t, ValidTransition(TaskStateFailed, TaskStateWorking))
	assert.False(t, ValidTransition(TaskStateCanceled, TaskStateCanceled))

	// Skipping or reversing lifecycle stages is rejected
	assert.False(t, ValidTransition(TaskStateSubmitted, TaskStateCompleted))
	assert.False(t, ValidTransition(TaskStateSubmitted, TaskStateInputReq))
	assert.False(t, ValidTransition(TaskStateWorking, TaskStateSubmitted))
	assert.False(t, ValidTransition(TaskStateInputReq, TaskStateCompleted))
}

func TestToStatusRecordsTransitions(t *testing.T) {
	task := NewTask("task1", "ctx1")

	task.ToStatus(TaskStateSubmitted, NewTextMessage("agent", "created"))
	task.ToStatus(TaskStateWorking, NewTextMessage("agent", "started"))
	task.ToStatus(TaskStateCompleted, NewTextMessage("agent", "done"))

	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Len(t, task.Transitions, 3)
	assert.Equal(t, TaskStateSubmitted, task.Transitions[0].State)
	assert.Equal(t, TaskStateWorking, task.Transitions[1].State)
	assert.Equal(t, TaskStateCompleted, task.Transitions[2].State)
	assert.NotZero(t, task.Status.Timestamp)
}

func TestTaskClone(t *testing.T) {
	task := NewTask("task1", "ctx1")
	task.AddMessage(*NewTextMessage("user", "hello"))
	task.AddArtifact(NewTextArtifact("out", "output", "result"))
	task.Metadata = map[string]any{"key": "value"}

	clone := task.Clone()
	clone.AddMessage(*NewTextMessage("user", "extra"))
	clone.Metadata["key"] = "changed"

	assert.Len(t, task.History, 1)
	assert.Len(t, clone.History, 2)
	assert.Equal(t, "value", task.Metadata["key"])
}

func TestAddArtifactAssignsIndexes(t *testing.T) {
	task := NewTask("task1", "ctx1")

	task.AddArtifact(NewTextArtifact("first", "", "a"))
	task.AddArtifact(NewTextArtifact("second", "", "b"))

	assert.Equal(t, 0, task.Artifacts[0].Index)
	assert.Equal(t, 1, task.Artifacts[1].Index)
}
