package bridge

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/graph"
	"github.com/a2anet/a2anet-go/pkg/stream"
)

/*
run drives one engine invocation for a task, translating the engine's
step stream into stored transitions and published update events. It is
the only goroutine touching the task while it holds the handle, which
keeps each task single-writer.
*/
func (coordinator *Coordinator) run(
	handle *executionHandle, message a2a.Message,
) {
	defer func() {
		if r := recover(); r != nil {
			coordinator.fail(
				handle, "engine panicked", fmt.Errorf("%v", r),
			)
		}
	}()

	task, rpcErr := coordinator.store.Get(
		context.Background(), handle.taskID, 0,
	)

	if rpcErr != nil {
		coordinator.fail(handle, "task vanished before execution", rpcErr)
		return
	}

	if task.Status.State == a2a.TaskStateSubmitted {
		task, rpcErr = coordinator.startWorking(handle.taskID)

		if rpcErr != nil {
			coordinator.fail(handle, "failed to start task", rpcErr)
			return
		}
	}

	steps, err := coordinator.engine.Run(handle.ctx, graph.Input{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Message:   message,
		History:   task.History,
		Metadata:  task.Metadata,
	})

	if err != nil {
		coordinator.fail(handle, "engine refused the task", err)
		return
	}

	coordinator.consume(handle, steps)
}

func (coordinator *Coordinator) startWorking(
	taskID string,
) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := coordinator.store.Update(
		context.Background(), taskID,
		func(task *a2a.Task) *errors.RpcError {
			task.ToStatus(
				a2a.TaskStateWorking,
				a2a.NewTextMessage("agent", "task started"),
			)
			return nil
		},
	)

	if rpcErr != nil {
		return nil, rpcErr
	}

	coordinator.publish(taskID, stream.StatusEvent(taskID, task.Status))
	return task, nil
}

/*
consume applies engine steps one at a time, checking for cancellation at
every step boundary. A closed step channel with no preceding terminal
step means the engine gave up silently, which counts as a failure.
*/
func (coordinator *Coordinator) consume(
	handle *executionHandle, steps <-chan graph.Step,
) {
	for {
		select {
		case <-handle.ctx.Done():
			// The cancellation controller owns the terminal transition.
			return
		case step, ok := <-steps:
			if !ok {
				coordinator.fail(
					handle,
					"engine stream ended without a terminal step",
					nil,
				)
				return
			}

			if handle.cancelRequested() {
				return
			}

			switch step.Kind {
			case graph.StepMessage:
				coordinator.progress(handle.taskID, step.Message)
			case graph.StepArtifact:
				coordinator.recordArtifact(handle.taskID, step.Artifact)
			case graph.StepInputRequired:
				coordinator.suspend(handle, step.Message)
				return
			case graph.StepCompleted:
				coordinator.complete(handle, step)
				return
			case graph.StepFailed:
				coordinator.fail(handle, failureReason(step), step.Err)
				return
			default:
				log.Warn(
					"ignoring unknown step kind",
					"task", handle.taskID,
					"kind", step.Kind,
				)
			}
		}
	}
}

/*
progress records an intermediate engine message in the task history and
mirrors it to subscribers as a working status update, without minting a
stored state transition.
*/
func (coordinator *Coordinator) progress(
	taskID string, message *a2a.Message,
) {
	if message == nil {
		return
	}

	task, rpcErr := coordinator.store.Update(
		context.Background(), taskID,
		func(task *a2a.Task) *errors.RpcError {
			task.AddMessage(*message)
			return nil
		},
	)

	if rpcErr != nil {
		log.Debug(
			"progress message dropped", "task", taskID, "error", rpcErr,
		)
		return
	}

	status := a2a.TaskStatus{
		State:     task.Status.State,
		Message:   message,
		Timestamp: task.Status.Timestamp,
	}

	coordinator.publish(taskID, stream.StatusEvent(taskID, status))
}

func (coordinator *Coordinator) recordArtifact(
	taskID string, artifact *a2a.Artifact,
) {
	if artifact == nil {
		return
	}

	task, rpcErr := coordinator.store.Update(
		context.Background(), taskID,
		func(task *a2a.Task) *errors.RpcError {
			task.AddArtifact(*artifact)
			return nil
		},
	)

	if rpcErr != nil {
		log.Debug("artifact dropped", "task", taskID, "error", rpcErr)
		return
	}

	indexed := task.Artifacts[len(task.Artifacts)-1]
	coordinator.publish(taskID, stream.ArtifactEvent(taskID, indexed))
}

/*
suspend parks the task in input-required. The stored transition and the
suspended flag move together under the coordinator mutex, so a Resume
racing the suspension serializes behind it: it is either rejected while
the task is still working, or accepted once the stored state actually
awaits input. The handle stays registered in a suspended state so a
later Resume can restart the engine against the same execution context.
*/
func (coordinator *Coordinator) suspend(
	handle *executionHandle, message *a2a.Message,
) {
	if message == nil {
		message = a2a.NewTextMessage("agent", "additional input required")
	}

	coordinator.mu.Lock()

	task, rpcErr := coordinator.store.Update(
		context.Background(), handle.taskID,
		func(task *a2a.Task) *errors.RpcError {
			task.ToStatus(a2a.TaskStateInputReq, message)
			return nil
		},
	)

	if rpcErr != nil {
		coordinator.mu.Unlock()

		// Most likely cancelled underneath us; the cancel path already
		// published the terminal event and dropped the handle.
		log.Debug(
			"suspend skipped", "task", handle.taskID, "error", rpcErr,
		)
		return
	}

	handle.suspended = true
	coordinator.mu.Unlock()

	coordinator.publish(
		handle.taskID, stream.StatusEvent(handle.taskID, task.Status),
	)

	log.Info("task awaiting input", "task", handle.taskID)
}

func (coordinator *Coordinator) complete(
	handle *executionHandle, step graph.Step,
) {
	handle.finish.Do(func() {
		handle.destroy()

		if step.Artifact != nil {
			coordinator.recordArtifact(handle.taskID, step.Artifact)
		}

		message := step.Message

		if message == nil {
			message = a2a.NewTextMessage("agent", "task completed")
		}

		task, rpcErr := coordinator.store.Update(
			context.Background(), handle.taskID,
			func(task *a2a.Task) *errors.RpcError {
				task.ToStatus(a2a.TaskStateCompleted, message)
				return nil
			},
		)

		if rpcErr != nil {
			log.Error(
				"failed to record completion",
				"task", handle.taskID,
				"error", rpcErr,
			)
			coordinator.removeHandle(handle.taskID)
			return
		}

		coordinator.publish(
			handle.taskID,
			stream.CompletedEvent(handle.taskID, task.Status),
		)
		coordinator.metrics.RecordTerminal(a2a.TaskStateCompleted)
		coordinator.removeHandle(handle.taskID)
		coordinator.notifyPush(handle.taskID, task)

		log.Info("task completed", "task", handle.taskID)
	})
}

func (coordinator *Coordinator) fail(
	handle *executionHandle, reason string, cause error,
) {
	handle.finish.Do(func() {
		handle.destroy()

		if cause != nil {
			log.Error(
				"task execution failed",
				"task", handle.taskID,
				"reason", reason,
				"error", cause,
			)
		} else {
			log.Error(
				"task execution failed",
				"task", handle.taskID,
				"reason", reason,
			)
		}

		task, rpcErr := coordinator.store.Update(
			context.Background(), handle.taskID,
			func(task *a2a.Task) *errors.RpcError {
				task.ToStatus(
					a2a.TaskStateFailed,
					a2a.NewTextMessage("agent", reason),
				)
				return nil
			},
		)

		if rpcErr != nil {
			log.Error(
				"failed to record failure",
				"task", handle.taskID,
				"error", rpcErr,
			)
			coordinator.removeHandle(handle.taskID)
			return
		}

		coordinator.publish(
			handle.taskID,
			stream.ErrorEvent(handle.taskID, task.Status, reason),
		)
		coordinator.metrics.RecordTerminal(a2a.TaskStateFailed)
		coordinator.removeHandle(handle.taskID)
		coordinator.notifyPush(handle.taskID, task)
	})
}

func failureReason(step graph.Step) string {
	if step.Reason != "" {
		return step.Reason
	}

	if step.Err != nil {
		return step.Err.Error()
	}

	return "execution failed"
}
