package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

/*
executionHandle represents one in-flight invocation of the graph engine
for a task.  It owns the cancellation signal for that invocation and the
arbitration of the task's single terminal transition: whoever wins
finish.Do publishes the terminal event, everyone else observes it.

Exactly one handle exists per task between submission and its terminal
outcome; while a task sits in input-required the handle survives in a
suspended state awaiting a resume.
*/
type executionHandle struct {
	taskID string
	ctx    context.Context
	cancel context.CancelFunc

	// canceled is the cooperative flag the adapter checks at step
	// boundaries; once set, the engine is never consumed again.
	canceled atomic.Bool

	// suspended is guarded by the Coordinator's mutex.
	suspended bool

	finish sync.Once
	timer  *time.Timer
}

func newExecutionHandle(taskID string) *executionHandle {
	// Execution outlives the submitting request, so the handle context
	// derives from Background rather than the intake context.
	ctx, cancel := context.WithCancel(context.Background())

	return &executionHandle{
		taskID: taskID,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (handle *executionHandle) requestCancel() {
	handle.canceled.Store(true)
	handle.cancel()
}

func (handle *executionHandle) cancelRequested() bool {
	return handle.canceled.Load()
}

func (handle *executionHandle) stopTimer() {
	if handle.timer != nil {
		handle.timer.Stop()
	}
}

func (handle *executionHandle) destroy() {
	handle.stopTimer()
	handle.cancel()
}
