package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/graph"
	"github.com/a2anet/a2anet-go/pkg/metrics"
	"github.com/a2anet/a2anet-go/pkg/push"
	"github.com/a2anet/a2anet-go/pkg/stores"
	"github.com/a2anet/a2anet-go/pkg/stream"
)

/*
Coordinator owns the lifecycle of every task: intake, execution through
the graph engine, suspension on input-required, resumption, cancellation,
and fan-out of update events to subscribers.

Each task is driven by at most one goroutine at a time; tasks make
progress independently of each other.
*/
type Coordinator struct {
	store       stores.TaskStore
	bus         *stream.Bus
	engine      graph.Engine
	pushService *push.Service
	metrics     *metrics.BridgeMetrics
	timeout     time.Duration

	mu      sync.Mutex
	handles map[string]*executionHandle
}

/*
Submit creates a task from the send params, registers its update log,
and starts execution in the background. It returns the task in the
submitted state without waiting for the engine to produce anything.
*/
func (coordinator *Coordinator) Submit(
	ctx context.Context, params a2a.TaskSendParams,
) (*a2a.Task, *errors.RpcError) {
	taskID := params.ID

	if taskID == "" {
		taskID = uuid.New().String()
	}

	contextID := params.ContextID

	if contextID == "" {
		contextID = uuid.New().String()
	}

	task := a2a.NewTask(taskID, contextID)
	task.Metadata = params.Metadata
	task.AddMessage(params.Message)
	task.ToStatus(
		a2a.TaskStateSubmitted,
		a2a.NewTextMessage("agent", "task submitted"),
	)

	if rpcErr := coordinator.store.Create(ctx, task); rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := coordinator.bus.Register(taskID); rpcErr != nil {
		return nil, rpcErr
	}

	coordinator.metrics.RecordSubmitted()
	coordinator.publish(taskID, stream.StatusEvent(taskID, task.Status))

	if params.PushNotification != nil && coordinator.pushService != nil {
		coordinator.pushService.SetConfig(&a2a.TaskPushNotificationConfig{
			ID:                     taskID,
			PushNotificationConfig: *params.PushNotification,
		})
	}

	handle := newExecutionHandle(taskID)

	coordinator.mu.Lock()
	coordinator.handles[taskID] = handle
	coordinator.mu.Unlock()

	if coordinator.timeout > 0 {
		handle.timer = time.AfterFunc(coordinator.timeout, func() {
			if _, rpcErr := coordinator.Cancel(
				context.Background(), taskID, "execution deadline exceeded",
			); rpcErr != nil {
				log.Debug(
					"deadline cancel skipped",
					"task", taskID,
					"error", rpcErr,
				)
			}
		})
	}

	go coordinator.run(handle, params.Message)

	log.Info("task submitted", "task", taskID, "context", contextID)
	return task, nil
}

/*
Resume feeds a follow-up message to a task that is waiting in the
input-required state and moves it back to working. Resuming a task that
is not suspended is an invalid state error.
*/
func (coordinator *Coordinator) Resume(
	ctx context.Context, params a2a.TaskSendParams,
) (*a2a.Task, *errors.RpcError) {
	coordinator.mu.Lock()

	handle, ok := coordinator.handles[params.ID]

	if !ok || !handle.suspended {
		coordinator.mu.Unlock()
		return nil, errors.ErrInvalidTaskState.WithMessagef(
			"task %s is not awaiting input", params.ID,
		)
	}

	handle.suspended = false
	coordinator.mu.Unlock()

	task, rpcErr := coordinator.store.Update(
		ctx, params.ID, func(task *a2a.Task) *errors.RpcError {
			task.AddMessage(params.Message)
			task.ToStatus(
				a2a.TaskStateWorking,
				a2a.NewTextMessage("agent", "resuming with new input"),
			)
			return nil
		},
	)

	if rpcErr != nil {
		coordinator.mu.Lock()

		if handle, ok := coordinator.handles[params.ID]; ok {
			handle.suspended = true
		}

		coordinator.mu.Unlock()
		return nil, rpcErr
	}

	coordinator.publish(params.ID, stream.StatusEvent(params.ID, task.Status))
	go coordinator.run(handle, params.Message)

	log.Info("task resumed", "task", params.ID)
	return task, nil
}

/*
Send dispatches a message to either Submit or Resume depending on
whether the task already exists and what state it is in. This is the
entry point behind the tasks/send and tasks/sendSubscribe operations.
*/
func (coordinator *Coordinator) Send(
	ctx context.Context, params a2a.TaskSendParams,
) (*a2a.Task, *errors.RpcError) {
	if params.ID == "" {
		return coordinator.Submit(ctx, params)
	}

	task, rpcErr := coordinator.store.Get(ctx, params.ID, 0)

	if rpcErr != nil {
		if errors.ErrTaskNotFound.Is(rpcErr) {
			return coordinator.Submit(ctx, params)
		}

		return nil, rpcErr
	}

	switch {
	case task.Status.State == a2a.TaskStateInputReq:
		return coordinator.Resume(ctx, params)
	case task.Status.State.Terminal():
		return nil, errors.ErrInvalidTaskState.WithMessagef(
			"task %s already finished as %s", params.ID, task.Status.State,
		)
	default:
		return nil, errors.ErrInvalidTaskState.WithMessagef(
			"task %s is still running", params.ID,
		)
	}
}

// Get returns a snapshot of the task, optionally trimming its history.
func (coordinator *Coordinator) Get(
	ctx context.Context, taskID string, historyLength int,
) (*a2a.Task, *errors.RpcError) {
	return coordinator.store.Get(ctx, taskID, historyLength)
}

// ListByContext returns snapshots of every task sharing a context.
func (coordinator *Coordinator) ListByContext(
	ctx context.Context, contextID string,
) ([]a2a.Task, *errors.RpcError) {
	return coordinator.store.ListByContext(ctx, contextID)
}

/*
Cancel requests cancellation of a task. Cancelling a task that already
reached a terminal state is a no-op that returns the task as-is, so the
operation is safe to retry. A running execution is signalled
cooperatively; the canceled transition is published here rather than
waiting for the engine to notice.
*/
func (coordinator *Coordinator) Cancel(
	ctx context.Context, taskID string, reason string,
) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := coordinator.store.Get(ctx, taskID, 0)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task.Status.State.Terminal() {
		return task, nil
	}

	if reason == "" {
		reason = "cancellation requested"
	}

	coordinator.mu.Lock()
	handle := coordinator.handles[taskID]
	coordinator.mu.Unlock()

	if handle == nil {
		return coordinator.finalizeDetached(ctx, taskID, reason)
	}

	handle.requestCancel()

	var (
		canceled *a2a.Task
		finalErr *errors.RpcError
	)

	handle.finish.Do(func() {
		handle.stopTimer()

		updated, updateErr := coordinator.store.Update(
			ctx, taskID, func(task *a2a.Task) *errors.RpcError {
				task.ToStatus(
					a2a.TaskStateCanceled,
					a2a.NewTextMessage("agent", reason),
				)
				return nil
			},
		)

		if updateErr != nil {
			finalErr = updateErr
			return
		}

		coordinator.publish(
			taskID, stream.StatusEvent(taskID, updated.Status),
		)
		coordinator.metrics.RecordTerminal(a2a.TaskStateCanceled)
		coordinator.removeHandle(taskID)
		coordinator.notifyPush(taskID, updated)

		canceled = updated
		log.Info("task canceled", "task", taskID, "reason", reason)
	})

	if finalErr != nil {
		return nil, finalErr
	}

	if canceled == nil {
		// The execution finalized first; report whatever it settled on.
		return coordinator.store.Get(ctx, taskID, 0)
	}

	return canceled, nil
}

// finalizeDetached cancels a non-terminal task that has no live
// execution handle, such as one left behind by a crashed process.
func (coordinator *Coordinator) finalizeDetached(
	ctx context.Context, taskID string, reason string,
) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := coordinator.store.Update(
		ctx, taskID, func(task *a2a.Task) *errors.RpcError {
			task.ToStatus(
				a2a.TaskStateCanceled,
				a2a.NewTextMessage("agent", reason),
			)
			return nil
		},
	)

	if rpcErr != nil {
		return nil, rpcErr
	}

	coordinator.publish(taskID, stream.StatusEvent(taskID, task.Status))
	coordinator.metrics.RecordTerminal(a2a.TaskStateCanceled)
	coordinator.notifyPush(taskID, task)

	return task, nil
}

/*
Subscribe attaches to a task's update stream starting from the given
cursor. Sequence 1 replays the stream from the beginning; a cursor past
events already delivered skips the replay. The returned channel closes
after the final event, or earlier if the subscriber stalls past the
delivery deadline.
*/
func (coordinator *Coordinator) Subscribe(
	ctx context.Context, taskID string, fromSeq uint64,
) (<-chan stream.Event, *errors.RpcError) {
	return coordinator.bus.Subscribe(ctx, taskID, fromSeq)
}

/*
Wait blocks until the task reaches a resting state, either terminal or
input-required, and returns its snapshot. This backs the synchronous
tasks/send operation. Only events published from this point on count: a
task that already rested once and was resumed keeps Wait blocked until
it rests again.
*/
func (coordinator *Coordinator) Wait(
	ctx context.Context, taskID string,
) (*a2a.Task, *errors.RpcError) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fromSeq, rpcErr := coordinator.bus.NextSeq(taskID)

	if rpcErr != nil {
		return nil, rpcErr
	}

	events, rpcErr := coordinator.bus.Subscribe(waitCtx, taskID, fromSeq)

	if rpcErr != nil {
		return nil, rpcErr
	}

	// The task may have settled before the subscription attached.
	task, rpcErr := coordinator.store.Get(ctx, taskID, 0)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task.Status.State.Terminal() ||
		task.Status.State == a2a.TaskStateInputReq {
		return task, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.ErrInternal.WithMessagef(
				"wait interrupted: %v", ctx.Err(),
			)
		case event, ok := <-events:
			if !ok {
				return coordinator.store.Get(ctx, taskID, 0)
			}

			resting := event.Final || (event.Status != nil &&
				event.Status.State == a2a.TaskStateInputReq)

			if resting {
				return coordinator.store.Get(ctx, taskID, 0)
			}
		}
	}
}

// Metrics exposes the coordinator's counters for reporting endpoints.
func (coordinator *Coordinator) Metrics() *metrics.BridgeMetrics {
	return coordinator.metrics
}

// PushService returns the configured push notification service, which
// may be nil when push delivery is disabled.
func (coordinator *Coordinator) PushService() *push.Service {
	return coordinator.pushService
}

func (coordinator *Coordinator) publish(taskID string, event stream.Event) {
	if _, rpcErr := coordinator.bus.Publish(taskID, event); rpcErr != nil {
		log.Debug(
			"update event not published",
			"task", taskID,
			"kind", event.Kind,
			"error", rpcErr,
		)
	}
}

func (coordinator *Coordinator) notifyPush(taskID string, task *a2a.Task) {
	if coordinator.pushService == nil {
		return
	}

	go func() {
		if err := coordinator.pushService.Notify(taskID, task); err != nil {
			log.Debug(
				"push notification failed", "task", taskID, "error", err,
			)
		}
	}()
}

func (coordinator *Coordinator) removeHandle(taskID string) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	delete(coordinator.handles, taskID)
}
