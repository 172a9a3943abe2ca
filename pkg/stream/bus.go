package stream

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/metrics"
)

/*
Bus keeps one ordered, replayable event log per task and fans live events
out to subscribers.  The log is complete by construction: a slow consumer
is given a bounded grace period and then evicted, the event is never
dropped, and an evicted consumer can resubscribe from its last cursor.
*/
type Bus struct {
	mu          sync.RWMutex
	logs        map[string]*taskLog
	bufferSize  int
	sendTimeout time.Duration
	metrics     *metrics.BridgeMetrics
}

type taskLog struct {
	mu     sync.Mutex
	events []Event
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan Event
}

type BusOption func(*Bus)

func NewBus(options ...BusOption) *Bus {
	bus := &Bus{
		logs:        make(map[string]*taskLog),
		bufferSize:  16,
		sendTimeout: 5 * time.Second,
	}

	for _, option := range options {
		option(bus)
	}

	if bus.metrics == nil {
		bus.metrics = metrics.NewBridgeMetrics()
	}

	return bus
}

// WithBufferSize sets the per-subscriber buffer used before backpressure kicks in.
func WithBufferSize(size int) BusOption {
	return func(bus *Bus) {
		bus.bufferSize = size
	}
}

// WithSendTimeout bounds how long a publish waits on a stalled subscriber
// before evicting it.
func WithSendTimeout(timeout time.Duration) BusOption {
	return func(bus *Bus) {
		bus.sendTimeout = timeout
	}
}

func WithMetrics(m *metrics.BridgeMetrics) BusOption {
	return func(bus *Bus) {
		bus.metrics = m
	}
}

// Register creates the event log for a task.  Called once at task creation.
func (bus *Bus) Register(taskID string) *errors.RpcError {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, ok := bus.logs[taskID]; ok {
		return errors.ErrTaskAlreadyExists.WithMessagef(
			"update channel for task %s already exists", taskID,
		)
	}

	bus.logs[taskID] = &taskLog{
		subs: make(map[*subscriber]struct{}),
	}

	return nil
}

// Remove drops a task's log and disconnects any remaining subscribers.
func (bus *Bus) Remove(taskID string) {
	bus.mu.Lock()
	taskLog, ok := bus.logs[taskID]
	delete(bus.logs, taskID)
	bus.mu.Unlock()

	if !ok {
		return
	}

	taskLog.mu.Lock()
	defer taskLog.mu.Unlock()

	for sub := range taskLog.subs {
		delete(taskLog.subs, sub)
		close(sub.ch)
	}
	taskLog.closed = true
}

/*
Publish appends an event to the task's log, assigning the next sequence
number, and delivers it to live subscribers.  A final event closes the
log: subscriptions end after receiving it.
*/
func (bus *Bus) Publish(taskID string, event Event) (uint64, *errors.RpcError) {
	taskLog, rpcErr := bus.log(taskID)
	if rpcErr != nil {
		return 0, rpcErr
	}

	taskLog.mu.Lock()
	defer taskLog.mu.Unlock()

	if taskLog.closed {
		return 0, errors.ErrInvalidTaskState.WithMessagef(
			"update channel for task %s is closed", taskID,
		)
	}

	event.TaskID = taskID
	event.Seq = uint64(len(taskLog.events)) + 1
	taskLog.events = append(taskLog.events, event)
	bus.metrics.RecordEvent()

	for sub := range taskLog.subs {
		bus.deliver(taskID, taskLog, sub, event)
	}

	if event.Final {
		taskLog.closed = true
		for sub := range taskLog.subs {
			delete(taskLog.subs, sub)
			close(sub.ch)
		}
	}

	return event.Seq, nil
}

/*
deliver sends one event to one subscriber.  The fast path is a buffered
send; when the buffer is full the publisher blocks for the configured
grace period, after which the subscriber is considered stalled and is
evicted.  Callers hold the task log lock, so eviction and delivery never
race with unsubscribe.
*/
func (bus *Bus) deliver(taskID string, taskLog *taskLog, sub *subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	timer := time.NewTimer(bus.sendTimeout)
	defer timer.Stop()

	select {
	case sub.ch <- event:
	case <-timer.C:
		log.Warn("evicting stalled subscriber",
			"task", taskID, "seq", event.Seq,
		)
		delete(taskLog.subs, sub)
		close(sub.ch)
		bus.metrics.RecordEviction()
	}
}

/*
Subscribe returns a channel of events for one task starting at fromSeq
(sequence numbers start at 1; 0 is treated as 1).  Buffered history is
replayed first, then live events follow, and the channel closes after the
final event.  Cancelling ctx detaches the subscription.
*/
func (bus *Bus) Subscribe(
	ctx context.Context, taskID string, fromSeq uint64,
) (<-chan Event, *errors.RpcError) {
	taskLog, rpcErr := bus.log(taskID)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if fromSeq < 1 {
		fromSeq = 1
	}

	taskLog.mu.Lock()

	var pending []Event
	if fromSeq <= uint64(len(taskLog.events)) {
		pending = append([]Event(nil), taskLog.events[fromSeq-1:]...)
	}

	out := make(chan Event, len(pending)+bus.bufferSize)

	if taskLog.closed {
		taskLog.mu.Unlock()

		go func() {
			defer close(out)
			for _, event := range pending {
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}()

		return out, nil
	}

	sub := &subscriber{ch: make(chan Event, bus.bufferSize)}
	taskLog.subs[sub] = struct{}{}
	taskLog.mu.Unlock()

	bus.metrics.RecordSubscription()

	go func() {
		defer close(out)

		for _, event := range pending {
			select {
			case out <- event:
			case <-ctx.Done():
				bus.unsubscribe(taskLog, sub)
				return
			}
		}

		for {
			select {
			case event, ok := <-sub.ch:
				if !ok {
					// Final event delivered, or we were evicted.
					return
				}

				// A cursor past the end of the log holds until the
				// stream catches up to it.
				if event.Seq < fromSeq {
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					bus.unsubscribe(taskLog, sub)
					return
				}
			case <-ctx.Done():
				bus.unsubscribe(taskLog, sub)
				return
			}
		}
	}()

	return out, nil
}

// NextSeq returns the sequence number the next published event for the
// task will carry. Subscribing from it skips the buffered history.
func (bus *Bus) NextSeq(taskID string) (uint64, *errors.RpcError) {
	taskLog, rpcErr := bus.log(taskID)
	if rpcErr != nil {
		return 0, rpcErr
	}

	taskLog.mu.Lock()
	defer taskLog.mu.Unlock()

	return uint64(len(taskLog.events)) + 1, nil
}

// Events returns a copy of the buffered log for a task.
func (bus *Bus) Events(taskID string) ([]Event, *errors.RpcError) {
	taskLog, rpcErr := bus.log(taskID)
	if rpcErr != nil {
		return nil, rpcErr
	}

	taskLog.mu.Lock()
	defer taskLog.mu.Unlock()

	return append([]Event(nil), taskLog.events...), nil
}

func (bus *Bus) unsubscribe(taskLog *taskLog, sub *subscriber) {
	taskLog.mu.Lock()
	defer taskLog.mu.Unlock()

	if _, ok := taskLog.subs[sub]; ok {
		delete(taskLog.subs, sub)
		close(sub.ch)
	}
}

func (bus *Bus) log(taskID string) (*taskLog, *errors.RpcError) {
	bus.mu.RLock()
	taskLog, ok := bus.logs[taskID]
	bus.mu.RUnlock()

	if !ok {
		return nil, errors.ErrTaskNotFound.WithMessagef(
			"update channel for task %s not found", taskID,
		)
	}

	return taskLog, nil
}
