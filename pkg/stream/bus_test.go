package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/metrics"
)

func workingStatus() a2a.TaskStatus {
	return a2a.TaskStatus{
		State:     a2a.TaskStateWorking,
		Timestamp: time.Now(),
	}
}

func completedStatus() a2a.TaskStatus {
	return a2a.TaskStatus{
		State:     a2a.TaskStateCompleted,
		Timestamp: time.Now(),
	}
}

func collect(t *testing.T, events <-chan Event, want int) []Event {
	t.Helper()

	var got []Event

	timeout := time.After(2 * time.Second)

	for len(got) < want {
		select {
		case event, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, event)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), want)
		}
	}

	return got
}

func TestBusRegister(t *testing.T) {
	bus := NewBus()

	assert.Nil(t, bus.Register("task1"))

	rpcErr := bus.Register("task1")
	assert.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrTaskAlreadyExists.Code, rpcErr.Code)
}

func TestBusPublishAssignsSequence(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	for want := uint64(1); want <= 5; want++ {
		seq, rpcErr := bus.Publish("task1", StatusEvent("task1", workingStatus()))
		assert.Nil(t, rpcErr)
		assert.Equal(t, want, seq)
	}

	next, rpcErr := bus.NextSeq("task1")
	assert.Nil(t, rpcErr)
	assert.Equal(t, uint64(6), next)

	events, rpcErr := bus.Events("task1")
	assert.Nil(t, rpcErr)
	assert.Len(t, events, 5)

	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Seq)
		assert.Equal(t, "task1", event.TaskID)
	}
}

func TestBusPublishUnknownTask(t *testing.T) {
	bus := NewBus()

	_, rpcErr := bus.Publish("ghost", StatusEvent("ghost", workingStatus()))
	assert.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestBusPublishAfterFinal(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	_, rpcErr := bus.Publish("task1", CompletedEvent("task1", completedStatus()))
	assert.Nil(t, rpcErr)

	_, rpcErr = bus.Publish("task1", StatusEvent("task1", workingStatus()))
	assert.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrInvalidTaskState.Code, rpcErr.Code)
}

func TestBusSubscribeLiveStream(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	events, rpcErr := bus.Subscribe(context.Background(), "task1", 1)
	assert.Nil(t, rpcErr)

	bus.Publish("task1", StatusEvent("task1", workingStatus()))
	bus.Publish("task1", ArtifactEvent("task1", a2a.NewTextArtifact("out", "", "hi")))
	bus.Publish("task1", CompletedEvent("task1", completedStatus()))

	got := collect(t, events, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, EventStatusChanged, got[0].Kind)
	assert.Equal(t, EventArtifactProduced, got[1].Kind)
	assert.Equal(t, EventCompleted, got[2].Kind)
	assert.True(t, got[2].Final)

	// Channel closes after the final event
	_, open := <-events
	assert.False(t, open)
}

func TestBusSubscribeReplaysFromCursor(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	for i := 0; i < 4; i++ {
		bus.Publish("task1", StatusEvent("task1", workingStatus()))
	}

	events, rpcErr := bus.Subscribe(context.Background(), "task1", 3)
	assert.Nil(t, rpcErr)

	bus.Publish("task1", CompletedEvent("task1", completedStatus()))

	got := collect(t, events, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)
}

func TestBusSubscribeNoGapsAcrossReplayBoundary(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	for i := 0; i < 10; i++ {
		bus.Publish("task1", StatusEvent("task1", workingStatus()))
	}

	events, rpcErr := bus.Subscribe(context.Background(), "task1", 1)
	assert.Nil(t, rpcErr)

	for i := 0; i < 9; i++ {
		bus.Publish("task1", StatusEvent("task1", workingStatus()))
	}
	bus.Publish("task1", CompletedEvent("task1", completedStatus()))

	got := collect(t, events, 20)
	assert.Len(t, got, 20)

	for i, event := range got {
		assert.Equal(t, uint64(i+1), event.Seq)
	}
}

func TestBusSubscribeClosedLog(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	bus.Publish("task1", StatusEvent("task1", workingStatus()))
	bus.Publish("task1", CompletedEvent("task1", completedStatus()))

	// Subscribing after the final event still replays the full log
	events, rpcErr := bus.Subscribe(context.Background(), "task1", 1)
	assert.Nil(t, rpcErr)

	got := collect(t, events, 2)
	assert.Len(t, got, 2)
	assert.True(t, got[1].Final)

	_, open := <-events
	assert.False(t, open)
}

func TestBusSubscribeCursorBeyondEnd(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	_, rpcErr := bus.Publish("task1", StatusEvent("task1", workingStatus()))
	assert.Nil(t, rpcErr)

	events, rpcErr := bus.Subscribe(context.Background(), "task1", 3)
	assert.Nil(t, rpcErr)

	// Sequence 2 precedes the cursor and must be withheld
	_, rpcErr = bus.Publish("task1", StatusEvent("task1", workingStatus()))
	assert.Nil(t, rpcErr)

	_, rpcErr = bus.Publish("task1", CompletedEvent("task1", completedStatus()))
	assert.Nil(t, rpcErr)

	got := collect(t, events, 1)
	assert.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.True(t, got[0].Final)
}

func TestBusSubscribeUnknownTask(t *testing.T) {
	bus := NewBus()

	events, rpcErr := bus.Subscribe(context.Background(), "ghost", 1)
	assert.Nil(t, events)
	assert.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestBusSubscribeContextCancel(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	ctx, cancel := context.WithCancel(context.Background())

	events, rpcErr := bus.Subscribe(ctx, "task1", 1)
	assert.Nil(t, rpcErr)

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription did not close after context cancel")
		}
	}
}

func TestBusEvictsStalledSubscriber(t *testing.T) {
	bridgeMetrics := metrics.NewBridgeMetrics()
	bus := NewBus(
		WithBufferSize(1),
		WithSendTimeout(50*time.Millisecond),
		WithMetrics(bridgeMetrics),
	)
	assert.Nil(t, bus.Register("task1"))

	// Subscribe but never read, so the buffers fill up
	events, rpcErr := bus.Subscribe(context.Background(), "task1", 1)
	assert.Nil(t, rpcErr)

	// Publishes must all succeed even though the subscriber stalls;
	// the slow consumer is evicted rather than the event dropped.
	for i := 0; i < 6; i++ {
		_, rpcErr := bus.Publish("task1", StatusEvent("task1", workingStatus()))
		assert.Nil(t, rpcErr)
	}

	assert.Eventually(t, func() bool {
		snapshot := bridgeMetrics.GetMetrics()
		return snapshot["subscribers_evicted"].(int64) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The log is complete, so a fresh subscription sees every event
	logged, _ := bus.Events("task1")
	assert.Len(t, logged, 6)

	// Eviction closes the stream without a final event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("evicted subscription never closed")
		}
	}
}

func TestBusEvictedSubscriberCanResume(t *testing.T) {
	bus := NewBus(WithBufferSize(1), WithSendTimeout(20*time.Millisecond))
	assert.Nil(t, bus.Register("task1"))

	stalled, _ := bus.Subscribe(context.Background(), "task1", 1)

	for i := 0; i < 5; i++ {
		bus.Publish("task1", StatusEvent("task1", workingStatus()))
	}

	// Drain whatever arrived before eviction and note the cursor
	var lastSeen uint64
	for event := range stalled {
		lastSeen = event.Seq
	}

	resumed, rpcErr := bus.Subscribe(context.Background(), "task1", lastSeen+1)
	assert.Nil(t, rpcErr)

	bus.Publish("task1", CompletedEvent("task1", completedStatus()))

	got := collect(t, resumed, int(6-lastSeen))

	// No gaps: the resumed stream picks up exactly after the cursor
	assert.Equal(t, lastSeen+1, got[0].Seq)
	assert.Equal(t, uint64(6), got[len(got)-1].Seq)
	assert.True(t, got[len(got)-1].Final)
}

func TestBusRemoveDisconnectsSubscribers(t *testing.T) {
	bus := NewBus()
	assert.Nil(t, bus.Register("task1"))

	events, _ := bus.Subscribe(context.Background(), "task1", 1)

	bus.Remove("task1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription survived log removal")
		}
	}
}
