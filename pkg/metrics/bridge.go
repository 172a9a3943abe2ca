package metrics

import (
	"sync"

	"github.com/a2anet/a2anet-go/pkg/a2a"
)

// BridgeMetrics tracks task lifecycle and streaming counters for the bridge.
type BridgeMetrics struct {
	mu sync.RWMutex

	// Task metrics
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksCanceled  int64

	// Streaming metrics
	EventsPublished    int64
	SubscribersEvicted int64
	Subscriptions      int64
}

// NewBridgeMetrics creates a new BridgeMetrics instance
func NewBridgeMetrics() *BridgeMetrics {
	return &BridgeMetrics{}
}

// RecordSubmitted records a newly accepted task
func (m *BridgeMetrics) RecordSubmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TasksSubmitted++
}

// RecordTerminal records a task reaching a terminal state
func (m *BridgeMetrics) RecordTerminal(state a2a.TaskState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case a2a.TaskStateCompleted:
		m.TasksCompleted++
	case a2a.TaskStateFailed:
		m.TasksFailed++
	case a2a.TaskStateCanceled:
		m.TasksCanceled++
	}
}

// RecordEvent records an event appended to a task's update channel
func (m *BridgeMetrics) RecordEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsPublished++
}

// RecordSubscription records a new subscription to a task's update channel
func (m *BridgeMetrics) RecordSubscription() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions++
}

// RecordEviction records a stalled subscriber being evicted
func (m *BridgeMetrics) RecordEviction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubscribersEvicted++
}

// GetMetrics returns a snapshot of the current metrics
func (m *BridgeMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"tasks_submitted":     m.TasksSubmitted,
		"tasks_completed":     m.TasksCompleted,
		"tasks_failed":        m.TasksFailed,
		"tasks_canceled":      m.TasksCanceled,
		"events_published":    m.EventsPublished,
		"subscriptions":       m.Subscriptions,
		"subscribers_evicted": m.SubscribersEvicted,
	}
}
