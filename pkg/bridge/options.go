package bridge

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/graph"
	"github.com/a2anet/a2anet-go/pkg/metrics"
	"github.com/a2anet/a2anet-go/pkg/push"
	"github.com/a2anet/a2anet-go/pkg/stores"
	"github.com/a2anet/a2anet-go/pkg/stream"
)

type CoordinatorOption func(*Coordinator)

/*
NewCoordinator constructs a task Coordinator from functional options.
A graph engine is mandatory; the task store, update bus, and metrics
fall back to in-memory defaults when not provided.
*/
func NewCoordinator(options ...CoordinatorOption) (*Coordinator, error) {
	coordinator := &Coordinator{
		handles: make(map[string]*executionHandle),
	}

	for _, option := range options {
		option(coordinator)
	}

	if coordinator.engine == nil {
		log.Error("coordinator requires a graph engine")
		return nil, errors.ErrMissingEngine
	}

	if coordinator.metrics == nil {
		coordinator.metrics = metrics.NewBridgeMetrics()
	}

	if coordinator.store == nil {
		coordinator.store = stores.NewInMemoryTaskStore()
	}

	if coordinator.bus == nil {
		coordinator.bus = stream.NewBus(stream.WithMetrics(coordinator.metrics))
	}

	return coordinator, nil
}

func WithEngine(engine graph.Engine) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.engine = engine
	}
}

func WithTaskStore(store stores.TaskStore) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.store = store
	}
}

func WithBus(bus *stream.Bus) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.bus = bus
	}
}

func WithPushService(service *push.Service) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.pushService = service
	}
}

func WithMetrics(bridgeMetrics *metrics.BridgeMetrics) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.metrics = bridgeMetrics
	}
}

// WithTimeout bounds each task's wall-clock execution time. A task that
// exceeds it is cancelled through the same path as a user cancel.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.timeout = timeout
	}
}
