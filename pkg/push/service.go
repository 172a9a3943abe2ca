package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
)

/*
Service delivers task snapshots to webhook URLs registered through the
pushNotification config operations. Deliveries are queued and retried
with exponential backoff so a slow webhook never blocks task execution.
*/
type Service struct {
	mu      sync.RWMutex
	configs map[string]*a2a.TaskPushNotificationConfig
	clients map[string]*http.Client
	queue   chan *delivery
	retry   *errors.RetryConfig
}

type delivery struct {
	taskID  string
	payload any
}

func NewService() *Service {
	service := &Service{
		configs: make(map[string]*a2a.TaskPushNotificationConfig),
		clients: make(map[string]*http.Client),
		queue:   make(chan *delivery, 1000),
		retry:   errors.DefaultRetryConfig(),
	}

	go service.deliveryWorker()

	return service
}

// SetConfig sets or replaces the push notification config for a task.
func (service *Service) SetConfig(config *a2a.TaskPushNotificationConfig) {
	service.mu.Lock()
	defer service.mu.Unlock()

	service.configs[config.ID] = config
	service.clients[config.ID] = &http.Client{
		Timeout: time.Second * 10,
	}
}

// GetConfig retrieves the push notification config for a task.
func (service *Service) GetConfig(
	taskID string,
) (*a2a.TaskPushNotificationConfig, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()

	config, exists := service.configs[taskID]
	return config, exists
}

// DeleteConfig removes a task's push notification config.
func (service *Service) DeleteConfig(taskID string) {
	service.mu.Lock()
	defer service.mu.Unlock()

	delete(service.configs, taskID)
	delete(service.clients, taskID)
}

/*
Notify queues a payload for delivery to the task's webhook. It returns
an error only when the task has no registered config; delivery failures
are retried in the background.
*/
func (service *Service) Notify(taskID string, payload any) error {
	if _, exists := service.GetConfig(taskID); !exists {
		return fmt.Errorf(
			"no push notification config found for task %s", taskID,
		)
	}

	service.queue <- &delivery{taskID: taskID, payload: payload}
	return nil
}

func (service *Service) deliveryWorker() {
	for item := range service.queue {
		err := errors.RetryWithBackoff(service.retry, func() error {
			return service.send(item.taskID, item.payload)
		})

		if err != nil {
			log.Error(
				"push notification abandoned",
				"task", item.taskID,
				"error", err,
			)
		}
	}
}

func (service *Service) send(taskID string, payload any) error {
	service.mu.RLock()
	config, exists := service.configs[taskID]
	client := service.clients[taskID]
	service.mu.RUnlock()

	if !exists {
		// Config deleted while the delivery was queued.
		return nil
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(
		http.MethodPost,
		config.PushNotificationConfig.URL,
		bytes.NewReader(body),
	)

	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if auth := config.PushNotificationConfig.Authentication; auth != nil {
		for _, scheme := range auth.Schemes {
			if scheme == "Bearer" && auth.Credentials != nil {
				req.Header.Set(
					"Authorization",
					fmt.Sprintf("Bearer %s", *auth.Credentials),
				)
			}
		}
	}

	if token := config.PushNotificationConfig.Token; token != nil {
		req.Header.Set("X-Task-Token", *token)
	}

	resp, err := client.Do(req)

	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
