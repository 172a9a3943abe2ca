package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/bridge"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/graph"
	"github.com/a2anet/a2anet-go/pkg/jsonrpc"
	"github.com/a2anet/a2anet-go/pkg/push"
)

func newTestServer(t *testing.T) *A2AServer {
	t.Helper()

	coordinator, err := bridge.NewCoordinator(
		bridge.WithEngine(graph.NewEchoEngine()),
		bridge.WithPushService(push.NewService()),
	)
	assert.NoError(t, err)

	description := "test bridge"

	srv := NewA2AServer(coordinator, &a2a.AgentCard{
		Name:        "Test Bridge",
		Description: &description,
		URL:         "http://test.local",
		Version:     "0.0.1",
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      true,
			StateTransitionHistory: true,
		},
	}, ":0")
	srv.registerRoutes()

	return srv
}

func rpcCall(t *testing.T, srv *A2AServer, method string, params any) jsonrpc.Response {
	t.Helper()

	body, err := json.Marshal(jsonrpc.Request{
		Message: jsonrpc.Message{
			MessageIdentifier: jsonrpc.MessageIdentifier{ID: 1},
			JSONRPC:           "2.0",
		},
		Method: method,
		Params: params,
	})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req, fiber.TestConfig{
		Timeout: 5 * time.Second,
	})
	assert.NoError(t, err)

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)

	var response jsonrpc.Response
	assert.NoError(t, json.Unmarshal(raw, &response))

	return response
}

func resultAsTask(t *testing.T, response jsonrpc.Response) *a2a.Task {
	t.Helper()

	raw, err := json.Marshal(response.Result)
	assert.NoError(t, err)

	task, err := a2a.NewTaskFromRequest(raw)
	assert.NoError(t, err)

	return task
}

func TestAgentCardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
	resp, err := srv.app.Test(req)
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var card a2a.AgentCard
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "Test Bridge", card.Name)
	assert.True(t, card.Capabilities.Streaming)
}

func TestTasksSendBlocksUntilSettled(t *testing.T) {
	srv := newTestServer(t)

	response := rpcCall(t, srv, "tasks/send", a2a.TaskSendParams{
		ID:      "task1",
		Message: *a2a.NewTextMessage("user", "hello bridge"),
	})

	assert.Nil(t, response.Error)

	task := resultAsTask(t, response)
	assert.Equal(t, "task1", task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Len(t, task.Artifacts, 1)
	assert.Equal(t, "hello bridge", task.Artifacts[0].Parts[0].Text)
}

func TestTasksSendSubscribeReturnsImmediately(t *testing.T) {
	srv := newTestServer(t)

	response := rpcCall(t, srv, "tasks/sendSubscribe", a2a.TaskSendParams{
		ID:      "task1",
		Message: *a2a.NewTextMessage("user", "hello"),
	})

	assert.Nil(t, response.Error)

	task := resultAsTask(t, response)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status.State)
}

func TestTasksGet(t *testing.T) {
	srv := newTestServer(t)

	rpcCall(t, srv, "tasks/send", a2a.TaskSendParams{
		ID:      "task1",
		Message: *a2a.NewTextMessage("user", "hello"),
	})

	response := rpcCall(t, srv, "tasks/get", a2a.TaskQueryParams{
		TaskIDParams: a2a.TaskIDParams{ID: "task1"},
	})

	assert.Nil(t, response.Error)

	task := resultAsTask(t, response)
	assert.Equal(t, "task1", task.ID)

	response = rpcCall(t, srv, "tasks/get", a2a.TaskQueryParams{
		TaskIDParams: a2a.TaskIDParams{ID: "ghost"},
	})

	assert.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, response.Error.Code)
}

func TestTasksCancelIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	rpcCall(t, srv, "tasks/send", a2a.TaskSendParams{
		ID:      "task1",
		Message: *a2a.NewTextMessage("user", "hello"),
	})

	// Cancelling a finished task is a no-op that reports its state
	response := rpcCall(t, srv, "tasks/cancel", a2a.TaskCancelParams{
		TaskIDParams: a2a.TaskIDParams{ID: "task1"},
	})

	assert.Nil(t, response.Error)

	task := resultAsTask(t, response)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t)

	response := rpcCall(t, srv, "tasks/teleport", nil)

	assert.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrMethodNotFound.Code, response.Error.Code)
}

func TestPushNotificationConfigOperations(t *testing.T) {
	srv := newTestServer(t)

	rpcCall(t, srv, "tasks/send", a2a.TaskSendParams{
		ID:      "task1",
		Message: *a2a.NewTextMessage("user", "hello"),
	})

	response := rpcCall(t, srv, "tasks/pushNotification/set", a2a.TaskPushNotificationConfig{
		ID: "task1",
		PushNotificationConfig: a2a.PushNotificationConfig{
			URL: "http://example.com/webhook",
		},
	})
	assert.Nil(t, response.Error)

	response = rpcCall(t, srv, "tasks/pushNotification/get", a2a.TaskIDParams{ID: "task1"})
	assert.Nil(t, response.Error)

	raw, err := json.Marshal(response.Result)
	assert.NoError(t, err)

	var config a2a.TaskPushNotificationConfig
	assert.NoError(t, json.Unmarshal(raw, &config))
	assert.Equal(t, "http://example.com/webhook", config.PushNotificationConfig.URL)

	// Setting a config for an unknown task fails
	response = rpcCall(t, srv, "tasks/pushNotification/set", a2a.TaskPushNotificationConfig{
		ID: "ghost",
		PushNotificationConfig: a2a.PushNotificationConfig{
			URL: "http://example.com/webhook",
		},
	})
	assert.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, response.Error.Code)

	// Getting a config that was never set fails
	rpcCall(t, srv, "tasks/send", a2a.TaskSendParams{
		ID:      "task2",
		Message: *a2a.NewTextMessage("user", "hello"),
	})

	response = rpcCall(t, srv, "tasks/pushNotification/get", a2a.TaskIDParams{ID: "task2"})
	assert.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrPushNotificationConfigNotFound.Code, response.Error.Code)
}
