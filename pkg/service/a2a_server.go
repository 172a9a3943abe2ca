package service

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/auth"
	"github.com/a2anet/a2anet-go/pkg/bridge"
	"github.com/a2anet/a2anet-go/pkg/errors"
	"github.com/a2anet/a2anet-go/pkg/jsonrpc"
	"github.com/a2anet/a2anet-go/pkg/service/sse"
)

/*
A2AServer exposes the task coordinator over JSON-RPC and SSE.  It is
safe for concurrent use because the coordinator and the update bus are.
*/
type A2AServer struct {
	app         *fiber.App
	coordinator *bridge.Coordinator
	card        *a2a.AgentCard
	streamer    *sse.Streamer
	auth        *auth.Service
	addr        string
}

func NewA2AServer(
	coordinator *bridge.Coordinator, card *a2a.AgentCard, addr string,
) *A2AServer {
	return &A2AServer{
		app: fiber.New(fiber.Config{
			AppName:           card.Name,
			ServerHeader:      "A2A-Bridge-Server",
			StreamRequestBody: true,
		}),
		coordinator: coordinator,
		card:        card,
		streamer:    sse.NewStreamer(),
		addr:        addr,
	}
}

// WithAuth protects the task operation endpoints with bearer tokens.
// The agent card and health endpoints stay public so clients can
// discover the bridge before authenticating.
func (srv *A2AServer) WithAuth(service *auth.Service) *A2AServer {
	srv.auth = service
	return srv
}

func (srv *A2AServer) authMiddleware(ctx fiber.Ctx) error {
	switch ctx.Path() {
	case "/", "/.well-known/agent.json":
		return ctx.Next()
	}

	if err := srv.auth.Authenticate(ctx.Get("Authorization")); err != nil {
		if stderrors.Is(err, auth.ErrRateLimited) {
			return ctx.Status(fiber.StatusTooManyRequests).SendString(err.Error())
		}

		return ctx.Status(fiber.StatusUnauthorized).SendString(err.Error())
	}

	return ctx.Next()
}

func (srv *A2AServer) registerRoutes() {
	srv.app.Use(logger.New(logger.Config{
		// Skip logging for event streams to reduce noise
		Next: func(c fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/events")
		},
	}), healthcheck.NewHealthChecker())

	if srv.auth != nil {
		srv.app.Use(srv.authMiddleware)
	}
	srv.app.Get("/", srv.handleRoot)
	srv.app.Get("/.well-known/agent.json", srv.handleAgentCard)
	srv.app.Get("/metrics", srv.handleMetrics)
	srv.app.Get("/events/:id", srv.handleEvents)
	srv.app.Post("/rpc", srv.handleRPC)
}

func (srv *A2AServer) Start() error {
	srv.registerRoutes()
	return srv.app.Listen(
		srv.addr, fiber.ListenConfig{DisableStartupMessage: true},
	)
}

func (srv *A2AServer) Shutdown() error {
	return srv.app.Shutdown()
}

func (srv *A2AServer) handleRoot(ctx fiber.Ctx) error {
	return ctx.SendString("OK")
}

func (srv *A2AServer) handleAgentCard(ctx fiber.Ctx) error {
	return ctx.JSON(srv.card)
}

func (srv *A2AServer) handleMetrics(ctx fiber.Ctx) error {
	return ctx.JSON(srv.coordinator.Metrics().GetMetrics())
}

/*
handleEvents streams a task's updates as server-sent events.  The
optional "from" query parameter is a sequence cursor: events with a
lower sequence number are skipped, everything from the cursor onward is
replayed before live events.
*/
func (srv *A2AServer) handleEvents(ctx fiber.Ctx) error {
	taskID := ctx.Params("id")

	var fromSeq uint64 = 1

	if raw := ctx.Query("from"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)

		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).
				SendString("invalid from cursor")
		}

		fromSeq = parsed
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		events, rpcErr := srv.coordinator.Subscribe(
			r.Context(), taskID, fromSeq,
		)

		if rpcErr != nil {
			http.Error(w, rpcErr.Message, http.StatusNotFound)
			return
		}

		srv.streamer.Stream(w, r, events)
	}

	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (srv *A2AServer) parseParamsWithDecoding(params any) ([]byte, error) {
	var paramsBytes []byte
	var err error

	switch v := params.(type) {
	case string:
		decoded, decodeErr := base64.StdEncoding.DecodeString(v)
		if decodeErr == nil {
			paramsBytes = decoded
			break
		}

		paramsBytes = []byte(v)
	case []byte:
		paramsBytes = v
	default:
		paramsBytes, err = json.Marshal(params)

		if err != nil {
			log.Error("failed to marshal params", "error", err)
			return nil, err
		}
	}

	return paramsBytes, nil
}

// parseAndUnmarshalParams handles decoding and unmarshalling of RPC parameters.
func (srv *A2AServer) parseAndUnmarshalParams(rawParams any, out any) *errors.RpcError {
	paramsBytes, err := srv.parseParamsWithDecoding(rawParams)
	if err != nil {
		return errors.ErrInvalidParams.WithMessagef("failed to parse params: %v", err)
	}

	if err := json.Unmarshal(paramsBytes, out); err != nil {
		log.Error("failed to unmarshal params", "error", err, "params", string(paramsBytes))
		return errors.ErrInvalidParams.WithMessagef("failed to unmarshal params: %v", err)
	}
	return nil
}

/*
handleRPC acts as the central routing for all a2a RPC methods.
*/
func (srv *A2AServer) handleRPC(ctx fiber.Ctx) error {
	ctx.Set("Content-Type", "application/json")

	var request jsonrpc.Request

	if err := ctx.Bind().Body(&request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(jsonrpc.Response{
			Message: jsonrpc.Message{
				MessageIdentifier: jsonrpc.MessageIdentifier{ID: nil},
				JSONRPC:           "2.0",
			},
			Error: &jsonrpc.Error{
				Code:    errors.ErrInvalidRequest.Code,
				Message: "Invalid request body: " + err.Error(),
			},
		})
	}

	switch request.Method {
	case "tasks/send":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskSendParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			task, rpcErr := srv.coordinator.Send(ctx.Context(), params)

			if rpcErr != nil {
				return nil, rpcErr
			}

			// Synchronous send blocks until the task settles, either in
			// a terminal state or awaiting further input.
			return srv.coordinator.Wait(ctx.Context(), task.ID)
		})
	case "tasks/sendSubscribe":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskSendParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			// Returns the accepted task immediately; the caller follows
			// updates on /events/{id} from sequence 1.
			return srv.coordinator.Send(ctx.Context(), params)
		})
	case "tasks/get":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskQueryParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			historyLength := 0

			if params.HistoryLength != nil {
				historyLength = *params.HistoryLength
			}

			return srv.coordinator.Get(ctx.Context(), params.ID, historyLength)
		})
	case "tasks/list":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskListParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			return srv.coordinator.ListByContext(ctx.Context(), params.ContextID)
		})
	case "tasks/cancel":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskCancelParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			return srv.coordinator.Cancel(ctx.Context(), params.ID, params.Reason)
		})
	case "tasks/resubscribe":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskIDParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			// Validates the task and hands back its snapshot; the caller
			// reattaches to /events/{id}?from={cursor} for the stream.
			return srv.coordinator.Get(ctx.Context(), params.ID, 0)
		})
	case "tasks/pushNotification/set":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskPushNotificationConfig

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			pushService := srv.coordinator.PushService()

			if pushService == nil {
				return nil, errors.ErrNotImplemented.WithMessagef(
					"push notifications are disabled",
				)
			}

			if _, rpcErr := srv.coordinator.Get(ctx.Context(), params.ID, 0); rpcErr != nil {
				return nil, rpcErr
			}

			pushService.SetConfig(&params)
			return params, nil
		})
	case "tasks/pushNotification/get":
		return srv.handleTaskOperation(ctx, request.ID, func() (any, error) {
			var params a2a.TaskIDParams

			if rpcErr := srv.parseAndUnmarshalParams(request.Params, &params); rpcErr != nil {
				return nil, rpcErr
			}

			pushService := srv.coordinator.PushService()

			if pushService == nil {
				return nil, errors.ErrNotImplemented.WithMessagef(
					"push notifications are disabled",
				)
			}

			config, exists := pushService.GetConfig(params.ID)

			if !exists {
				return nil, errors.ErrPushNotificationConfigNotFound.WithMessagef(
					"no push notification config for task %s", params.ID,
				)
			}

			return config, nil
		})
	default:
		return ctx.Status(fiber.StatusBadRequest).JSON(jsonrpc.Response{
			Message: jsonrpc.Message{
				MessageIdentifier: jsonrpc.MessageIdentifier{ID: request.ID},
				JSONRPC:           "2.0",
			},
			Error: &jsonrpc.Error{
				Code:    errors.ErrMethodNotFound.Code,
				Message: errors.ErrMethodNotFound.Message + ": " + request.Method,
			},
		})
	}
}

func (srv *A2AServer) handleTaskOperation(ctx fiber.Ctx, requestID any, op func() (any, error)) error {
	result, errOp := op()

	// A typed-nil *errors.RpcError inside the error interface is a
	// success as far as the caller is concerned.
	if rpcErr, ok := errOp.(*errors.RpcError); ok && rpcErr == nil {
		errOp = nil
	}

	if errOp != nil {
		log.Error("error processing task operation", "error", errOp, "requestID", requestID)

		respErrorCode := errors.ErrInternal.Code
		respErrorMessage := errOp.Error()

		if e, ok := errOp.(*errors.RpcError); ok {
			respErrorCode = e.Code
			respErrorMessage = e.Message
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(jsonrpc.Response{
			Message: jsonrpc.Message{
				MessageIdentifier: jsonrpc.MessageIdentifier{ID: requestID},
				JSONRPC:           "2.0",
			},
			Error: &jsonrpc.Error{
				Code:    respErrorCode,
				Message: respErrorMessage,
			},
		})
	}

	return ctx.Status(fiber.StatusOK).JSON(jsonrpc.Response{
		Message: jsonrpc.Message{
			MessageIdentifier: jsonrpc.MessageIdentifier{ID: requestID},
			JSONRPC:           "2.0",
		},
		Result: result,
	})
}
