package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/auth"
	"github.com/a2anet/a2anet-go/pkg/bridge"
	"github.com/a2anet/a2anet-go/pkg/graph"
	"github.com/a2anet/a2anet-go/pkg/metrics"
	"github.com/a2anet/a2anet-go/pkg/push"
	"github.com/a2anet/a2anet-go/pkg/service"
	"github.com/a2anet/a2anet-go/pkg/stream"
)

var (
	portFlag int
	hostFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the A2A task bridge",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinator, err := buildCoordinator()

			if err != nil {
				return err
			}

			addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
			srv := service.NewA2AServer(coordinator, buildCard(addr), addr)

			if signingKey := viper.GetString("auth.signing_key"); signingKey != "" {
				requestsPerMinute := viper.GetInt64("auth.requests_per_minute")

				if requestsPerMinute <= 0 {
					requestsPerMinute = 600
				}

				srv.WithAuth(auth.NewService(signingKey, requestsPerMinute))
			}

			log.Info("serving task bridge", "addr", addr)
			return srv.Start()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 3210, "Port to serve on")
	serveCmd.Flags().StringVarP(&hostFlag, "host", "H", "0.0.0.0", "Host address to bind to")
}

func buildCoordinator() (*bridge.Coordinator, error) {
	bridgeMetrics := metrics.NewBridgeMetrics()

	busOptions := []stream.BusOption{stream.WithMetrics(bridgeMetrics)}

	if size := viper.GetInt("stream.buffer_size"); size > 0 {
		busOptions = append(busOptions, stream.WithBufferSize(size))
	}

	if timeout := viper.GetDuration("stream.send_timeout"); timeout > 0 {
		busOptions = append(busOptions, stream.WithSendTimeout(timeout))
	}

	options := []bridge.CoordinatorOption{
		bridge.WithEngine(graph.NewEchoEngine()),
		bridge.WithMetrics(bridgeMetrics),
		bridge.WithBus(stream.NewBus(busOptions...)),
		bridge.WithTimeout(viper.GetDuration("bridge.timeout")),
	}

	if viper.GetBool("push.enabled") {
		options = append(options, bridge.WithPushService(push.NewService()))
	}

	return bridge.NewCoordinator(options...)
}

func buildCard(addr string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        viper.GetString("agent.name"),
		Description: stringPtr(viper.GetString("agent.description")),
		URL:         "http://" + addr,
		Version:     viper.GetString("agent.version"),
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      viper.GetBool("push.enabled"),
			StateTransitionHistory: true,
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []a2a.AgentSkill{
			{
				ID:          "echo",
				Name:        "Echo",
				Description: stringPtr("Echoes the submitted message back as an artifact"),
			},
		},
	}
}

func stringPtr(s string) *string {
	return &s
}

var longServe = `
Serve the A2A task bridge over JSON-RPC and SSE.

Examples:
  # Serve the bridge on the default port
  a2anet-go serve

  # Serve the bridge on port 8080
  a2anet-go serve --port 8080
`
