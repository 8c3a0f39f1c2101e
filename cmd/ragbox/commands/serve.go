package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m0rfeo/ragbox/internal/agent"
	"github.com/m0rfeo/ragbox/internal/logging"
	"github.com/m0rfeo/ragbox/internal/provider"
	"github.com/m0rfeo/ragbox/internal/server"
)

// NewServeCmd constructs the `ragbox serve` command, which starts the HTTP
// server exposing the chat agent and document API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragbox HTTP server",
		Long: `Start the ragbox HTTP server on localhost.

The server exposes a REST API for chat (POST /api/chat), document
management (GET/POST /api/documents, DELETE /api/documents/{name}),
corpus stats, a health endpoint, and Prometheus metrics at /metrics.

Set RAGBOX_API_KEY to require Bearer authentication on the API routes.

Examples:
  ragbox serve
  ragbox serve --port 9090
  MODEL_PROVIDER=azure ragbox serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()
			log.Info("vector store ready", slog.String("backend", svc.Backend()))

			historyStore, closeHistory := openHistory(log)
			defer closeHistory()

			registry, err := buildRegistry(svc, historyStore)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			loop, err := agent.New(ctx, &agent.Config{
				ChatModel:     chatModel,
				Registry:      registry,
				History:       historyStore,
				SystemPrompt:  os.Getenv("AGENT_SYSTEM_PROMPT"),
				MaxToolCalls:  getEnvInt("AGENT_MAX_TOOL_CALLS", 0),
				HistoryWindow: getEnvInt("AGENT_HISTORY_WINDOW", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			if host == "" {
				host = getEnvOrDefault("SERVER_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = getEnvInt("SERVER_PORT", 8080)
			}

			srv, err := server.New(loop, svc, &server.Config{
				Host:   host,
				Port:   port,
				APIKey: os.Getenv("RAGBOX_API_KEY"),
			}, log)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: SERVER_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: SERVER_PORT or 8080)")

	return cmd
}
