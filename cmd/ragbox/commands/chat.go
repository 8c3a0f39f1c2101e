package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m0rfeo/ragbox/internal/agent"
	"github.com/m0rfeo/ragbox/internal/logging"
	"github.com/m0rfeo/ragbox/internal/provider"
)

// NewChatCmd constructs the `ragbox chat` command, which sends a single
// message to the agent and prints the answer to stdout.
func NewChatCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the agent a question about your documents",
		Long: `Send one message to the ragbox agent and print its answer.

The agent searches your document collection and, when history is enabled,
recalls past conversations to ground its answer. Use --session to continue
an earlier conversation thread.

Examples:
  ragbox chat "what did the Q3 report say about churn?"
  ragbox chat --session research "and how does that compare to Q2?"
  MODEL_PROVIDER=openai ragbox chat "summarise the onboarding doc"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("chat: failed to initialise model provider: %w", err)
			}

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer closeStore()

			historyStore, closeHistory := openHistory(log)
			defer closeHistory()

			registry, err := buildRegistry(svc, historyStore)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
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
				return fmt.Errorf("chat: failed to initialise agent: %w", err)
			}

			answer, err := loop.HandleMessage(ctx, session, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			fmt.Println(answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "default", "Session ID for conversation continuity")

	return cmd
}
