// Package commands defines all Cobra CLI commands for the ragbox binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/m0rfeo/ragbox/internal/config"
	"github.com/m0rfeo/ragbox/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbox",
		Short: "ragbox — semantic search over your documents with an LLM agent",
		Long: `ragbox is a local-first retrieval engine for your documents.

It chunks and embeds documents into a vector store (Postgres+pgvector,
Qdrant, or a flat JSON file), answers questions through an LLM agent that
searches the corpus and recalls past conversations, and exposes the whole
thing over a REST API.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragbox/config.yaml).
See 'ragbox --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			if _, err := config.Load(configPath, log); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragbox/config.yaml)")

	root.AddCommand(
		NewChatCmd(),
		NewIngestCmd(),
		NewDocumentsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
