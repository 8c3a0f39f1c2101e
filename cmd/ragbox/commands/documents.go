package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m0rfeo/ragbox/internal/logging"
)

// NewDocumentsCmd constructs the `ragbox documents` command group for
// inspecting and managing the stored corpus.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Inspect and manage the document store",
	}

	cmd.AddCommand(
		newDocumentsListCmd(),
		newDocumentsDeleteCmd(),
		newDocumentsStatsCmd(),
	)

	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}
			defer closeStore()

			docs, err := svc.ListDocuments(ctx)
			if err != nil {
				return fmt.Errorf("documents list: %w", err)
			}
			if len(docs) == 0 {
				fmt.Println("no documents stored")
				return nil
			}

			for _, d := range docs {
				fmt.Printf("%-40s %5d chunks  updated %s\n",
					d.Name, d.ChunkCount, d.LastUpdated.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a document and all its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			defer closeStore()

			deleted, err := svc.DeleteDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("documents delete: %w", err)
			}
			if !deleted {
				fmt.Printf("document %q not found\n", args[0])
				return nil
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

func newDocumentsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store-wide totals and the active backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("documents stats: %w", err)
			}
			defer closeStore()

			stats, err := svc.Stats(ctx)
			if err != nil {
				return fmt.Errorf("documents stats: %w", err)
			}

			fmt.Printf("backend:   %s\n", svc.Backend())
			fmt.Printf("documents: %d\n", stats.TotalDocuments)
			fmt.Printf("chunks:    %d\n", stats.TotalChunks)
			return nil
		},
	}
}
