package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m0rfeo/ragbox/internal/logging"
	"github.com/m0rfeo/ragbox/internal/search"
)

// NewIngestCmd constructs the `ragbox ingest` command, which chunks and
// embeds plain-text files into the vector store.
func NewIngestCmd() *cobra.Command {
	var name string
	var chunkSize int
	var metaPairs []string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest text files into the document store",
		Long: `Chunk, embed, and store one or more plain-text files.

Each file becomes a document named after its base filename (override with
--name when ingesting a single file). Text is split into paragraph-packed
chunks before embedding. Re-ingesting an existing document name adds new
chunks; delete the document first for a clean replace.

Backend selection:
  VECTOR_BACKEND       postgres, qdrant, or flatfile (default: auto)
  DATABASE_URL         Postgres connection string for the indexed backend
  VECTOR_JSON_PATH     Flat-file location (default: data/memory/vector_store.json)
  EMBEDDING_*          Embedding provider overrides (see README)

Examples:
  ragbox ingest notes.md
  ragbox ingest --name handbook --meta team=platform handbook-v2.txt
  ragbox ingest docs/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if name != "" && len(args) > 1 {
				return fmt.Errorf("ingest: --name only applies when ingesting a single file")
			}

			meta := make(map[string]string, len(metaPairs))
			for _, pair := range metaPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok || k == "" {
					return fmt.Errorf("ingest: invalid --meta %q, expected key=value", pair)
				}
				meta[k] = v
			}

			svc, closeStore, err := openSearchService(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeStore()

			totalStored := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: read %s: %w", path, err)
				}

				chunks := search.ChunkText(string(data), chunkSize)
				if len(chunks) == 0 {
					log.Warn("ingest: file has no text, skipping", slog.String("path", path))
					continue
				}

				docName := name
				if docName == "" {
					docName = filepath.Base(path)
				}

				stored, err := svc.StoreDocument(ctx, chunks, docName, meta)
				if err != nil {
					return fmt.Errorf("ingest: store %s: %w", docName, err)
				}
				if stored < len(chunks) {
					fmt.Printf("%s: stored %d of %d chunks (partial — re-run to resume)\n", docName, stored, len(chunks))
				} else {
					fmt.Printf("%s: stored %d chunks\n", docName, stored)
				}
				totalStored += stored
			}

			fmt.Printf("done: %d chunks across %d file(s) via %s backend\n", totalStored, len(args), svc.Backend())
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name (default: base filename; single file only)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", search.DefaultChunkSize, "Maximum chunk size in characters")
	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Metadata key=value to attach to every chunk (repeatable)")

	return cmd
}
