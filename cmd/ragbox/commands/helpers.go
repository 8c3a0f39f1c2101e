package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/m0rfeo/ragbox/internal/embedder"
	"github.com/m0rfeo/ragbox/internal/history"
	"github.com/m0rfeo/ragbox/internal/search"
	"github.com/m0rfeo/ragbox/internal/tools"
	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// openSearchService wires the embedder and vector store into a search
// service from environment configuration. The returned cleanup closes the
// store and must be called when the command finishes.
func openSearchService(ctx context.Context, log *slog.Logger) (*search.Service, func(), error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	dims := embedder.DefaultDimensions(embedder.ResolveBackend())

	store, err := vectorstore.Open(ctx, vectorstore.Config{
		Backend:     os.Getenv("VECTOR_BACKEND"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JSONPath:    os.Getenv("VECTOR_JSON_PATH"),
		Dimensions:  dims,
		Qdrant: vectorstore.QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       getEnvInt("QDRANT_PORT", 0),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	svc := search.NewService(emb, store, search.LexicalReranker{})
	cleanup := func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("vector store close failed", slog.Any("error", cerr))
		}
	}
	return svc, cleanup, nil
}

// openHistory opens the conversation history store. RAGBOX_HISTORY_DB
// overrides the default path (~/.ragbox/history.db); set it to "disabled"
// to turn persistence off. Failures disable history rather than aborting
// the command. The returned store is nil when history is disabled.
func openHistory(log *slog.Logger) (history.TurnStore, func()) {
	dbPath := os.Getenv("RAGBOX_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via RAGBOX_HISTORY_DB=disabled")
		return nil, func() {}
	}

	if dbPath == "" {
		var err error
		dbPath, err = history.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}

	hs, err := history.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildRegistry registers the agent's tools: document search always, and
// conversation recall when a history store is available.
func buildRegistry(svc *search.Service, hs history.TurnStore) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewSearchTool(svc)); err != nil {
		return nil, fmt.Errorf("failed to register search tool: %w", err)
	}
	if hs != nil {
		if err := registry.Register(tools.NewRecallTool(hs)); err != nil {
			return nil, fmt.Errorf("failed to register recall tool: %w", err)
		}
	}
	return registry, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
