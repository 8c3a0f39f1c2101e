// Package vectorstore persists document chunks and their embeddings behind a
// single VectorStore interface with interchangeable backends:
//
//   - postgres: pgvector-backed relational store with an HNSW ANN index,
//     selected automatically when DATABASE_URL is reachable at startup.
//   - flatfile: a single JSON file with a full linear scan, the automatic
//     fallback for development-scale deployments.
//   - qdrant: an ANN store selected only by explicit configuration.
//
// Backend selection happens exactly once in Open; the decision is logged and
// never re-evaluated for the lifetime of the handle, so writes and reads can
// never land on different backends within a process.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/m0rfeo/ragbox/internal/logging"
)

// Sentinel errors for backend construction and write validation.
var (
	// ErrBackendUnreachable reports that the indexed backend could not be
	// reached at construction time. It triggers flat-file fallback and is
	// never raised mid-session.
	ErrBackendUnreachable = errors.New("vectorstore: backend unreachable")

	// ErrDimensionMismatch rejects a write whose embedding length differs
	// from the configured dimensionality.
	ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")
)

// DocumentChunk is one stored unit: a bounded segment of document text paired
// with exactly one embedding. Chunks are immutable after insertion and are
// destroyed only by deleting their owning document.
type DocumentChunk struct {
	// ID is the opaque unique identifier assigned at write time.
	ID string `json:"id"`

	// DocumentName groups chunks belonging to the same document. Not unique.
	DocumentName string `json:"document_name"`

	// Text is the chunk's raw content.
	Text string `json:"chunk_text"`

	// Embedding is the fixed-length vector for Text. Its length always
	// equals the store's configured dimensionality.
	Embedding []float32 `json:"embedding"`

	// Metadata holds string key/value pairs used for filtering and
	// provenance (agent name, upload timestamp, chunk index).
	Metadata map[string]string `json:"metadata"`

	// CreatedAt is the insertion time, used for recency tie-breaking.
	CreatedAt time.Time `json:"created_at"`
}

// Scored pairs a chunk with its similarity score for a particular query.
type Scored struct {
	// Chunk is the stored chunk.
	Chunk DocumentChunk

	// Score is the cosine similarity to the query vector, in [-1, 1],
	// higher = more similar.
	Score float64
}

// DocumentInfo summarises one stored document.
type DocumentInfo struct {
	// Name is the document name shared by its chunks.
	Name string `json:"name"`

	// ChunkCount is the number of chunks stored for this document.
	ChunkCount int `json:"chunk_count"`

	// LastUpdated is the newest chunk insertion time for this document.
	LastUpdated time.Time `json:"last_updated"`
}

// Stats holds store-wide totals.
type Stats struct {
	// TotalChunks is the number of stored chunks across all documents.
	TotalChunks int `json:"total_chunks"`

	// TotalDocuments is the number of distinct document names.
	TotalDocuments int `json:"total_documents"`
}

// VectorStore is the storage contract shared by all backends.
// Implementations must be safe to call from multiple goroutines; inserted
// chunks are immediately visible to searches through the same handle.
type VectorStore interface {
	// Backend returns the backend name ("postgres", "flatfile", "qdrant").
	Backend() string

	// Insert persists one chunk, assigning its ID and CreatedAt.
	// An embedding of the wrong length is rejected with ErrDimensionMismatch.
	Insert(ctx context.Context, chunk *DocumentChunk) error

	// Search returns up to limit chunks ranked by cosine similarity to the
	// query embedding, highest first; equal scores break toward the most
	// recent insertion. When filters is non-empty only chunks whose metadata
	// contains every filter key with the exact filter value participate.
	Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]Scored, error)

	// ListDocuments returns a summary per document, most recently updated first.
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)

	// DeleteDocument removes every chunk with the given document name.
	// It is idempotent: deleting an absent document returns (false, nil).
	DeleteDocument(ctx context.Context, name string) (bool, error)

	// Stats returns store-wide totals.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}

// Config holds the settings evaluated once by Open.
type Config struct {
	// Backend forces a backend: "postgres", "qdrant", or "flatfile".
	// Empty selects automatically (postgres if reachable, else flatfile).
	Backend string

	// DatabaseURL is the Postgres connection string for the indexed backend.
	DatabaseURL string

	// JSONPath is the flat-file location. Defaults to
	// "data/memory/vector_store.json".
	JSONPath string

	// Dimensions is the embedding length enforced at write time.
	Dimensions int

	// DialTimeout bounds the startup reachability probe. Defaults to 5s.
	DialTimeout time.Duration

	// Qdrant holds connection settings for the opt-in qdrant backend.
	Qdrant QdrantConfig
}

// Open constructs the single active backend for this process.
//
// Selection policy: an explicit Config.Backend always wins and its failure is
// fatal (the operator asked for it by name). Otherwise postgres is probed
// when DATABASE_URL is set and the store falls back to the flat file when the
// probe fails — logged, never a crash. The decision is made exactly once.
func Open(ctx context.Context, cfg Config) (VectorStore, error) {
	log := logging.FromContext(ctx)
	if cfg.JSONPath == "" {
		cfg.JSONPath = "data/memory/vector_store.json"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	switch cfg.Backend {
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Dimensions, cfg.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: explicit postgres backend: %w", err)
		}
		log.Info("vectorstore: using postgres backend (explicit)")
		return s, nil

	case "qdrant":
		s, err := NewQdrantStore(ctx, &cfg.Qdrant, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: explicit qdrant backend: %w", err)
		}
		log.Info("vectorstore: using qdrant backend (explicit)",
			slog.String("collection", cfg.Qdrant.Collection))
		return s, nil

	case "flatfile":
		s, err := NewFlatFileStore(cfg.JSONPath, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: explicit flatfile backend: %w", err)
		}
		log.Info("vectorstore: using flat-file backend (explicit)",
			slog.String("path", cfg.JSONPath))
		return s, nil

	case "":
		// Automatic selection below.
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q — valid values: postgres, qdrant, flatfile", cfg.Backend)
	}

	if cfg.DatabaseURL != "" {
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Dimensions, cfg.DialTimeout)
		if err == nil {
			log.Info("vectorstore: using postgres backend")
			return s, nil
		}
		log.Warn("vectorstore: postgres unreachable, falling back to flat file",
			slog.Any("error", err),
			slog.String("path", cfg.JSONPath))
	}

	s, err := NewFlatFileStore(cfg.JSONPath, cfg.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: flat-file fallback: %w", err)
	}
	log.Info("vectorstore: using flat-file backend", slog.String("path", cfg.JSONPath))
	return s, nil
}

// validateDimensions rejects embeddings whose length differs from dims.
// A dims of 0 disables the check (used only by tests constructing raw stores).
func validateDimensions(embedding []float32, dims int) error {
	if dims > 0 && len(embedding) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), dims)
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b:
// dot product over the product of norms, in [-1, 1]. A zero-norm vector
// yields 0 so degenerate embeddings rank last rather than poisoning the sort.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// sortDocumentInfos orders summaries most recently updated first.
func sortDocumentInfos(infos []DocumentInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
}

// matchesFilters reports whether metadata contains every filter key with an
// exactly equal value (superset match).
func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
