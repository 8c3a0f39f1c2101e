// Package search composes an embedder and a vector store into the document
// retrieval service used by the agent tools and the HTTP API: chunked
// ingestion, similarity search with optional lexical reranking, and the
// corpus management operations (list, delete, stats).
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m0rfeo/ragbox/internal/embedder"
	"github.com/m0rfeo/ragbox/internal/logging"
	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// Result is one search hit as exposed to callers.
type Result struct {
	// Text is the chunk content.
	Text string `json:"text"`

	// Document is the owning document name.
	Document string `json:"document"`

	// Score is the cosine similarity to the query, higher = more similar.
	Score float64 `json:"score"`

	// Metadata carries the chunk's stored key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service is the similarity search engine. All methods are safe for
// concurrent use; the underlying store and embedder carry their own
// synchronisation.
type Service struct {
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	reranker Reranker
}

// NewService builds a Service. A nil reranker disables the rerank pass even
// when callers request it.
func NewService(emb embedder.Embedder, store vectorstore.VectorStore, reranker Reranker) *Service {
	return &Service{embedder: emb, store: store, reranker: reranker}
}

// Backend reports the active vector store backend name.
func (s *Service) Backend() string { return s.store.Backend() }

// StoreDocument embeds and inserts the given chunks under name, augmenting
// each chunk's metadata with the shared upload timestamp and its index.
//
// Chunks are processed sequentially and ingestion stops at the first
// embedding or insert failure. The returned count is the number of chunks
// durably stored; a partial batch reports its count with a nil error so
// callers can resume, and the error is non-nil only when nothing at all was
// stored for a non-empty batch.
func (s *Service) StoreDocument(ctx context.Context, chunks []string, name string, meta map[string]string) (int, error) {
	log := logging.FromContext(ctx)
	if len(chunks) == 0 {
		return 0, nil
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	// Duplicate chunk texts within one batch reuse the first embedding.
	memo := make(map[string][]float32)

	stored := 0
	for i, text := range chunks {
		vec, ok := memo[text]
		if !ok {
			var err error
			vec, err = s.embedder.Embed(ctx, text)
			if err != nil {
				return s.partial(log, name, stored, len(chunks), fmt.Errorf("search: embed chunk %d: %w", i, err))
			}
			memo[text] = vec
		}

		chunkMeta := make(map[string]string, len(meta)+2)
		for k, v := range meta {
			chunkMeta[k] = v
		}
		chunkMeta["uploaded_at"] = uploadedAt
		chunkMeta["chunk_index"] = strconv.Itoa(i)

		chunk := vectorstore.DocumentChunk{
			DocumentName: name,
			Text:         text,
			Embedding:    vec,
			Metadata:     chunkMeta,
		}
		if err := s.store.Insert(ctx, &chunk); err != nil {
			return s.partial(log, name, stored, len(chunks), fmt.Errorf("search: insert chunk %d: %w", i, err))
		}
		stored++
	}

	log.Info("search: document stored",
		slog.String("document", name),
		slog.Int("chunks", stored))
	return stored, nil
}

// partial reports the outcome of an interrupted batch: a non-empty partial
// success surfaces as a count with a warning log, an all-failed batch as an
// error.
func (s *Service) partial(log *slog.Logger, name string, stored, total int, err error) (int, error) {
	if stored > 0 {
		log.Warn("search: partial document ingestion",
			slog.String("document", name),
			slog.Int("stored", stored),
			slog.Int("total", total),
			slog.Any("error", err))
		return stored, nil
	}
	return 0, err
}

// SearchSimilar embeds the query and returns up to limit chunks ranked by
// cosine similarity, optionally passed through the lexical reranker.
// Filters restrict candidates to chunks whose metadata contains every
// filter pair.
func (s *Service) SearchSimilar(ctx context.Context, query string, limit int, filters map[string]string, rerank bool) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	scored, err := s.store.Search(ctx, vec, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("search: query store: %w", err)
	}

	if rerank && s.reranker != nil {
		scored = s.reranker.Rerank(query, scored)
	}

	out := make([]Result, len(scored))
	for i, sc := range scored {
		out[i] = Result{
			Text:     sc.Chunk.Text,
			Document: sc.Chunk.DocumentName,
			Score:    sc.Score,
			Metadata: sc.Chunk.Metadata,
		}
	}
	return out, nil
}

// ListDocuments returns a summary of every stored document, most recently
// updated first.
func (s *Service) ListDocuments(ctx context.Context) ([]vectorstore.DocumentInfo, error) {
	return s.store.ListDocuments(ctx)
}

// DeleteDocument removes a document and all its chunks. Returns false when
// the document was not present.
func (s *Service) DeleteDocument(ctx context.Context, name string) (bool, error) {
	deleted, err := s.store.DeleteDocument(ctx, name)
	if err != nil {
		return false, fmt.Errorf("search: delete document: %w", err)
	}
	if deleted {
		logging.FromContext(ctx).Info("search: document deleted", slog.String("document", name))
	}
	return deleted, nil
}

// Stats returns store-wide totals.
func (s *Service) Stats(ctx context.Context) (vectorstore.Stats, error) {
	return s.store.Stats(ctx)
}
