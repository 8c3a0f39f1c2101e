package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. It is
// never chosen by the automatic selection policy — operators opt in with
// VECTOR_BACKEND=qdrant when they need ANN search without Postgres.
//
// Chunk text, document name, and metadata travel in the point payload;
// ListDocuments and Stats aggregate over a scroll of the collection, which
// is acceptable at the corpus sizes this backend is opted into.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// dims is the collection vector size.
	dims int
}

// payload keys reserved for chunk fields; everything else is metadata.
const (
	payloadDocumentName = "document_name"
	payloadChunkText    = "chunk_text"
	payloadCreatedAt    = "created_at"
)

// scrollPageSize bounds one aggregation scroll. Dev-scale corpora fit in a
// single page; larger corpora should use the postgres backend.
const scrollPageSize = 10000

// NewQdrantStore creates a QdrantStore, ensuring the target collection exists
// (creating it with cosine distance if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig, dims int) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "ragbox_documents"
	}
	if dims <= 0 {
		dims = 768
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	s := &QdrantStore{client: client, cfg: cfg, dims: dims}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Backend returns "qdrant".
func (s *QdrantStore) Backend() string { return "qdrant" }

// Insert upserts one chunk as a point with its payload.
func (s *QdrantStore) Insert(ctx context.Context, chunk *DocumentChunk) error {
	if err := validateDimensions(chunk.Embedding, s.dims); err != nil {
		return err
	}

	chunk.ID = uuid.NewString()
	chunk.CreatedAt = time.Now().UTC()
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]string{}
	}

	payload := map[string]any{
		payloadDocumentName: chunk.DocumentName,
		payloadChunkText:    chunk.Text,
		payloadCreatedAt:    chunk.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range chunk.Metadata {
		payload[k] = v
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Search performs a cosine similarity query, applying metadata filters as
// payload match conditions.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]Scored, error) {
	if limit <= 0 {
		limit = 5
	}
	lim := uint64(limit)

	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		query.Filter = filtersToQdrant(filters)
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	out := make([]Scored, 0, len(results))
	for _, r := range results {
		chunk := chunkFromPayload(r.Id.GetUuid(), r.Payload)
		out = append(out, Scored{Chunk: chunk, Score: float64(r.Score)})
	}
	return out, nil
}

// ListDocuments aggregates per-document counts from a payload scroll.
func (s *QdrantStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	points, err := s.scrollAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*DocumentInfo)
	order := make([]string, 0)
	for _, p := range points {
		chunk := chunkFromPayload(p.Id.GetUuid(), p.Payload)
		info, ok := byName[chunk.DocumentName]
		if !ok {
			info = &DocumentInfo{Name: chunk.DocumentName}
			byName[chunk.DocumentName] = info
			order = append(order, chunk.DocumentName)
		}
		info.ChunkCount++
		if chunk.CreatedAt.After(info.LastUpdated) {
			info.LastUpdated = chunk.CreatedAt
		}
	}

	out := make([]DocumentInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sortDocumentInfos(out)
	return out, nil
}

// DeleteDocument removes all points whose payload document_name matches.
func (s *QdrantStore) DeleteDocument(ctx context.Context, name string) (bool, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentName, name)},
	}

	// Count first so idempotent deletes can report false.
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: delete count: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: delete: %w", err)
	}
	return true, nil
}

// Stats returns store-wide totals via an exact count plus a payload scroll
// for the distinct document names.
func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, fmt.Errorf("qdrant: stats count: %w", err)
	}

	points, err := s.scrollAll(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	names := make(map[string]struct{})
	for _, p := range points {
		if v, ok := p.Payload[payloadDocumentName]; ok {
			names[v.GetStringValue()] = struct{}{}
		}
	}
	return Stats{TotalChunks: int(total), TotalDocuments: len(names)}, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// scrollAll fetches one page of points with payloads.
func (s *QdrantStore) scrollAll(ctx context.Context, filter *qdrant.Filter) ([]*qdrant.RetrievedPoint, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll: %w", err)
	}
	return points, nil
}

// filtersToQdrant converts metadata filters into payload match conditions.
func filtersToQdrant(filters map[string]string) *qdrant.Filter {
	conds := make([]*qdrant.Condition, 0, len(filters))
	for k, v := range filters {
		conds = append(conds, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conds}
}

// chunkFromPayload reconstructs a DocumentChunk from a point payload.
// The stored vector is not read back; search results carry scores, not
// query-side embeddings.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) DocumentChunk {
	chunk := DocumentChunk{ID: id, Metadata: make(map[string]string)}
	for k, v := range payload {
		switch k {
		case payloadDocumentName:
			chunk.DocumentName = v.GetStringValue()
		case payloadChunkText:
			chunk.Text = v.GetStringValue()
		case payloadCreatedAt:
			if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
				chunk.CreatedAt = t
			}
		default:
			chunk.Metadata[k] = v.GetStringValue()
		}
	}
	return chunk
}
