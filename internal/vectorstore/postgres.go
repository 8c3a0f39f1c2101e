package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore is the indexed VectorStore backend: chunks live in a
// document_embeddings table with a pgvector column and an HNSW cosine index,
// keeping searches sub-linear as the corpus grows. Concurrency control is
// delegated entirely to Postgres transaction semantics.
type PostgresStore struct {
	// pool is the shared connection pool with pgvector types registered.
	pool *pgxpool.Pool

	// dims is the vector column width, fixed at table creation.
	dims int
}

// NewPostgresStore connects to dsn, verifies reachability within dialTimeout,
// and ensures the schema and ANN index exist. An unreachable server returns
// an error wrapping ErrBackendUnreachable so Open can fall back.
func NewPostgresStore(ctx context.Context, dsn string, dims int, dialTimeout time.Duration) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: no connection string configured", ErrBackendUnreachable)
	}
	if dims <= 0 {
		dims = 768
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	s := &PostgresStore{pool: pool, dims: dims}
	if err := s.migrate(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the extension, table, and ANN index if absent.
func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS document_embeddings (
    id            UUID PRIMARY KEY,
    document_name TEXT NOT NULL,
    chunk_text    TEXT NOT NULL,
    embedding     VECTOR(%d) NOT NULL,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_document_embeddings_name
    ON document_embeddings (document_name);
CREATE INDEX IF NOT EXISTS idx_document_embeddings_embedding
    ON document_embeddings USING hnsw (embedding vector_cosine_ops);
`, s.dims)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Backend returns "postgres".
func (s *PostgresStore) Backend() string { return "postgres" }

// Insert persists one chunk. The ID and CreatedAt are assigned here so the
// caller observes the same values the database stores.
func (s *PostgresStore) Insert(ctx context.Context, chunk *DocumentChunk) error {
	if err := validateDimensions(chunk.Embedding, s.dims); err != nil {
		return err
	}

	chunk.ID = uuid.NewString()
	chunk.CreatedAt = time.Now().UTC()
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]string{}
	}

	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}

	const q = `
INSERT INTO document_embeddings (id, document_name, chunk_text, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, q,
		chunk.ID, chunk.DocumentName, chunk.Text,
		pgvector.NewVector(chunk.Embedding), meta, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

// Search ranks chunks by cosine distance using the HNSW index. The score is
// reported as similarity (1 - distance); ties break by most recent insertion.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]Scored, error) {
	if limit <= 0 {
		limit = 5
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT id, document_name, chunk_text, embedding, metadata, created_at,
       1 - (embedding <=> $1) AS score
FROM document_embeddings`)

	args := []any{pgvector.NewVector(embedding)}
	if len(filters) > 0 {
		conds := make([]string, 0, len(filters))
		for k, v := range filters {
			args = append(args, k, v)
			conds = append(conds, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
		}
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY embedding <=> $1, created_at DESC, id DESC LIMIT $%d", len(args)))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w", err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var (
			chunk DocumentChunk
			vec   pgvector.Vector
			meta  []byte
			score float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentName, &chunk.Text, &vec, &meta, &chunk.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("postgres: search scan: %w", err)
		}
		chunk.Embedding = vec.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: search metadata: %w", err)
			}
		}
		out = append(out, Scored{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search rows: %w", err)
	}
	return out, nil
}

// ListDocuments aggregates per-document counts, most recently updated first.
func (s *PostgresStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	const q = `
SELECT document_name, COUNT(*) AS chunk_count, MAX(created_at) AS last_updated
FROM document_embeddings
GROUP BY document_name
ORDER BY last_updated DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		if err := rows.Scan(&info.Name, &info.ChunkCount, &info.LastUpdated); err != nil {
			return nil, fmt.Errorf("postgres: list scan: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rows: %w", err)
	}
	return out, nil
}

// DeleteDocument removes all chunks for name; false when nothing matched.
func (s *PostgresStore) DeleteDocument(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM document_embeddings WHERE document_name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("postgres: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Stats returns store-wide totals.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	const q = `
SELECT COUNT(*), COUNT(DISTINCT document_name) FROM document_embeddings`

	var st Stats
	if err := s.pool.QueryRow(ctx, q).Scan(&st.TotalChunks, &st.TotalDocuments); err != nil {
		return Stats{}, fmt.Errorf("postgres: stats: %w", err)
	}
	return st, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
