package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlatFileStore is the development-scale VectorStore: a single JSON array of
// chunk records on disk, fully loaded into memory. Searches are linear scans
// against the in-memory snapshot; every mutation rewrites the whole file
// atomically (temp file + rename). A RWMutex serialises writers while letting
// readers proceed against the last-written snapshot.
type FlatFileStore struct {
	// path is the JSON file location.
	path string

	// dims is the enforced embedding length (0 = unchecked).
	dims int

	// mu guards records and the file. Writers hold it exclusively for the
	// whole read-modify-write cycle.
	mu sync.RWMutex

	// records is the in-memory snapshot, in insertion order.
	records []DocumentChunk
}

// NewFlatFileStore opens (or creates) the flat-file store at path.
// A missing file yields an empty store; the parent directory is created.
func NewFlatFileStore(path string, dims int) (*FlatFileStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("flatfile: create %s: %w", dir, err)
		}
	}

	s := &FlatFileStore{path: path, dims: dims}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flatfile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("flatfile: parse %s: %w", path, err)
	}
	return s, nil
}

// Backend returns "flatfile".
func (s *FlatFileStore) Backend() string { return "flatfile" }

// Insert appends one chunk and rewrites the file. The chunk's ID and
// CreatedAt are assigned here; the caller's struct is updated in place.
func (s *FlatFileStore) Insert(ctx context.Context, chunk *DocumentChunk) error {
	if err := validateDimensions(chunk.Embedding, s.dims); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flatfile: insert: %w", err)
	}

	chunk.ID = uuid.NewString()
	chunk.CreatedAt = time.Now().UTC()
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *chunk)
	if err := s.save(); err != nil {
		// Roll the snapshot back so memory and disk stay consistent.
		s.records = s.records[:len(s.records)-1]
		return err
	}
	return nil
}

// Search linearly scores every (filter-matching) record against the query
// embedding and returns the top limit results. Ordering is deterministic:
// score descending, then most recent insertion first.
func (s *FlatFileStore) Search(ctx context.Context, embedding []float32, limit int, filters map[string]string) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("flatfile: search: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type indexed struct {
		Scored
		pos int
	}

	scored := make([]indexed, 0, len(s.records))
	for i, rec := range s.records {
		if len(filters) > 0 && !matchesFilters(rec.Metadata, filters) {
			continue
		}
		scored = append(scored, indexed{
			Scored: Scored{Chunk: rec, Score: cosineSimilarity(embedding, rec.Embedding)},
			pos:    i,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].pos > scored[j].pos // recency wins ties
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]Scored, len(scored))
	for i, sc := range scored {
		out[i] = sc.Scored
	}
	return out, nil
}

// ListDocuments aggregates per-document chunk counts and newest timestamps,
// most recently updated first.
func (s *FlatFileStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("flatfile: list: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]*DocumentInfo)
	order := make([]string, 0)
	for _, rec := range s.records {
		info, ok := byName[rec.DocumentName]
		if !ok {
			info = &DocumentInfo{Name: rec.DocumentName}
			byName[rec.DocumentName] = info
			order = append(order, rec.DocumentName)
		}
		info.ChunkCount++
		if rec.CreatedAt.After(info.LastUpdated) {
			info.LastUpdated = rec.CreatedAt
		}
	}

	out := make([]DocumentInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sortDocumentInfos(out)
	return out, nil
}

// DeleteDocument removes every chunk with the given document name and
// rewrites the file. Returns false when nothing matched.
func (s *FlatFileStore) DeleteDocument(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("flatfile: delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0:0]
	for _, rec := range s.records {
		if rec.DocumentName != name {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(s.records) {
		return false, nil
	}

	prev := s.records
	s.records = kept
	if err := s.save(); err != nil {
		s.records = prev
		return false, err
	}
	return true, nil
}

// Stats returns store-wide totals.
func (s *FlatFileStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("flatfile: stats: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]struct{})
	for _, rec := range s.records {
		names[rec.DocumentName] = struct{}{}
	}
	return Stats{TotalChunks: len(s.records), TotalDocuments: len(names)}, nil
}

// Close is a no-op for the flat-file backend.
func (s *FlatFileStore) Close() error { return nil }

// save rewrites the whole file atomically. Callers must hold mu exclusively.
func (s *FlatFileStore) save() error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("flatfile: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("flatfile: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("flatfile: rename %s: %w", tmp, err)
	}
	return nil
}
