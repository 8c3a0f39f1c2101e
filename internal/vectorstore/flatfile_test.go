package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// unitVec returns a dims-length vector with a 1 at position hot. Distinct hot
// positions are orthogonal, so cosine scores in tests are exactly 0 or 1.
func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func newTestStore(t *testing.T) *FlatFileStore {
	t.Helper()
	s, err := NewFlatFileStore(filepath.Join(t.TempDir(), "vectors.json"), 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func mustInsert(t *testing.T, s VectorStore, doc, text string, vec []float32, meta map[string]string) DocumentChunk {
	t.Helper()
	chunk := DocumentChunk{DocumentName: doc, Text: text, Embedding: vec, Metadata: meta}
	if err := s.Insert(context.Background(), &chunk); err != nil {
		t.Fatalf("insert %q: %v", text, err)
	}
	return chunk
}

func Test_FlatFile_InsertAssignsIdentity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	chunk := mustInsert(t, s, "notes.md", "hello", unitVec(4, 0), nil)
	if chunk.ID == "" {
		t.Error("insert must assign an ID")
	}
	if chunk.CreatedAt.IsZero() {
		t.Error("insert must assign CreatedAt")
	}
	if chunk.Metadata == nil {
		t.Error("insert must normalise nil metadata to an empty map")
	}
}

func Test_FlatFile_RejectsWrongDimensions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	chunk := DocumentChunk{DocumentName: "notes.md", Text: "bad", Embedding: unitVec(3, 0)}
	err := s.Insert(context.Background(), &chunk)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_FlatFile_SearchRanksBySimilarity(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	mustInsert(t, s, "a.md", "off-topic", unitVec(4, 1), nil)
	mustInsert(t, s, "a.md", "on-topic", unitVec(4, 0), nil)
	mustInsert(t, s, "b.md", "also off-topic", unitVec(4, 2), nil)

	got, err := s.Search(context.Background(), unitVec(4, 0), 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].Chunk.Text != "on-topic" {
		t.Errorf("want best match first, got %q", got[0].Chunk.Text)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores must be descending: %v then %v", got[0].Score, got[1].Score)
	}
}

func Test_FlatFile_SearchTiesBreakTowardRecency(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// Identical embeddings score identically; the later insert must win.
	mustInsert(t, s, "a.md", "older", unitVec(4, 0), nil)
	mustInsert(t, s, "a.md", "newer", unitVec(4, 0), nil)

	got, err := s.Search(context.Background(), unitVec(4, 0), 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].Chunk.Text != "newer" || got[1].Chunk.Text != "older" {
		t.Errorf("equal scores must order newest first, got %q, %q",
			got[0].Chunk.Text, got[1].Chunk.Text)
	}
}

func Test_FlatFile_SearchIsDeterministic(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for i := 0; i < 4; i++ {
		mustInsert(t, s, "a.md", "same", unitVec(4, 0), nil)
	}

	first, err := s.Search(context.Background(), unitVec(4, 0), 4, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Search(context.Background(), unitVec(4, 0), 4, nil)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		for j := range first {
			if again[j].Chunk.ID != first[j].Chunk.ID {
				t.Fatalf("run %d position %d: ID %s != %s",
					i, j, again[j].Chunk.ID, first[j].Chunk.ID)
			}
		}
	}
}

func Test_FlatFile_SearchMetadataFilters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	mustInsert(t, s, "a.md", "research chunk", unitVec(4, 0),
		map[string]string{"agent": "research", "lang": "en"})
	mustInsert(t, s, "a.md", "coding chunk", unitVec(4, 0),
		map[string]string{"agent": "coding"})
	mustInsert(t, s, "a.md", "bare chunk", unitVec(4, 0), nil)

	got, err := s.Search(context.Background(), unitVec(4, 0), 10,
		map[string]string{"agent": "research"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.Text != "research chunk" {
		t.Fatalf("filter must match metadata supersets only, got %+v", got)
	}

	// A filter key absent from every chunk matches nothing.
	got, err = s.Search(context.Background(), unitVec(4, 0), 10,
		map[string]string{"team": "infra"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unmatched filter must return empty, got %d results", len(got))
	}
}

func Test_FlatFile_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vectors.json")

	s, err := NewFlatFileStore(path, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	inserted := mustInsert(t, s, "a.md", "survives restart", unitVec(4, 0),
		map[string]string{"agent": "research"})

	reopened, err := NewFlatFileStore(path, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Search(context.Background(), unitVec(4, 0), 1, nil)
	if err != nil {
		t.Fatalf("search after reopen: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != inserted.ID {
		t.Fatalf("want persisted chunk %s, got %+v", inserted.ID, got)
	}
	if got[0].Chunk.Metadata["agent"] != "research" {
		t.Errorf("metadata must survive the round trip, got %v", got[0].Chunk.Metadata)
	}
}

func Test_FlatFile_DeleteDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	mustInsert(t, s, "keep.md", "kept", unitVec(4, 0), nil)
	mustInsert(t, s, "drop.md", "dropped 1", unitVec(4, 1), nil)
	mustInsert(t, s, "drop.md", "dropped 2", unitVec(4, 2), nil)

	deleted, err := s.DeleteDocument(context.Background(), "drop.md")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Error("want deleted=true for an existing document")
	}

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalChunks != 1 || st.TotalDocuments != 1 {
		t.Errorf("want 1 chunk / 1 document after delete, got %+v", st)
	}

	// Idempotent: a second delete of the same name reports false, nil.
	deleted, err = s.DeleteDocument(context.Background(), "drop.md")
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if deleted {
		t.Error("want deleted=false for an absent document")
	}
}

func Test_FlatFile_ListDocuments(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	mustInsert(t, s, "first.md", "one", unitVec(4, 0), nil)
	mustInsert(t, s, "second.md", "two", unitVec(4, 1), nil)
	mustInsert(t, s, "first.md", "three", unitVec(4, 2), nil)

	docs, err := s.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d", len(docs))
	}
	// first.md received the newest chunk, so it sorts first.
	if docs[0].Name != "first.md" || docs[0].ChunkCount != 2 {
		t.Errorf("want first.md with 2 chunks first, got %+v", docs[0])
	}
	if docs[1].Name != "second.md" || docs[1].ChunkCount != 1 {
		t.Errorf("want second.md with 1 chunk, got %+v", docs[1])
	}
}

func Test_FlatFile_EmptyStoreSearch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.Search(context.Background(), unitVec(4, 0), 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty store must return no results, got %d", len(got))
	}
}

func Test_CosineSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cosineSimilarity(tc.a, tc.b); got != tc.want {
				t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
