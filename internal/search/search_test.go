package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// fakeEmbedder maps known texts to fixed 4-dim vectors and counts calls.
// Texts listed in failOn return an error instead.
type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  map[string]bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn[text] {
		return nil, errors.New("provider down")
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func newTestService(t *testing.T, emb *fakeEmbedder) *Service {
	t.Helper()
	store, err := vectorstore.NewFlatFileStore(filepath.Join(t.TempDir(), "v.json"), 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewService(emb, store, LexicalReranker{})
}

func Test_StoreDocument_AllChunksStored(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	svc := newTestService(t, emb)

	n, err := svc.StoreDocument(context.Background(),
		[]string{"alpha", "beta", "gamma"}, "notes.md", map[string]string{"agent": "research"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 chunks stored, got %d", n)
	}

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalChunks != 3 || st.TotalDocuments != 1 {
		t.Errorf("want 3 chunks / 1 document, got %+v", st)
	}
}

func Test_StoreDocument_MemoizesDuplicateChunks(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	svc := newTestService(t, emb)

	n, err := svc.StoreDocument(context.Background(),
		[]string{"same text", "same text", "other"}, "dup.md", nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 chunks stored, got %d", n)
	}
	if emb.calls != 2 {
		t.Errorf("duplicate text must reuse the first embedding: want 2 embed calls, got %d", emb.calls)
	}
}

func Test_StoreDocument_PartialFailureReturnsCount(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{failOn: map[string]bool{"poison": true}}
	svc := newTestService(t, emb)

	n, err := svc.StoreDocument(context.Background(),
		[]string{"good one", "good two", "poison", "never reached"}, "notes.md", nil)
	if err != nil {
		t.Fatalf("partial success must not error: %v", err)
	}
	if n != 2 {
		t.Errorf("want 2 chunks stored before the failure, got %d", n)
	}

	st, _ := svc.Stats(context.Background())
	if st.TotalChunks != 2 {
		t.Errorf("store must hold exactly the successful prefix, got %d chunks", st.TotalChunks)
	}
}

func Test_StoreDocument_TotalFailureReturnsError(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{failOn: map[string]bool{"poison": true}}
	svc := newTestService(t, emb)

	n, err := svc.StoreDocument(context.Background(), []string{"poison"}, "notes.md", nil)
	if err == nil {
		t.Fatal("want error when nothing was stored")
	}
	if n != 0 {
		t.Errorf("want count 0, got %d", n)
	}
}

func Test_StoreDocument_EmptyBatch(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, &fakeEmbedder{})

	n, err := svc.StoreDocument(context.Background(), nil, "empty.md", nil)
	if err != nil || n != 0 {
		t.Errorf("empty batch must be (0, nil), got (%d, %v)", n, err)
	}
}

func Test_SearchSimilar_RanksAndAnnotates(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"on topic":  {1, 0, 0, 0},
		"off topic": {0, 1, 0, 0},
		"the query": {1, 0, 0, 0},
	}}
	svc := newTestService(t, emb)

	if _, err := svc.StoreDocument(context.Background(),
		[]string{"on topic", "off topic"}, "notes.md", map[string]string{"agent": "research"}); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := svc.SearchSimilar(context.Background(), "the query", 5, nil, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].Text != "on topic" || got[0].Document != "notes.md" {
		t.Errorf("want best hit first with document name, got %+v", got[0])
	}
	if got[0].Metadata["agent"] != "research" {
		t.Errorf("metadata must ride along, got %v", got[0].Metadata)
	}
	if got[0].Metadata["uploaded_at"] == "" {
		t.Error("ingestion must stamp uploaded_at metadata")
	}
}

func Test_SearchSimilar_EmbedFailureSurfaces(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{failOn: map[string]bool{"broken query": true}}
	svc := newTestService(t, emb)

	_, err := svc.SearchSimilar(context.Background(), "broken query", 5, nil, false)
	if err == nil {
		t.Fatal("want error when the query cannot be embedded")
	}
}

func Test_DeleteDocument_Idempotent(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, &fakeEmbedder{})

	if _, err := svc.StoreDocument(context.Background(), []string{"x"}, "doc.md", nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	deleted, err := svc.DeleteDocument(context.Background(), "doc.md")
	if err != nil || !deleted {
		t.Fatalf("want (true, nil), got (%v, %v)", deleted, err)
	}
	deleted, err = svc.DeleteDocument(context.Background(), "doc.md")
	if err != nil || deleted {
		t.Fatalf("repeat delete must be (false, nil), got (%v, %v)", deleted, err)
	}
}
