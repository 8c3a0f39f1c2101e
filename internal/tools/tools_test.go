package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/m0rfeo/ragbox/internal/history"
	"github.com/m0rfeo/ragbox/internal/search"
)

// stubTool is a minimal Tool for registry tests.
type stubTool struct {
	name string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: s.name, Desc: "stub"}, nil
}
func (s *stubTool) InvokableRun(ctx context.Context, in string, opts ...tool.Option) (string, error) {
	return "ok", nil
}

func Test_Registry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register(&stubTool{name: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Get("a"); err != nil {
		t.Errorf("registered tool must be retrievable: %v", err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("want ErrUnknownTool for unregistered name, got %v", err)
	}
}

func Test_Registry_DuplicateNameRejected(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register(&stubTool{name: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(&stubTool{name: "dup"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("want ErrDuplicateName, got %v", err)
	}
}

func Test_Registry_ListStableOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	want := []string{"alpha", "mid", "zeta"}
	for i := 0; i < 3; i++ {
		list := r.List()
		for j, w := range want {
			if list[j].Name() != w {
				t.Fatalf("run %d: want %v, got %s at %d", i, want, list[j].Name(), j)
			}
		}
	}

	infos, err := r.Infos(context.Background())
	if err != nil {
		t.Fatalf("infos: %v", err)
	}
	for j, w := range want {
		if infos[j].Name != w {
			t.Errorf("infos order: want %s at %d, got %s", w, j, infos[j].Name)
		}
	}
}

// fakeSearcher returns canned results or a canned error.
type fakeSearcher struct {
	results []search.Result
	err     error

	gotQuery string
	gotLimit int
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, query string, limit int, filters map[string]string, rerank bool) ([]search.Result, error) {
	f.gotQuery, f.gotLimit = query, limit
	return f.results, f.err
}

func Test_SearchTool_ReturnsHitsAsJSON(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []search.Result{
		{Text: "pooling guide", Document: "pg.md", Score: 0.91},
	}}
	st := NewSearchTool(searcher)

	out, err := st.InvokableRun(context.Background(), `{"query":"connection pooling","limit":3}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if searcher.gotQuery != "connection pooling" || searcher.gotLimit != 3 {
		t.Errorf("arguments not forwarded: query=%q limit=%d", searcher.gotQuery, searcher.gotLimit)
	}

	var hits []searchHit
	if err := json.Unmarshal([]byte(out), &hits); err != nil {
		t.Fatalf("output must be a JSON array: %v", err)
	}
	if len(hits) != 1 || hits[0].Document != "pg.md" {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func Test_SearchTool_DefaultLimit(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{}
	st := NewSearchTool(searcher)

	if _, err := st.InvokableRun(context.Background(), `{"query":"q"}`); err != nil {
		t.Fatalf("run: %v", err)
	}
	if searcher.gotLimit != 5 {
		t.Errorf("want default limit 5, got %d", searcher.gotLimit)
	}
}

func Test_SearchTool_MissingQueryIsToolError(t *testing.T) {
	t.Parallel()
	st := NewSearchTool(&fakeSearcher{})

	out, err := st.InvokableRun(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("tool errors must not surface as Go errors: %v", err)
	}
	var te ToolError
	if err := json.Unmarshal([]byte(out), &te); err != nil {
		t.Fatalf("want ToolError payload, got %q", out)
	}
	if te.Kind != "invalid_arguments" {
		t.Errorf("want kind invalid_arguments, got %q", te.Kind)
	}
}

func Test_SearchTool_StoreFailureIsToolError(t *testing.T) {
	t.Parallel()
	st := NewSearchTool(&fakeSearcher{err: errors.New("store exploded")})

	out, err := st.InvokableRun(context.Background(), `{"query":"q"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var te ToolError
	if err := json.Unmarshal([]byte(out), &te); err != nil {
		t.Fatalf("want ToolError payload, got %q", out)
	}
	if te.Kind != "search_failed" {
		t.Errorf("want kind search_failed, got %q", te.Kind)
	}
}

func Test_RecallTool_SearchesHistory(t *testing.T) {
	t.Parallel()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.Append(ctx, "s1", history.RoleUser, "we talked about pgvector indexes"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "s1", history.RoleAssistant, "unrelated reply"); err != nil {
		t.Fatalf("append: %v", err)
	}

	rt := NewRecallTool(store)
	out, err := rt.InvokableRun(ctx, `{"query":"pgvector"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var turns []recalledTurn
	if err := json.Unmarshal([]byte(out), &turns); err != nil {
		t.Fatalf("output must be a JSON array: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != "user" {
		t.Errorf("want the single matching user turn, got %+v", turns)
	}
}
