package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m0rfeo/ragbox/internal/agent"
	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// fakeChat returns a canned answer or error and records the last call.
type fakeChat struct {
	answer string
	err    error

	gotSession string
	gotText    string
}

func (f *fakeChat) HandleMessage(ctx context.Context, sessionID, text string) (string, error) {
	f.gotSession, f.gotText = sessionID, text
	return f.answer, f.err
}

// fakeDocs is an in-memory DocumentService.
type fakeDocs struct {
	stored  map[string]int
	listErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{stored: make(map[string]int)}
}

func (f *fakeDocs) StoreDocument(ctx context.Context, chunks []string, name string, meta map[string]string) (int, error) {
	f.stored[name] += len(chunks)
	return len(chunks), nil
}

func (f *fakeDocs) ListDocuments(ctx context.Context) ([]vectorstore.DocumentInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []vectorstore.DocumentInfo
	for name, n := range f.stored {
		out = append(out, vectorstore.DocumentInfo{Name: name, ChunkCount: n})
	}
	return out, nil
}

func (f *fakeDocs) DeleteDocument(ctx context.Context, name string) (bool, error) {
	if _, ok := f.stored[name]; !ok {
		return false, nil
	}
	delete(f.stored, name)
	return true, nil
}

func (f *fakeDocs) Stats(ctx context.Context) (vectorstore.Stats, error) {
	total := 0
	for _, n := range f.stored {
		total += n
	}
	return vectorstore.Stats{TotalChunks: total, TotalDocuments: len(f.stored)}, nil
}

func (f *fakeDocs) Backend() string { return "flatfile" }

func newTestServer(t *testing.T, chat ChatService, docs DocumentService, mutate ...func(*Config)) *Server {
	t.Helper()
	if chat == nil {
		chat = &fakeChat{answer: "ok"}
	}
	if docs == nil {
		docs = newFakeDocs()
	}
	cfg := &Config{Registry: prometheus.NewRegistry()}
	for _, m := range mutate {
		m(cfg)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(chat, docs, cfg, log)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopLimiter)
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:12345"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func Test_Chat_ReturnsAnswer(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{answer: "the answer"}
	s := newTestServer(t, chat, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat",
		`{"session_id": "s1", "message": "hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "the answer" || resp.Degraded {
		t.Errorf("unexpected response: %+v", resp)
	}
	if chat.gotSession != "s1" || chat.gotText != "hello" {
		t.Errorf("request not forwarded: session=%q text=%q", chat.gotSession, chat.gotText)
	}
}

func Test_Chat_DefaultSession(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{answer: "ok"}
	s := newTestServer(t, chat, nil)

	doJSON(t, s, http.MethodPost, "/api/chat", `{"message": "hi"}`)
	if chat.gotSession != "default" {
		t.Errorf("want default session, got %q", chat.gotSession)
	}
}

func Test_Chat_MissingMessageRejected(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"session_id": "s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("want 400, got %d", rec.Code)
	}
}

func Test_Chat_GenerationUnavailableIsDegraded(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{err: fmt.Errorf("%w: backend down", agent.ErrGenerationUnavailable)}
	s := newTestServer(t, chat, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Degraded || !strings.Contains(resp.Answer, "temporarily unavailable") {
		t.Errorf("degraded answer must be marked, got %+v", resp)
	}
}

func Test_Chat_OtherErrorsAre500(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{err: errors.New("boom")}
	s := newTestServer(t, chat, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("want 500, got %d", rec.Code)
	}
}

func Test_Documents_StoreListDelete(t *testing.T) {
	t.Parallel()
	docs := newFakeDocs()
	s := newTestServer(t, nil, docs)

	rec := doJSON(t, s, http.MethodPost, "/api/documents",
		`{"name": "notes.md", "chunks": ["a", "b", "c"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("store: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var stored storeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Stored != 3 {
		t.Errorf("want 3 stored, got %d", stored.Stored)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/documents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: want 200, got %d", rec.Code)
	}
	var list []vectorstore.DocumentInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "notes.md" {
		t.Errorf("unexpected list: %+v", list)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/documents/notes.md", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", rec.Code)
	}
	var del deleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &del); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if !del.Deleted {
		t.Error("want deleted=true")
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/documents/notes.md", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete: want 404, got %d", rec.Code)
	}
}

func Test_Documents_StoreValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, nil)

	for _, body := range []string{
		`{"chunks": ["a"]}`,     // name missing
		`{"name": "x"}`,         // chunks missing
		`{"name": "x", "chunks": []}`,
		`not json`,
	} {
		rec := doJSON(t, s, http.MethodPost, "/api/documents", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: want 400, got %d", body, rec.Code)
		}
	}
}

func Test_Stats_ReportsBackendAndTotals(t *testing.T) {
	t.Parallel()
	docs := newFakeDocs()
	s := newTestServer(t, nil, docs)

	doJSON(t, s, http.MethodPost, "/api/documents", `{"name": "a.md", "chunks": ["x", "y"]}`)

	rec := doJSON(t, s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["backend"] != "flatfile" {
		t.Errorf("want backend flatfile, got %v", stats["backend"])
	}
	if stats["total_chunks"].(float64) != 2 {
		t.Errorf("want 2 chunks, got %v", stats["total_chunks"])
	}
}

func Test_Health(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("want 200, got %d", rec.Code)
	}
}

func Test_Metrics_Exposed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil, nil)

	doJSON(t, s, http.MethodPost, "/api/chat", `{"message": "hi"}`)

	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ragbox_chat_turns_total") {
		t.Error("chat turn counter missing from /metrics")
	}
	if !strings.Contains(body, "ragbox_http_requests_total") {
		t.Error("http request counter missing from /metrics")
	}
}
