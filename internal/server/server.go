// Package server exposes the agent loop and the document corpus over a JSON
// REST API. The server is started by the `ragbox serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m0rfeo/ragbox/internal/agent"
	"github.com/m0rfeo/ragbox/internal/logging"
)

// New constructs a Server from the provided services and config.
func New(chat ChatService, documents DocumentService, cfg *Config, log *slog.Logger) (*Server, error) {
	if chat == nil {
		return nil, fmt.Errorf("server: chat service must not be nil")
	}
	if documents == nil {
		return nil, fmt.Errorf("server: document service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = defaultRateLimit
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = defaultRateBurst
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full agent turn including tool calls.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	metricsHandler := promhttp.Handler()
	if cfg.Registry != nil {
		registerer = cfg.Registry
		metricsHandler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}

	s := &Server{
		chat:      chat,
		documents: documents,
		cfg:       cfg,
		metrics:   newServerMetrics(registerer),
	}

	if cfg.APIKey == "" {
		log.Warn("server: RAGBOX_API_KEY not set, API authentication disabled")
	}
	limiter, stop := newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	s.stopLimiter = stop

	api := func(name string, h http.HandlerFunc) http.Handler {
		return s.requestLogger(log, name,
			limiter.middleware(authMiddleware(cfg.APIKey, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", api("chat", s.handleChat))
	mux.Handle("GET /api/documents", api("documents_list", s.handleListDocuments))
	mux.Handle("POST /api/documents", api("documents_store", s.handleStoreDocument))
	mux.Handle("DELETE /api/documents/{name}", api("documents_delete", s.handleDeleteDocument))
	mux.Handle("GET /api/stats", api("stats", s.handleStats))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's HTTP handler, for tests driving it with
// httptest.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopLimiter()
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("ragbox server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. A generation outage degrades to a
// marked answer rather than a bare 5xx so clients can distinguish "the
// backend is down" from "your request was bad".
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	start := time.Now()
	answer, err := s.chat.HandleMessage(r.Context(), req.SessionID, req.Message)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, agent.ErrGenerationUnavailable):
		s.metrics.chatTurnsTotal.WithLabelValues("degraded").Inc()
		s.metrics.chatDurationSeconds.WithLabelValues("degraded").Observe(elapsed.Seconds())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, r, chatResponse{
			Answer:   "The language model is temporarily unavailable. Your message was kept; please retry.",
			Degraded: true,
		})
	case err != nil:
		s.metrics.chatTurnsTotal.WithLabelValues("error").Inc()
		s.metrics.chatDurationSeconds.WithLabelValues("error").Observe(elapsed.Seconds())
		logging.FromContext(r.Context()).Error("chat turn failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		s.metrics.chatTurnsTotal.WithLabelValues("ok").Inc()
		s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(elapsed.Seconds())
		writeJSON(w, r, chatResponse{Answer: answer})
	}
}

// handleStoreDocument handles POST /api/documents.
func (s *Server) handleStoreDocument(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if len(req.Chunks) == 0 {
		http.Error(w, "chunks must not be empty", http.StatusBadRequest)
		return
	}

	stored, err := s.documents.StoreDocument(r.Context(), req.Chunks, req.Name, req.Metadata)
	if err != nil {
		logging.FromContext(r.Context()).Error("document store failed", slog.Any("error", err))
		http.Error(w, "failed to store document", http.StatusBadGateway)
		return
	}

	s.metrics.documentsStoredTotal.Add(float64(stored))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, r, storeResponse{Stored: stored})
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.ListDocuments(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("document list failed", slog.Any("error", err))
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, docs)
}

// handleDeleteDocument handles DELETE /api/documents/{name}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "document name is required", http.StatusBadRequest)
		return
	}

	deleted, err := s.documents.DeleteDocument(r.Context(), name)
	if err != nil {
		logging.FromContext(r.Context()).Error("document delete failed", slog.Any("error", err))
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	if !deleted {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
	}
	writeJSON(w, r, deleteResponse{Deleted: deleted})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.documents.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("stats failed", slog.Any("error", err))
		http.Error(w, "failed to read stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, map[string]any{
		"backend":         s.documents.Backend(),
		"total_chunks":    stats.TotalChunks,
		"total_documents": stats.TotalDocuments,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode failed", slog.Any("error", err))
	}
}
