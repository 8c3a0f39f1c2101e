package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// ChatService is the slice of the agent loop the server needs. Abstracting
// it lets handler tests inject a scripted fake without a live model.
type ChatService interface {
	// HandleMessage runs one turn and returns the final answer.
	HandleMessage(ctx context.Context, sessionID, text string) (string, error)
}

// DocumentService is the slice of the search engine the document endpoints
// need.
type DocumentService interface {
	StoreDocument(ctx context.Context, chunks []string, name string, meta map[string]string) (int, error)
	ListDocuments(ctx context.Context) ([]vectorstore.DocumentInfo, error)
	DeleteDocument(ctx context.Context, name string) (bool, error)
	Stats(ctx context.Context) (vectorstore.Stats, error)
	Backend() string
}

// Config holds HTTP server settings.
type Config struct {
	// Host is the bind address. Defaults to 127.0.0.1.
	Host string

	// Port is the TCP port. Defaults to 8080.
	Port int

	// APIKey enables Bearer auth on /api routes when non-empty.
	APIKey string

	// RateLimitRPS is the sustained per-IP request rate. Defaults to 10.
	RateLimitRPS float64

	// RateLimitBurst is the per-IP burst size. Defaults to 20.
	RateLimitBurst int

	// ReadTimeout bounds request reading. Defaults to 30s.
	ReadTimeout time.Duration

	// WriteTimeout bounds response writing. Long enough for a full agent
	// turn. Defaults to 5 minutes.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration

	// Registry receives the server's Prometheus metrics. Defaults to the
	// global default registry; tests inject a fresh one.
	Registry *prometheus.Registry
}

// Server exposes the chat loop and the document corpus over HTTP.
type Server struct {
	chat        ChatService
	documents   DocumentService
	cfg         *Config
	metrics     *serverMetrics
	httpServer  *http.Server
	stopLimiter func()
}

// chatRequest is the POST /api/chat request body.
type chatRequest struct {
	// SessionID scopes conversation history; defaults to "default".
	SessionID string `json:"session_id"`

	// Message is the user's message text.
	Message string `json:"message"`
}

// chatResponse is the POST /api/chat response body.
type chatResponse struct {
	// Answer is the agent's reply.
	Answer string `json:"answer"`

	// Degraded marks answers produced while the model backend was down.
	Degraded bool `json:"degraded,omitempty"`
}

// storeRequest is the POST /api/documents request body.
type storeRequest struct {
	// Name is the document name the chunks are stored under.
	Name string `json:"name"`

	// Chunks are the pre-chunked text segments to embed and store.
	Chunks []string `json:"chunks"`

	// Metadata is attached to every chunk.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// storeResponse is the POST /api/documents response body.
type storeResponse struct {
	// Stored is the number of chunks durably written.
	Stored int `json:"stored"`
}

// deleteResponse is the DELETE /api/documents/{name} response body.
type deleteResponse struct {
	// Deleted reports whether the document existed.
	Deleted bool `json:"deleted"`
}
