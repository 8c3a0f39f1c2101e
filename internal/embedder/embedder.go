// Package embedder converts text into dense vector embeddings for the vector
// store and the similarity search engine. Each implementation talks to a
// different backend (Ollama, OpenAI, Azure OpenAI) via plain HTTP — no
// additional SDK dependencies are required.
//
// All embedders returned by the factory are wrapped with [WithPolicy], which
// enforces a per-call timeout, a single bounded retry with backoff, and strict
// output dimensionality. A vector of the wrong length never leaves this
// package.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is the sentinel for an embedding provider that is
// unreachable, timing out, or returning a malformed response (wrong
// dimensionality, non-numeric payload). Callers match it with errors.Is.
var ErrUnavailable = errors.New("embedder: provider unavailable")

// Embedder converts a single text into its embedding vector.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns the embedding for text. The returned vector always has
	// the dimensionality configured for the provider.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Policy bounds every embedding call made through a guarded embedder.
type Policy struct {
	// Dimensions is the required vector length. Responses of any other
	// length are rejected as malformed.
	Dimensions int

	// Timeout bounds a single attempt. Defaults to 30s.
	Timeout time.Duration

	// RetryBackoff is the pause before the single retry. Defaults to 500ms.
	RetryBackoff time.Duration
}

// guarded wraps an Embedder with the retry/timeout/dimension policy.
type guarded struct {
	inner  Embedder
	policy Policy
}

// WithPolicy wraps inner so that every Embed call is time-boxed, retried at
// most once after a backoff pause, and dimension-checked. All failures
// surface wrapping [ErrUnavailable]; the wrapper never retries indefinitely.
func WithPolicy(inner Embedder, policy Policy) Embedder {
	if policy.Timeout <= 0 {
		policy.Timeout = 30 * time.Second
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = 500 * time.Millisecond
	}
	return &guarded{inner: inner, policy: policy}
}

// Embed performs up to two attempts (one retry) against the inner embedder.
func (g *guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(g.policy.RetryBackoff):
			}
		}

		vec, err := g.attempt(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		// Dimension mismatches are deterministic — the provider is
		// misconfigured, retrying cannot help.
		if errors.Is(err, errBadDimensions) {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// errBadDimensions marks a structurally valid response with the wrong vector
// length, which is never retried.
var errBadDimensions = errors.New("wrong embedding dimensionality")

// attempt runs a single time-boxed call and validates the result shape.
func (g *guarded) attempt(ctx context.Context, text string) ([]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
	defer cancel()

	vec, err := g.inner.Embed(attemptCtx, text)
	if err != nil {
		return nil, err
	}
	if g.policy.Dimensions > 0 && len(vec) != g.policy.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", errBadDimensions, len(vec), g.policy.Dimensions)
	}
	return vec, nil
}
