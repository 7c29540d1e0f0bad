// Package embeddings generates sentence-embedding vectors for story text via
// a local model runtime, with a primary/fallback model strategy and a
// permanently-disabled degraded mode when no model can be loaded.
package embeddings

import (
	"context"
	"errors"
)

// Client defines the interface for generating text embeddings.
type Client interface {
	// Embed generates an embedding vector for the given text.
	// Empty or whitespace-only text returns ErrEmptyText, never a panic.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the output vectors, or 0 when
	// no model has been loaded yet.
	Dimension() int
}

// ErrEmptyText is returned for empty or whitespace-only input. Callers treat
// it as "no embedding available", not as a crash.
var ErrEmptyText = errors.New("embeddings: text is empty")

// ErrProviderDisabled is returned after both the primary and fallback models
// failed to load; the provider never attempts a reload.
var ErrProviderDisabled = errors.New("embeddings: provider disabled, no model available")
