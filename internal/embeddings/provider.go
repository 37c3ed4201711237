// Package embeddings provides local embedding generation for the semantic
// lesson index.
package embeddings

import (
	"context"
	"errors"
)

// Common errors for embedding providers.
var (
	ErrInvalidConfig   = errors.New("embeddings: invalid configuration")
	ErrEmptyInput      = errors.New("embeddings: empty input")
	ErrEmbeddingFailed = errors.New("embeddings: generation failed")
)

// Provider generates vector embeddings for documents and queries.
// BGE-style models expect different prefixes for the two, so they are
// separate methods.
type Provider interface {
	// EmbedDocuments embeds passage texts for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding width of the active model.
	Dimension() int

	// Close releases model resources.
	Close() error
}
