// Package embedding provides text embedding via ONNX runtime plus caching.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed wraps failures of the backing embedding model. An
// embedding failure is fatal for the ingestion that triggered it.
var ErrEmbeddingFailed = errors.New("embedding failed")

// Embedder produces vector embeddings for text. One Embedder instance backs
// both ingestion and query embedding for the lifetime of the process; an index
// built with one model must never be queried with another.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in order. Batching is an optimization only: the
	// result for each text is independent of its neighbors.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
