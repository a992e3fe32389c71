// Package retrieval assembles the context passed to answer generation: embed
// the question, search the document's index, join the top chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrNoRelevantContent is returned when retrieval produces no usable context.
var ErrNoRelevantContent = errors.New("no relevant content found")

// chunkSeparator joins retrieved chunks in ranked order.
const chunkSeparator = "\n\n"

// Engine retrieves context for a question. The embedder must be the same
// instance that embedded the index's chunks; it is injected, never looked up
// from ambient state.
type Engine struct {
	embedder embedding.Embedder
	topK     int
}

// NewEngine creates a retrieval engine selecting the topK most similar chunks.
func NewEngine(embedder embedding.Embedder, topK int) *Engine {
	if topK <= 0 {
		topK = 3
	}
	return &Engine{embedder: embedder, topK: topK}
}

// Context embeds question, searches idx, and returns the retrieved chunk texts
// joined in ranked order.
func (e *Engine) Context(ctx context.Context, idx *vector.Index, question string) (string, error) {
	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	results, err := idx.Search(queryVec, e.topK)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Text)
	}
	joined := strings.Join(parts, chunkSeparator)
	if strings.TrimSpace(joined) == "" {
		return "", ErrNoRelevantContent
	}
	return joined, nil
}
