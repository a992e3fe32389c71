// Package vector provides the per-document vector index: brute-force cosine
// search over one document's chunk embeddings, with durable persistence.
package vector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrIndexUnavailable is returned by Load when the stored index is missing,
// truncated, or corrupt. Callers respond by rebuilding from the source document.
var ErrIndexUnavailable = errors.New("index unavailable")

// Result is a single search hit.
type Result struct {
	Chunk models.Chunk
	Score float64 // cosine similarity for normalized vectors (inner product)
}

// Index holds the (chunk, embedding) pairs for exactly one document.
// It is immutable after Build and safe for concurrent Search.
type Index struct {
	docID      string
	dimensions int
	chunks     []models.Chunk
	vectors    [][]float32
}

// Build creates an index over chunks and their embeddings. The two slices must
// be parallel and every vector must have the same dimension.
func Build(docID string, chunks []models.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("zero-dimension vectors")
	}
	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), dim)
		}
		vec := make([]float32, dim)
		copy(vec, v)
		copied[i] = vec
	}
	idx := &Index{
		docID:      docID,
		dimensions: dim,
		chunks:     append([]models.Chunk(nil), chunks...),
		vectors:    copied,
	}
	return idx, nil
}

// DocumentID returns the identifier of the document this index covers.
func (idx *Index) DocumentID() string {
	return idx.docID
}

// Dimensions returns the embedding dimension.
func (idx *Index) Dimensions() int {
	return idx.dimensions
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	return len(idx.chunks)
}

// Search returns the top-k chunks by inner product (cosine similarity for
// normalized vectors), highest first. Ties keep original chunk order.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != idx.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), idx.dimensions)
	}
	if k <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}
	results := make([]Result, len(idx.chunks))
	for i, vec := range idx.vectors {
		var dot float64
		for j := 0; j < idx.dimensions; j++ {
			dot += float64(query[j] * vec[j])
		}
		results[i] = Result{Chunk: idx.chunks[i], Score: dot}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}
