// Package ingest turns a source document into a searchable vector index:
// extract text, split into overlapping chunks, embed, build.
package ingest

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into overlapping fixed-size windows of runes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given window size and overlap (in runes).
// Overlap is clamped to chunkSize-1 so the walk always advances.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split walks text producing consecutive windows of at most chunkSize runes,
// each window starting chunkSize-chunkOverlap runes after the previous start.
// The final chunk may be shorter. Whitespace-only text yields nil; callers
// treat that as an ingestion failure, not an empty index.
func (c *Chunker) Split(docID, text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap

	var chunks []models.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			DocumentID: docID,
			Index:      len(chunks),
			Start:      start,
			Text:       string(runes[start:end]),
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
