// Package models defines core data structures for documents, chunks, and the QA API.
package models

import "time"

// Document is the metadata row for an uploaded file.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Path      string    `json:"path" db:"path"`
	Size      int64     `json:"size" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a bounded substring of a document's extracted text, the unit of retrieval.
// Start is the rune offset of the chunk within the source text. Chunks are immutable
// once produced; consecutive chunks overlap by the configured overlap length.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	Text       string `json:"text"`
}
