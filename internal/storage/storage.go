// Package storage provides document metadata persistence and upload file storage.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrDocumentNotFound is returned when a document ID has no metadata row.
var ErrDocumentNotFound = errors.New("document not found")

// Storage defines document metadata persistence operations.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}
