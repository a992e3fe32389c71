package qa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Answerer produces a raw answer from a question and retrieved context.
type Answerer interface {
	Answer(ctx context.Context, question, docContext string) (string, error)
}

// Service runs the full question-answering flow: resolve the document,
// get or build its index, retrieve context, generate and polish an answer.
type Service struct {
	store     storage.Storage
	cache     *index.Cache
	pipeline  *ingest.Pipeline
	retriever *retrieval.Engine
	answerer  Answerer
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the question-answering components together.
func NewService(store storage.Storage, cache *index.Cache, pipeline *ingest.Pipeline, retriever *retrieval.Engine, answerer Answerer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		cache:     cache,
		pipeline:  pipeline,
		retriever: retriever,
		answerer:  answerer,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnswerQuestion answers the question against the identified document. The
// document's index is built on first use and reused afterwards; concurrent
// questions against an unindexed document share a single build.
func (s *Service) AnswerQuestion(ctx context.Context, docID, question string) (*models.Answer, error) {
	doc, err := s.resolveDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	idx, err := s.cache.GetOrBuild(ctx, docID, func(ctx context.Context) (*vector.Index, error) {
		return s.pipeline.Ingest(ctx, docID, doc.Path)
	})
	if err != nil {
		return nil, fmt.Errorf("index for document %s: %w", docID, err)
	}

	docContext, err := s.retriever.Context(ctx, idx, question)
	if err != nil {
		return nil, err
	}

	raw, err := s.answerer.Answer(ctx, question, docContext)
	if err != nil {
		return nil, err
	}

	content := answer.Polish(raw, question)
	s.logger.Info("question answered",
		zap.String("document_id", docID),
		zap.Int("context_chars", len(docContext)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &models.Answer{
		Content:    content,
		DocumentID: docID,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Ingest builds (or restores) the index for a document immediately, without
// answering a question. Used for eager ingestion at upload time.
func (s *Service) Ingest(ctx context.Context, docID string) error {
	doc, err := s.resolveDocument(ctx, docID)
	if err != nil {
		return err
	}
	_, err = s.cache.GetOrBuild(ctx, docID, func(ctx context.Context) (*vector.Index, error) {
		return s.pipeline.Ingest(ctx, docID, doc.Path)
	})
	return err
}

// RemoveDocument deletes a document's metadata, its stored file, and any
// persisted index.
func (s *Service) RemoveDocument(ctx context.Context, docID string) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove document file", zap.String("path", doc.Path), zap.Error(err))
	}
	if err := s.cache.Invalidate(docID); err != nil {
		s.logger.Warn("failed to remove index", zap.String("document_id", docID), zap.Error(err))
	}
	return nil
}

// resolveDocument looks up the document and verifies its file still exists.
// A row whose file has gone missing is treated the same as a missing row.
func (s *Service) resolveDocument(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(doc.Path); err != nil {
		return nil, fmt.Errorf("%w: %s (file missing: %s)", storage.ErrDocumentNotFound, docID, doc.Path)
	}
	return doc, nil
}

// UserMessage maps a question-answering failure to a message safe to show
// the user. Known failures get a fixed message; anything unclassified falls
// through to a generic message with the cause appended for diagnostics.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrDocumentNotFound):
		return "Document not found. Please upload it first."
	case errors.Is(err, ingest.ErrEmptyDocument):
		return "No readable text found in this document."
	case errors.Is(err, retrieval.ErrNoRelevantContent):
		return "No relevant content found for this question."
	case errors.Is(err, answer.ErrRateLimited):
		return "Server busy. Please wait and try again."
	case errors.Is(err, answer.ErrTimeout):
		return "Processing took too long. Try a simpler question."
	case errors.Is(err, answer.ErrEmptyAnswer):
		return "The model returned no answer. Try rephrasing the question."
	// Restore failures rebuild in place, so the index sentinel only surfaces
	// when an index is loaded outside the cache.
	case errors.Is(err, vector.ErrIndexUnavailable):
		return "Document index is unavailable. Please re-upload the document."
	default:
		return fmt.Sprintf("Could not process the question: %v", err)
	}
}
