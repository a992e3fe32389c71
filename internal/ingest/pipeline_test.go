package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(path string) (string, error) {
	return f.text, f.err
}

type failingEmbedder struct {
	embedding.Embedder
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: model exploded", embedding.ErrEmbeddingFailed)
}

func TestPipelineIngest(t *testing.T) {
	p := NewPipeline(
		&fakeExtractor{text: "The cat sat. The dog ran."},
		embedding.NewMockEmbedder(16),
		NewChunker(20, 5),
	)
	idx, err := p.Ingest(context.Background(), "doc1", "/ignored.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if idx.DocumentID() != "doc1" {
		t.Errorf("doc id = %s", idx.DocumentID())
	}
	if idx.Size() < 2 {
		t.Errorf("index size = %d", idx.Size())
	}
}

func TestPipelineEmptyDocument(t *testing.T) {
	p := NewPipeline(
		&fakeExtractor{text: "   \n "},
		embedding.NewMockEmbedder(8),
		NewChunker(20, 5),
	)
	_, err := p.Ingest(context.Background(), "doc1", "/scanned.pdf")
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestPipelineExtractFailure(t *testing.T) {
	p := NewPipeline(
		&fakeExtractor{err: errors.New("unreadable")},
		embedding.NewMockEmbedder(8),
		NewChunker(20, 5),
	)
	if _, err := p.Ingest(context.Background(), "doc1", "/bad.pdf"); err == nil {
		t.Error("expected extract error to propagate")
	}
}

func TestPipelineEmbeddingFailure(t *testing.T) {
	p := NewPipeline(
		&fakeExtractor{text: "some real text"},
		&failingEmbedder{},
		NewChunker(20, 5),
	)
	_, err := p.Ingest(context.Background(), "doc1", "/x.pdf")
	if !errors.Is(err, embedding.ErrEmbeddingFailed) {
		t.Errorf("expected ErrEmbeddingFailed, got %v", err)
	}
}
