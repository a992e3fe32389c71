package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrEmptyDocument is returned when text extraction yields no usable content
// (e.g. a scanned PDF containing only images).
var ErrEmptyDocument = errors.New("document has no extractable text")

// TextExtractor extracts plain text from a file. Satisfied by extract.Extractor.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// Pipeline runs one document through extract, chunk, embed, and index build.
// Any step failure aborts the run; nothing partial survives.
type Pipeline struct {
	extractor TextExtractor
	embedder  embedding.Embedder
	chunker   *Chunker
	logger    *zap.Logger // optional; when set, logs debug events
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets a logger for debug output (chunk counts, timings, etc.).
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline with the given dependencies.
func NewPipeline(extractor TextExtractor, embedder embedding.Embedder, chunker *Chunker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		chunker:   chunker,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest builds a vector index for the document at path.
func (p *Pipeline) Ingest(ctx context.Context, docID, path string) (*vector.Index, error) {
	text, err := p.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	chunks := p.chunker.Split(docID, text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}
	if p.logger != nil {
		p.logger.Debug("document chunked",
			zap.String("doc_id", docID),
			zap.Int("chunks", len(chunks)),
		)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	idx, err := vector.Build(docID, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if p.logger != nil {
		p.logger.Debug("index built",
			zap.String("doc_id", docID),
			zap.Int("size", idx.Size()),
			zap.Int("dimensions", idx.Dimensions()),
		)
	}
	return idx, nil
}
