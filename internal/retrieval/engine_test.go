package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// keywordEmbedder maps text to a vector of keyword-presence features, so
// similarity in tests reflects shared words rather than hash noise.
type keywordEmbedder struct {
	vocab []string
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab))
	for i, word := range e.vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) Dimensions() int { return len(e.vocab) }
func (e *keywordEmbedder) Close() error    { return nil }

func buildIndex(t *testing.T, emb *keywordEmbedder, texts ...string) *vector.Index {
	t.Helper()
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{DocumentID: "doc1", Index: i, Text: text}
	}
	vectors, err := emb.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := vector.Build("doc1", chunks, vectors)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestContextRetrievesRelevantChunk(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"cat", "dog", "sat", "ran", "what", "did"}}
	idx := buildIndex(t, emb, "The cat sat.", "The dog ran.")

	e := NewEngine(emb, 1)
	got, err := e.Context(context.Background(), idx, "What did the cat do?")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if !strings.Contains(got, "The cat sat.") {
		t.Errorf("context %q should contain the cat chunk", got)
	}
	if strings.Contains(got, "The dog ran.") {
		t.Errorf("top-1 context %q should not contain the dog chunk", got)
	}
}

func TestContextJoinsRankedChunks(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"cat", "dog", "bird"}}
	idx := buildIndex(t, emb, "bird facts", "cat facts", "dog facts")

	e := NewEngine(emb, 2)
	got, err := e.Context(context.Background(), idx, "tell me about the cat")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(got, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("parts = %d: %q", len(parts), got)
	}
	if parts[0] != "cat facts" {
		t.Errorf("first ranked chunk = %q", parts[0])
	}
}

func TestContextStableRanking(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"cat", "dog"}}
	idx := buildIndex(t, emb, "The cat sat.", "The dog ran.")
	e := NewEngine(emb, 2)

	first, err := e.Context(context.Background(), idx, "What did the cat do?")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Context(context.Background(), idx, "What did the cat do?")
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("ranking not stable: %q vs %q", again, first)
		}
	}
}

func TestContextNoRelevantContent(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"cat"}}
	idx := buildIndex(t, emb, "   ", "\t\n")

	e := NewEngine(emb, 2)
	_, err := e.Context(context.Background(), idx, "cat?")
	if !errors.Is(err, ErrNoRelevantContent) {
		t.Errorf("expected ErrNoRelevantContent, got %v", err)
	}
}
