// Package integration provides end-to-end tests (requires real storage on disk).
package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type fileExtractor struct{}

func (fileExtractor) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type contextEchoAnswerer struct {
	mu    sync.Mutex
	calls int
}

func (a *contextEchoAnswerer) Answer(ctx context.Context, question, docContext string) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	// Return the first retrieved sentence as the "answer".
	if i := strings.Index(docContext, "."); i >= 0 {
		return docContext[:i+1], nil
	}
	return docContext, nil
}

type env struct {
	dir      string
	store    storage.Storage
	cache    *index.Cache
	service  *qa.Service
	answerer *contextEchoAnswerer
}

func newEnv(t *testing.T, dir string) *env {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "db.sqlite"),
			IndexPath:    filepath.Join(dir, "indexes"),
		},
		Embedding: config.EmbeddingConfig{Dimensions: 32},
		Retrieval: config.RetrievalConfig{ChunkSize: 20, ChunkOverlap: 5, TopK: 2},
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	t.Cleanup(func() { embedder.Close() })

	cache := index.New(cfg.Storage.IndexPath)
	chunker := ingest.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	pipeline := ingest.NewPipeline(fileExtractor{}, embedder, chunker)
	retriever := retrieval.NewEngine(embedder, cfg.Retrieval.TopK)
	answerer := &contextEchoAnswerer{}
	service := qa.NewService(store, cache, pipeline, retriever, answerer)

	return &env{dir: dir, store: store, cache: cache, service: service, answerer: answerer}
}

func (e *env) addDocument(t *testing.T, id, text string) {
	t.Helper()
	path := filepath.Join(e.dir, id+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := &models.Document{
		ID: id, Name: id + ".txt", Path: path,
		Size: int64(len(text)), CreatedAt: time.Now(),
	}
	if err := e.store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_QuestionAnswering(t *testing.T) {
	e := newEnv(t, t.TempDir())
	e.addDocument(t, "doc1", "The cat sat. The dog ran.")

	ans, err := e.service.AnswerQuestion(context.Background(), "doc1", "What did the cat do?")
	if err != nil {
		t.Fatalf("AnswerQuestion failed: %v", err)
	}
	if ans.Content == "" {
		t.Fatal("empty answer content")
	}
	if ans.DocumentID != "doc1" {
		t.Errorf("document ID = %q", ans.DocumentID)
	}
}

func TestIntegration_IndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e1 := newEnv(t, dir)
	e1.addDocument(t, "doc1", "Rent is due on the first of every month. Late fees apply after the fifth day.")
	if err := e1.service.Ingest(context.Background(), "doc1"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	idxPath := vector.IndexPath(filepath.Join(dir, "indexes"), "doc1")
	if _, err := os.Stat(idxPath); err != nil {
		t.Fatalf("index not persisted: %v", err)
	}

	// Fresh process: empty cache, same disk. The question must be answered
	// from the restored index without re-reading the document.
	e2 := newEnv(t, dir)
	docPath := filepath.Join(dir, "doc1.txt")
	original, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(docPath, []byte("REPLACED CONTENT"), 0o644); err != nil {
		t.Fatal(err)
	}

	ans, err := e2.service.AnswerQuestion(context.Background(), "doc1", "When is rent due?")
	if err != nil {
		t.Fatalf("AnswerQuestion after restart failed: %v", err)
	}
	if strings.Contains(ans.Content, "REPLACED") {
		t.Errorf("answer should come from the persisted index, got %q", ans.Content)
	}
	if err := os.WriteFile(docPath, original, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_ConcurrentQuestionsBuildOnce(t *testing.T) {
	e := newEnv(t, t.TempDir())
	e.addDocument(t, "doc1", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.service.AnswerQuestion(context.Background(), "doc1", "What jumps?")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("question %d failed: %v", i, err)
		}
	}
	if !e.cache.Ready("doc1") {
		t.Error("index should be cached")
	}
	if e.cache.Len() != 1 {
		t.Errorf("cache holds %d indexes, want 1", e.cache.Len())
	}
}

func TestIntegration_CorruptIndexRebuilt(t *testing.T) {
	dir := t.TempDir()
	e := newEnv(t, dir)
	e.addDocument(t, "doc1", "Some indexed content that will survive corruption of its on-disk index.")
	if err := e.service.Ingest(context.Background(), "doc1"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	idxPath := vector.IndexPath(filepath.Join(dir, "indexes"), "doc1")
	if err := os.WriteFile(idxPath, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Fresh cache restores, finds garbage, and rebuilds from the document.
	e2 := newEnv(t, dir)
	if _, err := e2.service.AnswerQuestion(context.Background(), "doc1", "What survives?"); err != nil {
		t.Fatalf("question after corruption failed: %v", err)
	}

	// The rebuild also rewrote the index; a direct load must work again.
	if _, err := vector.Load(idxPath); err != nil {
		t.Errorf("index not rewritten after rebuild: %v", err)
	}
}

func TestIntegration_EmptyDocument(t *testing.T) {
	e := newEnv(t, t.TempDir())
	e.addDocument(t, "empty", "  \n\t ")

	_, err := e.service.AnswerQuestion(context.Background(), "empty", "anything?")
	if !errors.Is(err, ingest.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if e.answerer.calls != 0 {
		t.Errorf("answerer should not be called, got %d calls", e.answerer.calls)
	}
}
