// Package index owns the mapping from document identifier to its vector
// index, with restore-from-disk and build-once deduplication.
package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/vector"
)

// BuildFunc produces a fresh index for a document, typically by running the
// ingestion pipeline. It is invoked at most once per in-flight build.
type BuildFunc func(ctx context.Context) (*vector.Index, error)

// Cache is the single source of truth for document indexes. For each document
// identifier it holds at most one completed index; concurrent requests for an
// unindexed document share a single build and all observe its result.
type Cache struct {
	root   string
	logger *zap.Logger // optional; when set, logs restore/build events

	mu       sync.Mutex
	ready    map[string]*vector.Index
	building map[string]*build
}

// build tracks one in-flight index construction. idx and err are written
// exactly once, before done is closed.
type build struct {
	done chan struct{}
	idx  *vector.Index
	err  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache persisting indexes under root (one directory per document).
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:     root,
		ready:    make(map[string]*vector.Index),
		building: make(map[string]*build),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrBuild returns the index for docID. Resolution order: in-memory hit,
// restore from disk, fresh build via buildFn. When a build is already in
// flight for docID the call waits for that build's result instead of starting
// a second one. A failed build leaves the document unindexed; the next call
// retries. Waiters are released when their ctx is cancelled without
// disturbing the build itself.
func (c *Cache) GetOrBuild(ctx context.Context, docID string, buildFn BuildFunc) (*vector.Index, error) {
	c.mu.Lock()
	if idx, ok := c.ready[docID]; ok {
		c.mu.Unlock()
		return idx, nil
	}
	if b, ok := c.building[docID]; ok {
		c.mu.Unlock()
		select {
		case <-b.done:
			return b.idx, b.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b := &build{done: make(chan struct{})}
	c.building[docID] = b
	c.mu.Unlock()

	idx, err := c.restoreOrBuild(ctx, docID, buildFn)

	b.idx, b.err = idx, err
	c.mu.Lock()
	delete(c.building, docID)
	if err == nil {
		c.ready[docID] = idx
	}
	c.mu.Unlock()
	close(b.done)

	return idx, err
}

func (c *Cache) restoreOrBuild(ctx context.Context, docID string, buildFn BuildFunc) (*vector.Index, error) {
	path := vector.IndexPath(c.root, docID)

	idx, err := vector.Load(path)
	if err == nil {
		if c.logger != nil {
			c.logger.Debug("index restored", zap.String("doc_id", docID), zap.Int("size", idx.Size()))
		}
		return idx, nil
	}
	if c.logger != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("index restore failed, rebuilding", zap.String("doc_id", docID), zap.Error(err))
	}

	idx, err = buildFn(ctx)
	if err != nil {
		return nil, err
	}
	if saveErr := idx.Save(path); saveErr != nil {
		// The in-memory index is still valid; the next restart rebuilds.
		if c.logger != nil {
			c.logger.Warn("index persist failed", zap.String("doc_id", docID), zap.Error(saveErr))
		}
	}
	if c.logger != nil {
		c.logger.Debug("index built", zap.String("doc_id", docID), zap.Int("size", idx.Size()))
	}
	return idx, nil
}

// Ready reports whether a completed index for docID is in memory.
func (c *Cache) Ready(docID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ready[docID]
	return ok
}

// Len returns the number of completed indexes in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ready)
}

// Invalidate drops the in-memory index for docID and deletes its backing
// storage directory. Used when the document itself is deleted.
func (c *Cache) Invalidate(docID string) error {
	c.mu.Lock()
	delete(c.ready, docID)
	c.mu.Unlock()
	return os.RemoveAll(filepath.Dir(vector.IndexPath(c.root, docID)))
}
