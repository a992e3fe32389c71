package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

func buildTestIndex(t *testing.T, docID string) *vector.Index {
	t.Helper()
	chunks := []models.Chunk{
		{DocumentID: docID, Index: 0, Start: 0, Text: "The cat sat."},
		{DocumentID: docID, Index: 1, Start: 8, Text: "The dog ran."},
	}
	vectors := [][]float32{{1, 0}, {0, 1}}
	idx, err := vector.Build(docID, chunks, vectors)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestGetOrBuildCachesResult(t *testing.T) {
	c := New(t.TempDir())
	var builds int32
	builder := func(ctx context.Context) (*vector.Index, error) {
		atomic.AddInt32(&builds, 1)
		return buildTestIndex(t, "doc1"), nil
	}

	idx1, err := c.GetOrBuild(context.Background(), "doc1", builder)
	if err != nil {
		t.Fatalf("first GetOrBuild: %v", err)
	}
	idx2, err := c.GetOrBuild(context.Background(), "doc1", builder)
	if err != nil {
		t.Fatalf("second GetOrBuild: %v", err)
	}
	if idx1 != idx2 {
		t.Error("second call should return the cached index")
	}
	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Errorf("builds = %d, want 1", n)
	}
	if !c.Ready("doc1") || c.Len() != 1 {
		t.Error("cache should report doc1 ready")
	}
}

func TestGetOrBuildBuildOnce(t *testing.T) {
	c := New(t.TempDir())
	var builds int32
	release := make(chan struct{})
	builder := func(ctx context.Context) (*vector.Index, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return buildTestIndex(t, "doc1"), nil
	}

	const n = 16
	results := make([]*vector.Index, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(context.Background(), "doc1", builder)
		}(i)
	}
	// Let the goroutines pile up on the in-flight build before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Errorf("builds = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different index", i)
		}
	}
}

func TestGetOrBuildFailurePropagatesToAllWaiters(t *testing.T) {
	c := New(t.TempDir())
	var builds int32
	release := make(chan struct{})
	boom := errors.New("ingestion exploded")
	builder := func(ctx context.Context) (*vector.Index, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return nil, boom
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrBuild(context.Background(), "doc1", builder)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Errorf("builds = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], boom) {
			t.Errorf("caller %d: expected build error, got %v", i, errs[i])
		}
	}
	if c.Ready("doc1") {
		t.Error("failed build must not leave a ready entry")
	}

	// The next request retries the build.
	idx, err := c.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
		return buildTestIndex(t, "doc1"), nil
	})
	if err != nil || idx == nil {
		t.Errorf("retry after failure: idx=%v err=%v", idx, err)
	}
}

func TestGetOrBuildRestoresFromDisk(t *testing.T) {
	root := t.TempDir()
	idx := buildTestIndex(t, "doc1")
	if err := idx.Save(vector.IndexPath(root, "doc1")); err != nil {
		t.Fatal(err)
	}

	c := New(root)
	restored, err := c.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
		t.Error("build should not run when a persisted index exists")
		return nil, errors.New("unreachable")
	})
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if restored.Size() != 2 || restored.DocumentID() != "doc1" {
		t.Errorf("restored index: size=%d id=%s", restored.Size(), restored.DocumentID())
	}
}

func TestGetOrBuildPersistsForNextProcess(t *testing.T) {
	root := t.TempDir()
	c1 := New(root)
	if _, err := c1.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
		return buildTestIndex(t, "doc1"), nil
	}); err != nil {
		t.Fatal(err)
	}

	// Fresh cache simulates a process restart; restore must hit disk.
	c2 := New(root)
	idx, err := c2.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
		t.Error("build should not run after restart with persisted index")
		return nil, errors.New("unreachable")
	})
	if err != nil || idx.Size() != 2 {
		t.Errorf("restart restore: err=%v", err)
	}
}

func TestWaiterReleasedOnContextCancel(t *testing.T) {
	c := New(t.TempDir())
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = c.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
			close(started)
			<-release
			return buildTestIndex(t, "doc1"), nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, "doc1", func(ctx context.Context) (*vector.Index, error) {
			return nil, errors.New("should wait, not build")
		})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released on cancel")
	}
	close(release)
}

func TestInvalidate(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	if _, err := c.GetOrBuild(context.Background(), "doc1", func(ctx context.Context) (*vector.Index, error) {
		return buildTestIndex(t, "doc1"), nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("doc1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if c.Ready("doc1") {
		t.Error("doc1 still ready after invalidate")
	}
	if _, err := vector.Load(vector.IndexPath(root, "doc1")); !errors.Is(err, vector.ErrIndexUnavailable) {
		t.Error("persisted index should be gone after invalidate")
	}
}
