package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	a, err := e.Embed(context.Background(), "the cat sat")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), "the cat sat")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must embed identically")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("embedding not unit length: %f", norm)
	}
}

func TestMockEmbedderBatchOrder(t *testing.T) {
	e := NewMockEmbedder(8)
	texts := []string{"a", "b", "c"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("len = %d", len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(context.Background(), text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch result %d differs from single embed", i)
			}
		}
	}
}
