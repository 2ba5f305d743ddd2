package embedding

import (
	"context"
	"testing"

	"github.com/tempomem/tempomem/internal/model"
)

type countingEmbedder struct {
	calls int
	vec   Vector
}

func (c *countingEmbedder) Embed(ctx context.Context, kind model.Kind, text string) (Vector, error) {
	c.calls++
	return c.vec, nil
}

func (c *countingEmbedder) Dims(kind model.Kind) int { return len(c.vec) }

func TestCachedEmbedDedupesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{vec: Vector{1, 2, 3}}
	cached, err := NewCached(inner)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	if _, err := cached.Embed(context.Background(), model.KindSemantic, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := cached.Embed(context.Background(), model.KindSemantic, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	cached.cache.Wait()

	if inner.calls != 1 {
		t.Errorf("expected provider called once for repeated text, got %d calls", inner.calls)
	}
}

func TestCachedEmbedDistinguishesKind(t *testing.T) {
	inner := &countingEmbedder{vec: Vector{1, 2, 3}}
	cached, err := NewCached(inner)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	if _, err := cached.Embed(context.Background(), model.KindSemantic, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := cached.Embed(context.Background(), model.KindVault, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	cached.cache.Wait()

	if inner.calls != 2 {
		t.Errorf("expected provider called once per distinct kind, got %d calls", inner.calls)
	}
}

func TestPadOrTruncate(t *testing.T) {
	short := Vector{1, 2, 3}
	padded := PadOrTruncate(short)
	if len(padded) != DMax {
		t.Fatalf("expected length %d, got %d", DMax, len(padded))
	}
	for i, v := range short {
		if padded[i] != v {
			t.Errorf("padded[%d] = %v, want %v", i, padded[i], v)
		}
	}

	long := make(Vector, DMax+10)
	for i := range long {
		long[i] = float32(i)
	}
	truncated := PadOrTruncate(long)
	if len(truncated) != DMax {
		t.Fatalf("expected length %d, got %d", DMax, len(truncated))
	}
}
