package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sony/gobreaker"

	"github.com/tempomem/tempomem/internal/model"
)

// DMax is the fixed vector length every embedding is padded or truncated to
// before it's handed back to a caller, matching the store's persisted
// column width so a retrieval's query vector always lines up with what's on
// disk.
const DMax = 1536

// Cached wraps an Embedder with a result cache and a circuit breaker, so a
// flaky or slow embedding provider can't stall every write or retrieval:
// repeated text is served from cache, and a provider in a failing streak
// trips the breaker and fails fast instead of piling up timeouts.
type Cached struct {
	inner   Embedder
	cache   *ristretto.Cache[string, Vector]
	breaker *gobreaker.CircuitBreaker
}

// NewCached builds a Cached embedder around inner. With a nil inner, Dims
// reports 0 and Embed always fails with "embedding provider not configured".
func NewCached(inner Embedder) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, Vector]{
		NumCounters: 1e5,
		MaxCost:     1 << 26, // 64MiB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Cached{inner: inner, cache: cache, breaker: breaker}, nil
}

func (c *Cached) Dims(kind model.Kind) int {
	if c.inner == nil {
		return 0
	}
	return c.inner.Dims(kind)
}

func (c *Cached) Embed(ctx context.Context, kind model.Kind, text string) (Vector, error) {
	if c.inner == nil {
		return nil, fmt.Errorf("embedding provider not configured")
	}
	key := cacheKey(kind, text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.inner.Embed(ctx, kind, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	vec := PadOrTruncate(result.(Vector))
	c.cache.SetWithTTL(key, vec, int64(len(vec)*4), time.Hour)
	// ristretto applies sets asynchronously; flush so the next call for the
	// same key is served from cache.
	c.cache.Wait()
	return vec, nil
}

// cacheKey incorporates kind because §6.5 lets a provider route the same
// text to different models/dimensions depending on kind; caching by text
// alone would serve one kind's vector to another.
func cacheKey(kind model.Kind, text string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// PadOrTruncate normalizes v to exactly DMax entries: shorter vectors are
// zero-padded, longer ones truncated, so every stored and queried vector is
// comparable by plain cosine similarity.
func PadOrTruncate(v Vector) Vector {
	if len(v) == DMax {
		return v
	}
	out := make(Vector, DMax)
	n := len(v)
	if n > DMax {
		n = DMax
	}
	copy(out, v[:n])
	return out
}
