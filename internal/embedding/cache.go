package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes embeddings keyed by exact text. Capture and
// search frequently embed the same strings (re-captured receipts, repeated
// queries), and even a cheap embedder is worth skipping at that rate.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache bounded to maxEntries vectors.
func NewCachedEmbedder(inner Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Dimensions returns the wrapped embedder's vector width.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Embed returns the cached vector for text, computing and storing it on miss.
// Cached vectors are shared; callers must not mutate the returned slice.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch embeds each text, reusing cached vectors where present.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Close releases the cache's internal goroutines.
func (e *CachedEmbedder) Close() {
	e.cache.Close()
}
