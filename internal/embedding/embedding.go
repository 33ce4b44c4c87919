// Package embedding turns memory content into fixed-width vectors for
// semantic retrieval.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/scrypster/engram/internal/storage"
)

// Embedder converts text into unit-length embedding vectors.
type Embedder interface {
	// Dimensions returns the width of produced vectors.
	Dimensions() int

	// Embed produces the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch produces embeddings for several texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder generates deterministic embeddings from a text hash. Equal
// inputs always produce equal vectors, so lexically identical content lands
// at the same point in vector space. It needs no model or network and is the
// default provider; swap in a real model-backed embedder for production
// semantic quality.
type HashEmbedder struct {
	dimensions int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a hash embedder with the given vector width.
func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive, got %d", storage.ErrInvalidInput, dimensions)
	}
	return &HashEmbedder{dimensions: dimensions}, nil
}

// Dimensions returns the embedding size.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed creates a deterministic unit vector from text. The FNV hash of the
// text seeds a linear congruential generator that fills the vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, e.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

// normalize scales vec to unit length. A zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
