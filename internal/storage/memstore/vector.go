package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.VectorBackend = (*Vector)(nil)

type vectorEntry struct {
	embedding []float32
	memory    *types.Memory
}

// Vector is an in-memory nearest-neighbor store with brute-force cosine
// ranking.
type Vector struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]*vectorEntry
}

// NewVector creates an empty vector store accepting embeddings of the given
// dimensionality.
func NewVector(dimensions int) (*Vector, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidInput, dimensions)
	}
	return &Vector{
		dimensions: dimensions,
		entries:    make(map[string]*vectorEntry),
	}, nil
}

// Dimensions returns the accepted embedding dimensionality.
func (v *Vector) Dimensions() int { return v.dimensions }

// Upsert stores or replaces the embedding for a memory.
func (v *Vector) Upsert(_ context.Context, id string, embedding []float32, memory *types.Memory) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID required", storage.ErrInvalidInput)
	}
	if len(embedding) != v.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, backend expects %d",
			storage.ErrInvalidInput, len(embedding), v.dimensions)
	}
	if memory == nil {
		memory = &types.Memory{ID: id}
	}

	projection := cloneMemory(memory)
	projection.Embedding = nil

	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[id] = &vectorEntry{
		embedding: append([]float32{}, embedding...),
		memory:    projection,
	}
	return nil
}

// Remove drops an embedding, reporting whether it was present.
func (v *Vector) Remove(_ context.Context, id string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[id]; !ok {
		return false, nil
	}
	delete(v.entries, id)
	return true, nil
}

// Search ranks stored embeddings by cosine similarity, best first, with ID
// tie-breaks for reproducible orderings.
func (v *Vector) Search(_ context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 || len(queryEmbedding) == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != v.dimensions {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, backend expects %d",
			storage.ErrInvalidInput, len(queryEmbedding), v.dimensions)
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var hits []storage.ScoredID
	for id, entry := range v.entries {
		if !filter.Matches(entry.memory) {
			continue
		}
		hits = append(hits, storage.ScoredID{
			ID:    id,
			Score: sqlite.CosineSimilarity(queryEmbedding, entry.embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored embeddings.
func (v *Vector) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Clear drops every stored embedding.
func (v *Vector) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]*vectorEntry)
	return nil
}

// Close is a no-op for the in-memory store.
func (v *Vector) Close() error { return nil }
