// Package storage defines the layered backend abstraction at the heart of
// Engram: an authoritative persistence backend, a derived lexical index, and
// a derived vector index.
//
// The interfaces are small and focused so each backend kind can be
// implemented independently (embedded SQLite, server PostgreSQL, in-memory,
// chromem) and composed as needed. Callers hold the interface type, never a
// concrete store.
package storage

import (
	"context"

	"github.com/scrypster/engram/pkg/types"
)

// ScoredID pairs a memory ID with a backend-native relevance score.
// Scores are magnitudes local to the producing backend; normalization to
// [0, 1] happens only in the fusion engine.
type ScoredID struct {
	ID    string
	Score float64
}

// PersistenceBackend is the authoritative, durable store of full memory
// records, the single source of truth. Index and vector backends hold only
// derived projections and can be rebuilt from this layer at any time.
//
// Missing IDs are represented as nil/false returns, never as errors; only
// I/O and storage faults are errors. Store must be all-or-nothing per
// record: a failed commit leaves no partial write behind.
type PersistenceBackend interface {
	// Store creates or overwrites a memory (last-write-wins, no merge).
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID, or nil when it does not exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Delete removes a memory record. It reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListIDs returns the IDs of all stored memories.
	ListIDs(ctx context.Context) ([]string, error)

	// GetBatch retrieves multiple memories in a single round trip.
	// Unknown IDs are skipped, not errors.
	GetBatch(ctx context.Context, ids []string) ([]*types.Memory, error)

	// Exists reports whether a memory with the given ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Count returns the number of stored memories.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// IndexBackend is the derived full-text search structure over memory
// content. Entries are keyed by memory ID and are strictly followers of the
// persistence layer; Reindex rebuilds the whole index from scratch and is
// idempotent and safe to run concurrently with readers.
type IndexBackend interface {
	// Index adds or replaces a memory's lexical projection.
	Index(ctx context.Context, memory *types.Memory) error

	// Remove drops a memory from the index, reporting whether it was present.
	Remove(ctx context.Context, id string) (bool, error)

	// Search returns up to limit IDs ordered by descending lexical
	// relevance (BM25-style, backend-native magnitude).
	Search(ctx context.Context, query string, filter *types.SearchFilter, limit int) ([]ScoredID, error)

	// ListAll returns up to limit IDs matching the filter without a query;
	// the score is a recency proxy, newest first.
	ListAll(ctx context.Context, filter *types.SearchFilter, limit int) ([]ScoredID, error)

	// Reindex atomically replaces the entire index with projections of the
	// given memories. Readers observe either the old or the new fully
	// indexed state, never a partial rebuild.
	Reindex(ctx context.Context, memories []*types.Memory) error

	// Clear drops every entry from the index.
	Clear(ctx context.Context) error

	// GetMemory returns the indexed projection for the ID, or nil when the
	// ID is not indexed. The projection never includes the embedding.
	GetMemory(ctx context.Context, id string) (*types.Memory, error)

	// GetMemoriesBatch returns indexed projections for the given IDs in a
	// single round trip; unknown IDs are skipped.
	GetMemoriesBatch(ctx context.Context, ids []string) ([]*types.Memory, error)

	// Close releases any resources held by the backend.
	Close() error
}

// VectorBackend is the derived nearest-neighbor structure over memory
// embeddings. When no embedder is configured the system runs without one:
// callers must treat an absent vector backend as an empty result set, not
// as an error.
type VectorBackend interface {
	// Dimensions returns the embedding dimensionality this backend accepts.
	Dimensions() int

	// Upsert stores or replaces the embedding for a memory.
	// An embedding whose length differs from Dimensions is invalid input.
	Upsert(ctx context.Context, id string, embedding []float32, memory *types.Memory) error

	// Remove drops an embedding, reporting whether it was present.
	Remove(ctx context.Context, id string) (bool, error)

	// Search returns up to limit IDs ordered by descending cosine
	// similarity to the query embedding.
	Search(ctx context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]ScoredID, error)

	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int, error)

	// Clear drops every stored embedding.
	Clear(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}
