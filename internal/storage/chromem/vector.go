// Package chromem implements the vector backend on chromem-go, a pure Go
// embedded vector database. It is an alternative to the SQLite brute-force
// backend for installs that want persisted, collection-based vector storage
// without a database server.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.VectorBackend = (*VectorBackend)(nil)

const collectionName = "engram-memories"

// VectorBackend stores embeddings in a chromem-go collection. The memory's
// attribute projection travels in document metadata so search filters can
// be applied without consulting the persistence layer.
type VectorBackend struct {
	db         *chromemgo.DB
	dimensions int

	// mu guards collection, which is swapped wholesale on Clear.
	mu         sync.RWMutex
	collection *chromemgo.Collection
}

// NewVectorBackend creates a vector backend persisted under dir. An empty
// dir keeps the collection purely in memory, which the tests rely on.
func NewVectorBackend(dir string, dimensions int) (*VectorBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidInput, dimensions)
	}

	var db *chromemgo.DB
	var err error
	if dir == "" {
		db = chromemgo.NewDB()
	} else {
		db, err = chromemgo.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: open %s: %w", dir, err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding
	// function is registered with the collection.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}

	return &VectorBackend{
		db:         db,
		dimensions: dimensions,
		collection: collection,
	}, nil
}

// Dimensions returns the accepted embedding dimensionality.
func (v *VectorBackend) Dimensions() int { return v.dimensions }

// Upsert stores or replaces the embedding for a memory.
func (v *VectorBackend) Upsert(ctx context.Context, id string, embedding []float32, memory *types.Memory) error {
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

	doc := chromemgo.Document{
		ID:        id,
		Content:   memory.Content,
		Embedding: append([]float32{}, embedding...),
		Metadata:  projectionMetadata(memory),
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.collection.AddDocument(ctx, doc); err != nil {
		return storage.OpFailed("vector.upsert", err)
	}
	return nil
}

// Remove drops an embedding, reporting whether it was present. chromem's
// Delete is silent about unknown IDs, so presence is inferred from the
// collection size.
func (v *VectorBackend) Remove(ctx context.Context, id string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	before := v.collection.Count()
	if err := v.collection.Delete(ctx, nil, nil, id); err != nil {
		return false, storage.OpFailed("vector.remove", err)
	}
	return v.collection.Count() < before, nil
}

// Search ranks stored embeddings by cosine similarity, best first.
func (v *VectorBackend) Search(ctx context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
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

	// chromem rejects nResults greater than the collection size, so fetch
	// everything available up to an over-fetch budget and filter locally.
	total := v.collection.Count()
	if total == 0 {
		return nil, nil
	}
	fetch := limit * 4
	if fetch > total {
		fetch = total
	}

	results, err := v.collection.QueryEmbedding(ctx, queryEmbedding, fetch, nil, nil)
	if err != nil {
		return nil, storage.OpFailed("vector.search", err)
	}

	var out []storage.ScoredID
	for _, r := range results {
		m := projectionFromMetadata(r.ID, r.Content, r.Metadata)
		if !filter.Matches(m) {
			continue
		}
		out = append(out, storage.ScoredID{ID: r.ID, Score: float64(r.Similarity)})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of stored embeddings.
func (v *VectorBackend) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.collection.Count(), nil
}

// Clear drops every stored embedding by recreating the collection.
func (v *VectorBackend) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.db.DeleteCollection(collectionName); err != nil {
		return storage.OpFailed("vector.clear", err)
	}
	collection, err := v.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return storage.OpFailed("vector.clear", err)
	}
	v.collection = collection
	return nil
}

// Close is a no-op; chromem flushes on write.
func (v *VectorBackend) Close() error { return nil }

// projectionMetadata flattens the filterable memory attributes into chromem
// document metadata (string-valued by API contract).
func projectionMetadata(m *types.Memory) map[string]string {
	return map[string]string{
		"namespace":    string(m.Namespace),
		"organization": m.Domain.Organization,
		"project":      m.Domain.Project,
		"repository":   m.Domain.Repository,
		"status":       string(m.Status),
		"tags":         strings.Join(m.Tags, ","),
		"source":       m.Source,
		"session_id":   m.SessionID,
		"created_at":   strconv.FormatInt(m.CreatedAt.UnixNano(), 10),
		"updated_at":   strconv.FormatInt(m.UpdatedAt.UnixNano(), 10),
	}
}

func projectionFromMetadata(id, content string, meta map[string]string) *types.Memory {
	m := &types.Memory{
		ID:        id,
		Content:   content,
		Namespace: types.Namespace(meta["namespace"]),
		Status:    types.MemoryStatus(meta["status"]),
		Source:    meta["source"],
		SessionID: meta["session_id"],
		Domain: types.Domain{
			Organization: meta["organization"],
			Project:      meta["project"],
			Repository:   meta["repository"],
		},
	}
	if meta["tags"] != "" {
		m.Tags = strings.Split(meta["tags"], ",")
	}
	if ns, err := strconv.ParseInt(meta["created_at"], 10, 64); err == nil {
		m.CreatedAt = time.Unix(0, ns)
	}
	if ns, err := strconv.ParseInt(meta["updated_at"], 10, 64); err == nil {
		m.UpdatedAt = time.Unix(0, ns)
	}
	return m
}
