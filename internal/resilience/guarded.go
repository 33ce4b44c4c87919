package resilience

import (
	"context"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// The guarded decorators route every backend call through a Guard, so no
// component talks to a raw backend. Each wrapped instance carries its own
// breaker state.

var (
	_ storage.PersistenceBackend = (*GuardedPersistence)(nil)
	_ storage.IndexBackend       = (*GuardedIndex)(nil)
	_ storage.VectorBackend      = (*GuardedVector)(nil)
)

// GuardedPersistence wraps a persistence backend with a resilience stack.
type GuardedPersistence struct {
	backend storage.PersistenceBackend
	guard   *Guard
}

// NewGuardedPersistence wraps backend with its own guard.
func NewGuardedPersistence(backend storage.PersistenceBackend, cfg GuardConfig) *GuardedPersistence {
	return &GuardedPersistence{backend: backend, guard: NewGuard("persistence", cfg)}
}

func (g *GuardedPersistence) Store(ctx context.Context, memory *types.Memory) error {
	return g.guard.Do(ctx, func() error { return g.backend.Store(ctx, memory) })
}

func (g *GuardedPersistence) Get(ctx context.Context, id string) (*types.Memory, error) {
	var out *types.Memory
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Get(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) Delete(ctx context.Context, id string) (bool, error) {
	var out bool
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Delete(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) ListIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.ListIDs(ctx)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) GetBatch(ctx context.Context, ids []string) ([]*types.Memory, error) {
	var out []*types.Memory
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.GetBatch(ctx, ids)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) Exists(ctx context.Context, id string) (bool, error) {
	var out bool
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Exists(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) Count(ctx context.Context) (int, error) {
	var out int
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Count(ctx)
		return err
	})
	return out, err
}

func (g *GuardedPersistence) Close() error {
	return g.backend.Close()
}

// BreakerState exposes the guard's breaker state for health reporting.
func (g *GuardedPersistence) BreakerState() string { return g.guard.BreakerState() }

// GuardedIndex wraps an index backend with a resilience stack.
type GuardedIndex struct {
	backend storage.IndexBackend
	guard   *Guard
}

// NewGuardedIndex wraps backend with its own guard.
func NewGuardedIndex(backend storage.IndexBackend, cfg GuardConfig) *GuardedIndex {
	return &GuardedIndex{backend: backend, guard: NewGuard("index", cfg)}
}

func (g *GuardedIndex) Index(ctx context.Context, memory *types.Memory) error {
	return g.guard.Do(ctx, func() error { return g.backend.Index(ctx, memory) })
}

func (g *GuardedIndex) Remove(ctx context.Context, id string) (bool, error) {
	var out bool
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Remove(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedIndex) Search(ctx context.Context, query string, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	var out []storage.ScoredID
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Search(ctx, query, filter, limit)
		return err
	})
	return out, err
}

func (g *GuardedIndex) ListAll(ctx context.Context, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	var out []storage.ScoredID
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.ListAll(ctx, filter, limit)
		return err
	})
	return out, err
}

func (g *GuardedIndex) Reindex(ctx context.Context, memories []*types.Memory) error {
	return g.guard.Do(ctx, func() error { return g.backend.Reindex(ctx, memories) })
}

func (g *GuardedIndex) Clear(ctx context.Context) error {
	return g.guard.Do(ctx, func() error { return g.backend.Clear(ctx) })
}

func (g *GuardedIndex) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	var out *types.Memory
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.GetMemory(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedIndex) GetMemoriesBatch(ctx context.Context, ids []string) ([]*types.Memory, error) {
	var out []*types.Memory
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.GetMemoriesBatch(ctx, ids)
		return err
	})
	return out, err
}

func (g *GuardedIndex) Close() error {
	return g.backend.Close()
}

// BreakerState exposes the guard's breaker state for health reporting.
func (g *GuardedIndex) BreakerState() string { return g.guard.BreakerState() }

// GuardedVector wraps a vector backend with a resilience stack.
type GuardedVector struct {
	backend storage.VectorBackend
	guard   *Guard
}

// NewGuardedVector wraps backend with its own guard.
func NewGuardedVector(backend storage.VectorBackend, cfg GuardConfig) *GuardedVector {
	return &GuardedVector{backend: backend, guard: NewGuard("vector", cfg)}
}

func (g *GuardedVector) Dimensions() int {
	return g.backend.Dimensions()
}

func (g *GuardedVector) Upsert(ctx context.Context, id string, embedding []float32, memory *types.Memory) error {
	return g.guard.Do(ctx, func() error { return g.backend.Upsert(ctx, id, embedding, memory) })
}

func (g *GuardedVector) Remove(ctx context.Context, id string) (bool, error) {
	var out bool
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Remove(ctx, id)
		return err
	})
	return out, err
}

func (g *GuardedVector) Search(ctx context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	var out []storage.ScoredID
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Search(ctx, queryEmbedding, filter, limit)
		return err
	})
	return out, err
}

func (g *GuardedVector) Count(ctx context.Context) (int, error) {
	var out int
	err := g.guard.Do(ctx, func() error {
		var err error
		out, err = g.backend.Count(ctx)
		return err
	})
	return out, err
}

func (g *GuardedVector) Clear(ctx context.Context) error {
	return g.guard.Do(ctx, func() error { return g.backend.Clear(ctx) })
}

func (g *GuardedVector) Close() error {
	return g.backend.Close()
}

// BreakerState exposes the guard's breaker state for health reporting.
func (g *GuardedVector) BreakerState() string { return g.guard.BreakerState() }
