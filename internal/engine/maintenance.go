package engine

import (
	"context"

	"github.com/scrypster/engram/internal/routing"
	"github.com/scrypster/engram/pkg/types"
)

// Reindex rebuilds both derived stores for a scope from the authoritative
// records. It is idempotent: running it twice leaves the same state as
// running it once. Tombstoned memories are excluded, which also repairs any
// tombstone that leaked into an index through a partial failure.
//
// Returns the number of memories indexed.
func (e *Engine) Reindex(ctx context.Context, scope routing.Scope) (int, error) {
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return 0, err
	}

	ids, err := set.Persistence.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	memories, err := set.Persistence.GetBatch(ctx, ids)
	if err != nil {
		return 0, err
	}

	live := make([]*types.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Status == types.StatusTombstoned {
			continue
		}
		live = append(live, m)
	}

	if err := set.Index.Reindex(ctx, live); err != nil {
		return 0, err
	}

	if err := set.Vector.Clear(ctx); err != nil {
		return 0, err
	}
	dims := set.Vector.Dimensions()
	for _, m := range live {
		vec := m.Embedding
		if vec == nil && e.embedder != nil {
			if embedded, err := e.embedder.Embed(ctx, m.Content); err == nil {
				vec = embedded
			}
		}
		if vec == nil || (dims > 0 && len(vec) != dims) {
			continue
		}
		if err := set.Vector.Upsert(ctx, m.ID, vec, m); err != nil {
			e.logger.Printf("vector reindex failed for %s: %v", m.ID, err)
		}
	}

	e.logger.Printf("reindexed %d memories in scope %s", len(live), scope)
	return len(live), nil
}

// Stats reports store sizes and breaker states for a scope.
func (e *Engine) Stats(ctx context.Context, scope routing.Scope) (*ScopeStats, error) {
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}

	stats := &ScopeStats{Scope: scope}

	if stats.MemoryCount, err = set.Persistence.Count(ctx); err != nil {
		return nil, err
	}
	if stats.EmbeddingCount, err = set.Vector.Count(ctx); err != nil {
		return nil, err
	}

	ids, err := set.Persistence.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	memories, err := set.Persistence.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		if m.Status == types.StatusTombstoned {
			stats.TombstonedCount++
		}
	}

	stats.PersistenceState = breakerState(set.Persistence)
	stats.IndexState = breakerState(set.Index)
	stats.VectorState = breakerState(set.Vector)
	return stats, nil
}

func breakerState(backend any) string {
	if b, ok := backend.(interface{ BreakerState() string }); ok {
		return b.BreakerState()
	}
	return "unknown"
}
