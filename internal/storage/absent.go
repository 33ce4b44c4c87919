package storage

import (
	"context"

	"github.com/scrypster/engram/pkg/types"
)

// AbsentVector stands in when no vector backend is configured. Semantic
// search degrades gracefully: searches return no results, writes are
// accepted and dropped, and hybrid retrieval falls back to lexical ranking.
type AbsentVector struct{}

var _ VectorBackend = AbsentVector{}

func (AbsentVector) Dimensions() int { return 0 }

func (AbsentVector) Upsert(ctx context.Context, id string, embedding []float32, memory *types.Memory) error {
	return nil
}

func (AbsentVector) Remove(ctx context.Context, id string) (bool, error) { return false, nil }

func (AbsentVector) Search(ctx context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]ScoredID, error) {
	return nil, nil
}

func (AbsentVector) Count(ctx context.Context) (int, error) { return 0, nil }

func (AbsentVector) Clear(ctx context.Context) error { return nil }

func (AbsentVector) Close() error { return nil }
