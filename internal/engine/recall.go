package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/routing"
	"github.com/scrypster/engram/internal/search"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// candidateMultiplier over-fetches from each ranking source so fusion has a
// union wider than the final page to work with, and so the authoritative
// post-fusion filter has headroom to drop stale candidates.
const candidateMultiplier = 2

// Recall searches captured memories.
//
// The pipeline: parse filter directives out of the query, collect candidate
// rankings from the sources the mode selects, fuse them, then re-validate
// every candidate against the authoritative store before normalizing and
// truncating. Derived indexes only ever propose; persistence decides.
func (e *Engine) Recall(ctx context.Context, req RecallRequest) (*types.SearchResult, error) {
	start := time.Now()

	mode := req.Mode
	if mode == "" {
		mode = types.SearchMode(e.cfg.Search.Mode)
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown search mode %q", storage.ErrInvalidInput, req.Mode)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.Search.DefaultLimit
	}

	parsed, freeText := types.ParseQuery(req.Query)
	filter := parsed.And(req.Filter)

	set, err := e.router.Resolve(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	result, err := e.recallFrom(ctx, set, mode, freeText, filter, limit)
	if err != nil {
		return nil, err
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// recallFrom runs the search pipeline against an already resolved backend
// set. Under hybrid mode a single unavailable ranking source degrades the
// search with a warning; the error path is reserved for invalid input and
// for both sources being down at once.
func (e *Engine) recallFrom(ctx context.Context, set *routing.BackendSet, mode types.SearchMode, freeText string, filter *types.SearchFilter, limit int) (*types.SearchResult, error) {
	result := &types.SearchResult{Mode: mode}
	fetchLimit := limit * candidateMultiplier

	// An empty query means "most recent", which only the lexical side can
	// answer; there is no meaningful nearest-neighbor search without text.
	if freeText == "" {
		ranked, err := set.Index.ListAll(ctx, filter, fetchLimit)
		if err != nil {
			return nil, err
		}
		fused := search.SingleSource(ranked, e.cfg.Search.RRFK, true)
		if err := e.finishRecall(ctx, set, result, fused, filter, limit); err != nil {
			return nil, err
		}
		return result, nil
	}

	var lexical, vector []storage.ScoredID
	var lexErr, vecErr error

	if mode == types.ModeText || mode == types.ModeHybrid {
		lexical, lexErr = set.Index.Search(ctx, freeText, filter, fetchLimit)
		if lexErr != nil {
			if mode == types.ModeText {
				return nil, lexErr
			}
			// Hybrid carries on with the semantic side alone.
			e.logger.Printf("lexical search degraded: %v", lexErr)
			result.Warnings = append(result.Warnings, fmt.Sprintf("lexical ranking unavailable: %v", lexErr))
			lexical = nil
		}
	}

	if mode == types.ModeVector || mode == types.ModeHybrid {
		vector, vecErr = e.vectorCandidates(ctx, set, freeText, filter, fetchLimit)
		if vecErr != nil {
			if mode == types.ModeVector {
				return nil, vecErr
			}
			// Hybrid degrades to text-only rather than failing the search.
			e.logger.Printf("vector search degraded: %v", vecErr)
			result.Warnings = append(result.Warnings, fmt.Sprintf("semantic ranking unavailable: %v", vecErr))
			vector = nil
		}
	}

	if lexErr != nil && vecErr != nil {
		return nil, lexErr
	}

	var fused []search.FusedHit
	switch mode {
	case types.ModeText:
		fused = search.SingleSource(lexical, e.cfg.Search.RRFK, true)
	case types.ModeVector:
		fused = search.SingleSource(vector, e.cfg.Search.RRFK, false)
	default:
		fused = search.Fuse(lexical, vector, e.cfg.Search.RRFK)
	}

	if err := e.finishRecall(ctx, set, result, fused, filter, limit); err != nil {
		return nil, err
	}
	return result, nil
}

// vectorCandidates embeds the query and runs the semantic ranking. With no
// embedder configured it returns no candidates and no error: the store
// simply has no semantic opinion.
func (e *Engine) vectorCandidates(ctx context.Context, set *routing.BackendSet, text string, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if e.embedder == nil {
		return nil, nil
	}
	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, storage.OpFailed("embed query", err)
	}
	return set.Vector.Search(ctx, queryVec, filter, limit)
}

// finishRecall re-validates fused candidates against persistence, applies
// the filter authoritatively, then normalizes, applies the score floor, and
// truncates to the page size.
func (e *Engine) finishRecall(ctx context.Context, set *routing.BackendSet, result *types.SearchResult, fused []search.FusedHit, filter *types.SearchFilter, limit int) error {
	if len(fused) == 0 {
		result.Memories = []types.SearchHit{}
		return nil
	}

	ids := make([]string, len(fused))
	for i, h := range fused {
		ids[i] = h.ID
	}
	memories, err := set.Persistence.GetBatch(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	// Candidates the authoritative store no longer has, or that fail the
	// filter there, are dropped even if a stale index proposed them.
	kept := fused[:0]
	keptMemories := make([]*types.Memory, 0, len(fused))
	for _, h := range fused {
		m, ok := byID[h.ID]
		if !ok {
			continue
		}
		if filter != nil && !filter.Matches(m) {
			continue
		}
		kept = append(kept, h)
		keptMemories = append(keptMemories, m)
	}

	scores := search.Normalize(kept)

	// The score floor is applied before counting, so TotalCount is the
	// number of hits paging can actually reach.
	hits := make([]types.SearchHit, 0, len(kept))
	for i, h := range kept {
		if filter != nil && filter.MinScore > 0 && scores[i] < filter.MinScore {
			continue
		}
		hits = append(hits, types.SearchHit{
			Memory:      keptMemories[i],
			Score:       scores[i],
			RawScore:    h.RawScore,
			VectorScore: h.VectorScore,
			BM25Score:   h.BM25Score,
		})
	}
	result.TotalCount = len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	result.Memories = hits
	return nil
}
