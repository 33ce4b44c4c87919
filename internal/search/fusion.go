// Package search implements the fusion and ranking engine that merges the
// lexical and semantic rankings into one deterministic, normalized result
// ordering using Reciprocal Rank Fusion.
package search

import (
	"sort"

	"github.com/scrypster/engram/internal/storage"
)

// DefaultRRFK is the fusion constant k in the 1/(k+rank) contribution.
// 60 de-emphasizes rank-1 dominance; it is a tuning parameter, not an
// invariant.
const DefaultRRFK = 60.0

// FusedHit is a candidate produced by fusing the two source rankings,
// before filtering and normalization.
type FusedHit struct {
	ID string

	// RawScore is the sum of the per-list 1/(k+rank) contributions.
	RawScore float64

	// LexRank and VecRank are 1-based ranks within the source lists;
	// 0 means the ID was absent from that list.
	LexRank int
	VecRank int

	// BM25Score and VectorScore carry the backend-native magnitudes.
	BM25Score   float64
	VectorScore float64
}

// Fuse merges a lexical and a semantic ranking with Reciprocal Rank Fusion.
//
// Both inputs must already be sorted descending by their own backend's
// score. Each ID contributes 1/(k+rank) per list it appears in; absent IDs
// contribute 0 for that list. The union is sorted by raw score descending
// with deterministic tie-breaking: first by original lexical rank (IDs the
// lexical backend ranked at all win over IDs it never saw), then by ID.
//
// Given fixed inputs and k, the output ordering is stable across runs.
func Fuse(lexical, vector []storage.ScoredID, k float64) []FusedHit {
	if k <= 0 {
		k = DefaultRRFK
	}

	hits := make(map[string]*FusedHit, len(lexical)+len(vector))

	for i, s := range lexical {
		rank := i + 1
		hits[s.ID] = &FusedHit{
			ID:        s.ID,
			RawScore:  1.0 / (k + float64(rank)),
			LexRank:   rank,
			BM25Score: s.Score,
		}
	}

	for i, s := range vector {
		rank := i + 1
		contribution := 1.0 / (k + float64(rank))
		if h, ok := hits[s.ID]; ok {
			h.RawScore += contribution
			h.VecRank = rank
			h.VectorScore = s.Score
		} else {
			hits[s.ID] = &FusedHit{
				ID:          s.ID,
				RawScore:    contribution,
				VecRank:     rank,
				VectorScore: s.Score,
			}
		}
	}

	fused := make([]FusedHit, 0, len(hits))
	for _, h := range hits {
		fused = append(fused, *h)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.RawScore != b.RawScore {
			return a.RawScore > b.RawScore
		}
		if a.LexRank != b.LexRank {
			// Lower lexical rank wins; unranked (0) sorts last.
			if a.LexRank == 0 {
				return false
			}
			if b.LexRank == 0 {
				return true
			}
			return a.LexRank < b.LexRank
		}
		return a.ID < b.ID
	})

	return fused
}

// SingleSource converts one backend ranking into fused hits without mixing,
// for text-only and vector-only search modes. Scores still pass through
// the 1/(k+rank) transform so downstream normalization behaves the same in
// every mode.
func SingleSource(ranked []storage.ScoredID, k float64, lexical bool) []FusedHit {
	if k <= 0 {
		k = DefaultRRFK
	}
	fused := make([]FusedHit, 0, len(ranked))
	for i, s := range ranked {
		rank := i + 1
		h := FusedHit{
			ID:       s.ID,
			RawScore: 1.0 / (k + float64(rank)),
		}
		if lexical {
			h.LexRank = rank
			h.BM25Score = s.Score
		} else {
			h.VecRank = rank
			h.VectorScore = s.Score
		}
		fused = append(fused, h)
	}
	return fused
}

// Normalize rescales raw scores linearly against the maximum in the set so
// the best hit scores exactly 1.0. It must run on the post-filter,
// pre-limit set. An empty set is returned unchanged.
func Normalize(hits []FusedHit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	max := hits[0].RawScore
	for _, h := range hits[1:] {
		if h.RawScore > max {
			max = h.RawScore
		}
	}
	scores := make([]float64, len(hits))
	if max <= 0 {
		return scores
	}
	for i, h := range hits {
		scores[i] = h.RawScore / max
	}
	return scores
}
