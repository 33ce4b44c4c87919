package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.IndexBackend = (*Index)(nil)

// BM25 parameters. k1 controls term-frequency saturation, b the strength
// of document-length normalization. The values are the standard Okapi
// defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type indexEntry struct {
	memory    *types.Memory // projection: never carries an embedding
	termFreqs map[string]int
	length    int
}

// Index is an in-memory BM25 lexical index.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*indexEntry
	// docFreqs counts how many indexed documents contain each term.
	docFreqs    map[string]int
	totalLength int
	order       []string
}

// NewIndex creates an empty in-memory lexical index.
func NewIndex() *Index {
	return &Index{
		entries:  make(map[string]*indexEntry),
		docFreqs: make(map[string]int),
	}
}

// Index adds or replaces a memory's lexical projection.
func (ix *Index) Index(_ context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return storage.ErrInvalidInput
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(memory.ID)
	ix.addLocked(memory)
	return nil
}

// Remove drops a memory from the index.
func (ix *Index) Remove(_ context.Context, id string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(id), nil
}

// Search scores indexed documents with Okapi BM25 and returns up to limit
// IDs, best first. Ties are broken by ID for reproducible orderings.
func (ix *Index) Search(_ context.Context, query string, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return ix.listAllSnapshot(filter, limit), nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.entries)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(ix.totalLength) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	var hits []storage.ScoredID
	for id, entry := range ix.entries {
		if !filter.Matches(entry.memory) {
			continue
		}
		score := 0.0
		for _, term := range terms {
			tf := entry.termFreqs[term]
			if tf == 0 {
				continue
			}
			df := ix.docFreqs[term]
			// Okapi BM25 idf with +1 inside the log to keep it positive
			// for terms present in most documents.
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(entry.length)/avgLen))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, storage.ScoredID{ID: id, Score: score})
		}
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

// ListAll returns up to limit IDs matching the filter, newest first, with a
// constant relevance score.
func (ix *Index) ListAll(_ context.Context, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}
	return ix.listAllSnapshot(filter, limit), nil
}

// Reindex atomically replaces the index contents. The swap happens under
// the write lock, so readers see either the old or the new state.
func (ix *Index) Reindex(_ context.Context, memories []*types.Memory) error {
	fresh := NewIndex()
	for _, m := range memories {
		if m == nil || m.ID == "" {
			continue
		}
		fresh.addLocked(m)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = fresh.entries
	ix.docFreqs = fresh.docFreqs
	ix.totalLength = fresh.totalLength
	ix.order = fresh.order
	return nil
}

// Clear drops every entry.
func (ix *Index) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]*indexEntry)
	ix.docFreqs = make(map[string]int)
	ix.totalLength = 0
	ix.order = nil
	return nil
}

// GetMemory returns the indexed projection, or nil when absent.
func (ix *Index) GetMemory(_ context.Context, id string) (*types.Memory, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entry, ok := ix.entries[id]
	if !ok {
		return nil, nil
	}
	return cloneMemory(entry.memory), nil
}

// GetMemoriesBatch returns projections for the given IDs, skipping unknowns.
func (ix *Index) GetMemoriesBatch(_ context.Context, ids []string) ([]*types.Memory, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	memories := make([]*types.Memory, 0, len(ids))
	for _, id := range ids {
		if entry, ok := ix.entries[id]; ok {
			memories = append(memories, cloneMemory(entry.memory))
		}
	}
	return memories, nil
}

// Close is a no-op for the in-memory index.
func (ix *Index) Close() error { return nil }

func (ix *Index) addLocked(m *types.Memory) {
	tokens := tokenize(m.Content)
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	for term := range freqs {
		ix.docFreqs[term]++
	}

	projection := cloneMemory(m)
	projection.Embedding = nil

	ix.entries[m.ID] = &indexEntry{
		memory:    projection,
		termFreqs: freqs,
		length:    len(tokens),
	}
	ix.totalLength += len(tokens)
	ix.order = append(ix.order, m.ID)
}

func (ix *Index) removeLocked(id string) bool {
	entry, ok := ix.entries[id]
	if !ok {
		return false
	}
	for term := range entry.termFreqs {
		if ix.docFreqs[term] <= 1 {
			delete(ix.docFreqs, term)
		} else {
			ix.docFreqs[term]--
		}
	}
	ix.totalLength -= entry.length
	delete(ix.entries, id)
	for i, v := range ix.order {
		if v == id {
			ix.order = append(ix.order[:i], ix.order[i+1:]...)
			break
		}
	}
	return true
}

func (ix *Index) listAllSnapshot(filter *types.SearchFilter, limit int) []storage.ScoredID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type dated struct {
		id      string
		created int64
	}
	var all []dated
	for id, entry := range ix.entries {
		if filter.Matches(entry.memory) {
			all = append(all, dated{id, entry.memory.CreatedAt.UnixNano()})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].created != all[j].created {
			return all[i].created > all[j].created
		}
		return all[i].id < all[j].id
	})

	var out []storage.ScoredID
	for _, d := range all {
		out = append(out, storage.ScoredID{ID: d.id, Score: 1.0})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
