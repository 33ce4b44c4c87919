package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

func TestIndexSearch_RelevanceOrdering(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	docs := map[string]string{
		"mem_cache":  "redis cache eviction policy for the session cache layer",
		"mem_db":     "postgres connection pool exhaustion during deploys",
		"mem_deploy": "blue green deploys require the cache to warm first",
	}
	for id, content := range docs {
		if err := ix.Index(ctx, newMemory(id, content)); err != nil {
			t.Fatalf("Index(%s) failed: %v", id, err)
		}
	}

	hits, err := ix.Search(ctx, "cache", nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (the documents containing the term)", len(hits))
	}
	// "cache" appears twice in mem_cache, once in mem_deploy.
	if hits[0].ID != "mem_cache" {
		t.Errorf("top hit = %s, want mem_cache", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v", hits)
	}
}

func TestIndexSearch_NoMatch(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()
	if err := ix.Index(ctx, newMemory("mem_a", "nothing relevant here")); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search(ctx, "blockchain", nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for an absent term", len(hits))
	}
}

func TestIndexSearch_FilterApplied(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	a := newMemory("mem_a", "jwt rotation decision")
	a.Tags = []string{"auth"}
	b := newMemory("mem_b", "jwt library upgrade")
	if err := ix.Index(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(ctx, b); err != nil {
		t.Fatal(err)
	}

	filter := &types.SearchFilter{Tags: []string{"auth"}}
	hits, err := ix.Search(ctx, "jwt", filter, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mem_a" {
		t.Errorf("filtered hits = %v, want only mem_a", hits)
	}
}

func TestIndexSearch_TombstonedHidden(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	m := newMemory("mem_a", "tombstoned entry about caching")
	m.Status = types.StatusTombstoned
	if err := ix.Index(ctx, m); err != nil {
		t.Fatal(err)
	}

	hits, _ := ix.Search(ctx, "caching", nil, 10)
	if len(hits) != 0 {
		t.Error("tombstoned memory surfaced in search")
	}

	hits, _ = ix.Search(ctx, "caching", &types.SearchFilter{IncludeTombstoned: true}, 10)
	if len(hits) != 1 {
		t.Error("IncludeTombstoned filter should surface the memory")
	}
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	if err := ix.Index(ctx, newMemory("mem_a", "ephemeral")); err != nil {
		t.Fatal(err)
	}

	removed, err := ix.Remove(ctx, "mem_a")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	removed, err = ix.Remove(ctx, "mem_a")
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v; want false, nil", removed, err)
	}

	hits, _ := ix.Search(ctx, "ephemeral", nil, 10)
	if len(hits) != 0 {
		t.Error("removed memory still searchable")
	}
}

// Reindex is a full rebuild: running it twice with the same input leaves
// identical search behavior, and stale entries vanish.
func TestIndexReindex_Idempotent(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	if err := ix.Index(ctx, newMemory("mem_stale", "stale leftover entry")); err != nil {
		t.Fatal(err)
	}

	fresh := []*types.Memory{
		newMemory("mem_a", "alpha entry"),
		newMemory("mem_b", "beta entry"),
	}
	for i := 0; i < 2; i++ {
		if err := ix.Reindex(ctx, fresh); err != nil {
			t.Fatalf("Reindex() run %d failed: %v", i, err)
		}
	}

	if hits, _ := ix.Search(ctx, "stale", nil, 10); len(hits) != 0 {
		t.Error("stale entry survived reindex")
	}
	if hits, _ := ix.Search(ctx, "entry", nil, 10); len(hits) != 2 {
		t.Errorf("got %d hits after reindex, want 2", len(hits))
	}
}

func TestIndexListAll_NewestFirst(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	old := newMemory("mem_old", "older")
	old.CreatedAt = old.CreatedAt.Add(-time.Hour)
	if err := ix.Index(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(ctx, newMemory("mem_new", "newer")); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.ListAll(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "mem_new" {
		t.Errorf("ListAll order = %v, want newest first", hits)
	}
}

func TestIndexProjection_NoEmbedding(t *testing.T) {
	ix := NewIndex()
	ctx := context.Background()

	m := newMemory("mem_a", "content")
	m.Embedding = []float32{1, 2, 3}
	if err := ix.Index(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := ix.GetMemory(ctx, "mem_a")
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetMemory() returned nil")
	}
	if got.Embedding != nil {
		t.Error("index projection carries an embedding")
	}
}
