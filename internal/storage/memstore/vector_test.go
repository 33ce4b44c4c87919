package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

func TestVectorSearch_CosineOrdering(t *testing.T) {
	v, err := NewVector(3)
	if err != nil {
		t.Fatalf("NewVector() failed: %v", err)
	}
	ctx := context.Background()

	// mem_close points almost exactly along the query; mem_far is orthogonal.
	upserts := map[string][]float32{
		"mem_close": {1, 0.1, 0},
		"mem_mid":   {1, 1, 0},
		"mem_far":   {0, 0, 1},
	}
	for id, vec := range upserts {
		if err := v.Upsert(ctx, id, vec, newMemory(id, "content")); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", id, err)
		}
	}

	hits, err := v.Search(ctx, []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	if hits[0].ID != "mem_close" || hits[1].ID != "mem_mid" || hits[2].ID != "mem_far" {
		t.Errorf("ordering = %v, want mem_close, mem_mid, mem_far", hits)
	}
	if hits[0].Score <= hits[1].Score || hits[1].Score <= hits[2].Score {
		t.Errorf("similarities not descending: %v", hits)
	}
}

func TestVectorUpsert_DimensionMismatch(t *testing.T) {
	v, _ := NewVector(4)
	err := v.Upsert(context.Background(), "mem_a", []float32{1, 2}, newMemory("mem_a", "x"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestVectorSearch_FilterApplied(t *testing.T) {
	v, _ := NewVector(2)
	ctx := context.Background()

	a := newMemory("mem_a", "x")
	a.Namespace = types.NamespacePatterns
	if err := v.Upsert(ctx, "mem_a", []float32{1, 0}, a); err != nil {
		t.Fatal(err)
	}
	if err := v.Upsert(ctx, "mem_b", []float32{1, 0}, newMemory("mem_b", "y")); err != nil {
		t.Fatal(err)
	}

	filter := &types.SearchFilter{Namespaces: []types.Namespace{types.NamespacePatterns}}
	hits, err := v.Search(ctx, []float32{1, 0}, filter, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mem_a" {
		t.Errorf("filtered hits = %v, want only mem_a", hits)
	}
}

func TestVectorRemoveAndClear(t *testing.T) {
	v, _ := NewVector(2)
	ctx := context.Background()

	if err := v.Upsert(ctx, "mem_a", []float32{1, 0}, newMemory("mem_a", "x")); err != nil {
		t.Fatal(err)
	}

	removed, err := v.Remove(ctx, "mem_a")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	removed, _ = v.Remove(ctx, "mem_a")
	if removed {
		t.Error("second Remove() reported presence")
	}

	if err := v.Upsert(ctx, "mem_b", []float32{0, 1}, newMemory("mem_b", "y")); err != nil {
		t.Fatal(err)
	}
	if err := v.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n, _ := v.Count(ctx); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
