package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

func newTestVector(t *testing.T, dimensions int) *VectorBackend {
	t.Helper()
	v, err := NewVectorBackend(filepath.Join(t.TempDir(), "vectors.db"), dimensions)
	if err != nil {
		t.Fatalf("NewVectorBackend() failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"mismatched lengths", []float32{1, 2}, []float32{1}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVectorSearch_RanksBySimilarity(t *testing.T) {
	v := newTestVector(t, 3)
	ctx := context.Background()

	upserts := map[string][]float32{
		"mem_aligned":    {1, 0, 0},
		"mem_diagonal":   {1, 1, 0},
		"mem_orthogonal": {0, 0, 1},
	}
	for id, vec := range upserts {
		if err := v.Upsert(ctx, id, vec, testMemory(id, "content")); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", id, err)
		}
	}

	hits, err := v.Search(ctx, []float32{1, 0, 0}, nil, 2)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (limit applied)", len(hits))
	}
	if hits[0].ID != "mem_aligned" || hits[1].ID != "mem_diagonal" {
		t.Errorf("ordering = %v, want mem_aligned then mem_diagonal", hits)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("top similarity = %v, want 1.0", hits[0].Score)
	}
}

func TestVectorUpsert_DimensionValidation(t *testing.T) {
	v := newTestVector(t, 4)
	err := v.Upsert(context.Background(), "mem_a", []float32{1, 2}, testMemory("mem_a", "x"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}

	_, err = v.Search(context.Background(), []float32{1}, nil, 5)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("query dimension err = %v, want ErrInvalidInput", err)
	}
}

func TestVectorUpsert_Replaces(t *testing.T) {
	v := newTestVector(t, 2)
	ctx := context.Background()

	if err := v.Upsert(ctx, "mem_a", []float32{1, 0}, testMemory("mem_a", "x")); err != nil {
		t.Fatal(err)
	}
	if err := v.Upsert(ctx, "mem_a", []float32{0, 1}, testMemory("mem_a", "x")); err != nil {
		t.Fatal(err)
	}

	if n, _ := v.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1 after replace", n)
	}

	hits, _ := v.Search(ctx, []float32{0, 1}, nil, 1)
	if len(hits) != 1 || math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("replaced embedding not in effect: %v", hits)
	}
}

func TestVectorSearch_FilterPushdown(t *testing.T) {
	v := newTestVector(t, 2)
	ctx := context.Background()

	sec := testMemory("mem_sec", "x")
	sec.Namespace = types.NamespaceSecurity
	if err := v.Upsert(ctx, "mem_sec", []float32{1, 0}, sec); err != nil {
		t.Fatal(err)
	}
	if err := v.Upsert(ctx, "mem_other", []float32{1, 0}, testMemory("mem_other", "y")); err != nil {
		t.Fatal(err)
	}

	filter := &types.SearchFilter{Namespaces: []types.Namespace{types.NamespaceSecurity}}
	hits, err := v.Search(ctx, []float32{1, 0}, filter, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mem_sec" {
		t.Errorf("filtered hits = %v, want only mem_sec", hits)
	}
}

func TestVectorTombstonedHidden(t *testing.T) {
	v := newTestVector(t, 2)
	ctx := context.Background()

	dead := testMemory("mem_dead", "x")
	dead.Status = types.StatusTombstoned
	if err := v.Upsert(ctx, "mem_dead", []float32{1, 0}, dead); err != nil {
		t.Fatal(err)
	}

	hits, _ := v.Search(ctx, []float32{1, 0}, nil, 10)
	if len(hits) != 0 {
		t.Error("tombstoned embedding surfaced in search")
	}
}

func TestVectorRemoveAndClear(t *testing.T) {
	v := newTestVector(t, 2)
	ctx := context.Background()

	if err := v.Upsert(ctx, "mem_a", []float32{1, 0}, testMemory("mem_a", "x")); err != nil {
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

	if err := v.Upsert(ctx, "mem_b", []float32{0, 1}, testMemory("mem_b", "y")); err != nil {
		t.Fatal(err)
	}
	if err := v.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if n, _ := v.Count(ctx); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
