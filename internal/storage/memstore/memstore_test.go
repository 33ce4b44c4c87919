package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

func newMemory(id, content string) *types.Memory {
	now := time.Now().UTC()
	return &types.Memory{
		ID:        id,
		Content:   content,
		Namespace: types.NamespaceDecisions,
		Status:    types.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	m := newMemory("mem_a", "use postgres for the analytics store")
	m.Tags = []string{"db"}
	m.Embedding = []float32{0.1, 0.2, 0.3}

	if err := p.Store(ctx, m); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, err := p.Get(ctx, "mem_a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for a stored memory")
	}
	if got.Content != m.Content || len(got.Tags) != 1 || len(got.Embedding) != 3 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

// Missing IDs are nil/false, never errors.
func TestPersistence_MissingIsNotAnError(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	got, err := p.Get(ctx, "mem_nope")
	if err != nil || got != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", got, err)
	}

	existed, err := p.Delete(ctx, "mem_nope")
	if err != nil || existed {
		t.Errorf("Delete(missing) = %v, %v; want false, nil", existed, err)
	}

	ok, err := p.Exists(ctx, "mem_nope")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}

func TestPersistence_StoreIsLastWriteWins(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	if err := p.Store(ctx, newMemory("mem_a", "first version")); err != nil {
		t.Fatal(err)
	}
	if err := p.Store(ctx, newMemory("mem_a", "second version")); err != nil {
		t.Fatal(err)
	}

	got, _ := p.Get(ctx, "mem_a")
	if got.Content != "second version" {
		t.Errorf("Content = %q, want the later write", got.Content)
	}
	if n, _ := p.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1 after overwrite", n)
	}
}

// Stored memories must be isolated from later caller mutation.
func TestPersistence_DeepCopies(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	m := newMemory("mem_a", "original")
	m.Tags = []string{"keep"}
	if err := p.Store(ctx, m); err != nil {
		t.Fatal(err)
	}

	m.Content = "mutated"
	m.Tags[0] = "mutated"

	got, _ := p.Get(ctx, "mem_a")
	if got.Content != "original" || got.Tags[0] != "keep" {
		t.Errorf("stored memory aliased caller data: %+v", got)
	}

	got.Content = "reader mutation"
	again, _ := p.Get(ctx, "mem_a")
	if again.Content != "original" {
		t.Error("returned memory aliased stored data")
	}
}

func TestPersistence_GetBatchPreservesOrderSkipsUnknown(t *testing.T) {
	p := NewPersistence()
	ctx := context.Background()

	for _, id := range []string{"mem_a", "mem_b", "mem_c"} {
		if err := p.Store(ctx, newMemory(id, "content "+id)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := p.GetBatch(ctx, []string{"mem_c", "mem_missing", "mem_a"})
	if err != nil {
		t.Fatalf("GetBatch() failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "mem_c" || got[1].ID != "mem_a" {
		t.Errorf("GetBatch order/content wrong: %v", got)
	}
}
