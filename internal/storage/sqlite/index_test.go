package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scrypster/engram/pkg/types"
)

func newTestIndex(t *testing.T) *IndexBackend {
	t.Helper()
	ix, err := NewIndexBackend(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewIndexBackend() failed: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func mustIndex(t *testing.T, ix *IndexBackend, m *types.Memory) {
	t.Helper()
	if err := ix.Index(context.Background(), m); err != nil {
		t.Fatalf("Index(%s) failed: %v", m.ID, err)
	}
}

func TestIndexSearch_BasicMatch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustIndex(t, ix, testMemory("mem_fox", "the quick brown fox jumps over the lazy dog"))
	mustIndex(t, ix, testMemory("mem_eng", "completely unrelated content about machinery"))

	hits, err := ix.Search(ctx, "fox", nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mem_fox" {
		t.Errorf("hits = %v, want only mem_fox", hits)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want positive -bm25() magnitude", hits[0].Score)
	}
}

func TestIndexSearch_NoMatch(t *testing.T) {
	ix := newTestIndex(t)
	mustIndex(t, ix, testMemory("mem_a", "nothing about the query topic"))

	hits, err := ix.Search(context.Background(), "zeppelin", nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for an absent term", len(hits))
	}
}

// Re-indexing the same ID must replace the old token list, not append to it.
func TestIndexSearch_ReplacedContentNotSearchable(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustIndex(t, ix, testMemory("mem_a", "original topic kubernetes"))
	mustIndex(t, ix, testMemory("mem_a", "replacement topic terraform"))

	if hits, _ := ix.Search(ctx, "kubernetes", nil, 10); len(hits) != 0 {
		t.Error("stale tokens from replaced content still match")
	}
	if hits, _ := ix.Search(ctx, "terraform", nil, 10); len(hits) != 1 {
		t.Error("replacement content not searchable")
	}
}

func TestIndexSearch_FilterAppliedAfterMatch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	tagged := testMemory("mem_tagged", "authentication token rotation policy")
	tagged.Tags = []string{"auth"}
	mustIndex(t, ix, tagged)
	mustIndex(t, ix, testMemory("mem_plain", "authentication middleware ordering"))

	filter := &types.SearchFilter{Tags: []string{"auth"}}
	hits, err := ix.Search(ctx, "authentication", filter, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "mem_tagged" {
		t.Errorf("hits = %v, want only mem_tagged", hits)
	}
}

// Hostile query input must not produce FTS5 syntax errors.
func TestIndexSearch_HostileInput(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	mustIndex(t, ix, testMemory("mem_a", "plain searchable content"))

	for _, q := range []string{
		`"unbalanced quote`,
		`NEAR( OR AND`,
		`a:b:c (*)`,
		`-"-^?`,
	} {
		if _, err := ix.Search(ctx, q, nil, 10); err != nil {
			t.Errorf("Search(%q) failed: %v", q, err)
		}
	}
}

// Punctuation inside a word must not reach FTS5 as a malformed bareword.
func TestIndexSearch_PunctuatedQuery(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustIndex(t, ix, testMemory("mem_sdk", "upgrade the sdk to v1.2 for the tls fixes"))

	hits, err := ix.Search(ctx, "v1.2", nil, 10)
	if err != nil {
		t.Fatalf("Search(v1.2) failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits for a dotted version query, want 1", len(hits))
	}

	for _, q := range []string{"v1.2, v1.3?", "config.yaml", "foo,bar"} {
		if _, err := ix.Search(ctx, q, nil, 10); err != nil {
			t.Errorf("Search(%q) failed: %v", q, err)
		}
	}
}

func TestIndexSearch_PrefixMatching(t *testing.T) {
	ix := newTestIndex(t)
	mustIndex(t, ix, testMemory("mem_a", "refactoring the authorization layer"))

	hits, err := ix.Search(context.Background(), "author", nil, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("prefix query found %d hits, want 1", len(hits))
	}
}

func TestIndexReindex_ReplacesEverything(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustIndex(t, ix, testMemory("mem_stale", "stale entry to disappear"))

	fresh := []*types.Memory{
		testMemory("mem_a", "fresh alpha entry"),
		testMemory("mem_b", "fresh beta entry"),
	}
	for i := 0; i < 2; i++ {
		if err := ix.Reindex(ctx, fresh); err != nil {
			t.Fatalf("Reindex() run %d failed: %v", i, err)
		}
	}

	if hits, _ := ix.Search(ctx, "stale", nil, 10); len(hits) != 0 {
		t.Error("stale entry survived reindex")
	}
	hits, _ := ix.Search(ctx, "fresh", nil, 10)
	if len(hits) != 2 {
		t.Errorf("got %d hits after reindex, want 2", len(hits))
	}
}

func TestIndexRemove(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	mustIndex(t, ix, testMemory("mem_a", "transient"))

	removed, err := ix.Remove(ctx, "mem_a")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	removed, _ = ix.Remove(ctx, "mem_a")
	if removed {
		t.Error("second Remove() reported presence")
	}
	if hits, _ := ix.Search(ctx, "transient", nil, 10); len(hits) != 0 {
		t.Error("removed entry still searchable")
	}
}

func TestIndexListAll_NewestFirst(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	older := testMemory("mem_old", "older entry")
	older.CreatedAt = older.CreatedAt.AddDate(0, 0, -1)
	mustIndex(t, ix, older)
	mustIndex(t, ix, testMemory("mem_new", "newer entry"))

	hits, err := ix.ListAll(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "mem_new" {
		t.Errorf("ListAll = %v, want newest first", hits)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cache invalidation", "cache* OR invalidation*"},
		{`"quoted"`, "quoted*"},
		{"v1.2", "v1*"},
		{"don't panic", "don* OR panic*"},
		{"1.2.3", "1"},
		{"a", "a"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFTSQuery(tc.in); got != tc.want {
			t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
