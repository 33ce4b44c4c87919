package search

import (
	"math"
	"testing"

	"github.com/scrypster/engram/internal/storage"
)

func scored(ids ...string) []storage.ScoredID {
	out := make([]storage.ScoredID, len(ids))
	for i, id := range ids {
		out[i] = storage.ScoredID{ID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func idsOf(hits []FusedHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestFuse_UnionOfSources(t *testing.T) {
	lexical := scored("mem_a", "mem_b")
	vector := scored("mem_b", "mem_c")

	fused := Fuse(lexical, vector, DefaultRRFK)
	if len(fused) != 3 {
		t.Fatalf("fused %d hits, want union of 3", len(fused))
	}

	// mem_b appears in both lists and must outrank single-source hits.
	if fused[0].ID != "mem_b" {
		t.Errorf("top hit = %s, want mem_b", fused[0].ID)
	}
	want := 1.0/(60.0+2) + 1.0/(60.0+1)
	if math.Abs(fused[0].RawScore-want) > 1e-12 {
		t.Errorf("mem_b raw score = %v, want %v", fused[0].RawScore, want)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	lexical := scored("mem_a", "mem_b", "mem_c")
	vector := scored("mem_d", "mem_c", "mem_a")

	first := idsOf(Fuse(lexical, vector, DefaultRRFK))
	for i := 0; i < 50; i++ {
		again := idsOf(Fuse(lexical, vector, DefaultRRFK))
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d diverged at position %d: %v vs %v", i, j, first, again)
			}
		}
	}
}

// Equal raw scores break ties by lexical rank, then by ID, so the ordering
// never depends on map iteration.
func TestFuse_TieBreaks(t *testing.T) {
	// mem_x at lexical rank 1 and mem_y at vector rank 1 tie on raw score.
	fused := Fuse(scored("mem_x"), scored("mem_y"), DefaultRRFK)
	if len(fused) != 2 {
		t.Fatalf("fused %d hits, want 2", len(fused))
	}
	if fused[0].ID != "mem_x" {
		t.Errorf("lexically ranked hit should win the tie, got %s first", fused[0].ID)
	}

	// Same-rank hits within one source tie on raw score; ID decides.
	fused = Fuse(nil, scored("mem_b"), DefaultRRFK)
	single := Fuse(nil, scored("mem_a"), DefaultRRFK)
	if fused[0].RawScore != single[0].RawScore {
		t.Error("equal ranks should produce equal raw scores")
	}
}

func TestFuse_EmptyVectorEqualsLexicalOnly(t *testing.T) {
	lexical := scored("mem_a", "mem_b", "mem_c")

	fused := Fuse(lexical, nil, DefaultRRFK)
	single := SingleSource(lexical, DefaultRRFK, true)

	if len(fused) != len(single) {
		t.Fatalf("fused %d hits, single-source %d", len(fused), len(single))
	}
	for i := range fused {
		if fused[i].ID != single[i].ID || fused[i].RawScore != single[i].RawScore {
			t.Errorf("position %d: fused %+v != single %+v", i, fused[i], single[i])
		}
	}
}

func TestFuse_BothEmpty(t *testing.T) {
	if fused := Fuse(nil, nil, DefaultRRFK); len(fused) != 0 {
		t.Errorf("fusing empty inputs produced %d hits", len(fused))
	}
}

func TestFuse_ZeroKUsesDefault(t *testing.T) {
	a := Fuse(scored("mem_a"), nil, 0)
	b := Fuse(scored("mem_a"), nil, DefaultRRFK)
	if a[0].RawScore != b[0].RawScore {
		t.Errorf("k=0 raw score %v, want default-k score %v", a[0].RawScore, b[0].RawScore)
	}
}

func TestNormalize_TopHitIsOne(t *testing.T) {
	fused := Fuse(scored("mem_a", "mem_b", "mem_c"), scored("mem_b"), DefaultRRFK)
	scores := Normalize(fused)

	if scores[0] != 1.0 {
		t.Errorf("top normalized score = %v, want exactly 1.0", scores[0])
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			t.Errorf("scores not monotonic at %d: %v", i, scores)
		}
		if scores[i] <= 0 || scores[i] > 1 {
			t.Errorf("score %d = %v outside (0, 1]", i, scores[i])
		}
	}
}

func TestNormalize_SingleHit(t *testing.T) {
	scores := Normalize(SingleSource(scored("mem_a"), DefaultRRFK, true))
	if len(scores) != 1 || scores[0] != 1.0 {
		t.Errorf("single hit should normalize to [1.0], got %v", scores)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if scores := Normalize(nil); scores != nil {
		t.Errorf("normalizing nothing should return nil, got %v", scores)
	}
}

func TestSingleSource_PreservesBackendScores(t *testing.T) {
	ranked := []storage.ScoredID{{ID: "mem_a", Score: 12.5}, {ID: "mem_b", Score: 3.25}}

	lex := SingleSource(ranked, DefaultRRFK, true)
	if lex[0].BM25Score != 12.5 || lex[0].VectorScore != 0 {
		t.Errorf("lexical single-source hit carries %+v", lex[0])
	}

	vec := SingleSource(ranked, DefaultRRFK, false)
	if vec[0].VectorScore != 12.5 || vec[0].BM25Score != 0 {
		t.Errorf("vector single-source hit carries %+v", vec[0])
	}
}
