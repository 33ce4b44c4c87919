package types

import (
	"testing"
	"time"
)

func TestParseQuery_FreeTextOnly(t *testing.T) {
	filter, text := ParseQuery("jwt token rotation")
	if text != "jwt token rotation" {
		t.Errorf("free text = %q, want %q", text, "jwt token rotation")
	}
	if !filter.IsEmpty() {
		t.Errorf("expected empty filter, got %+v", filter)
	}
}

func TestParseQuery_Namespace(t *testing.T) {
	filter, text := ParseQuery("ns:decisions auth flow")
	if len(filter.Namespaces) != 1 || filter.Namespaces[0] != NamespaceDecisions {
		t.Errorf("Namespaces = %v, want [decisions]", filter.Namespaces)
	}
	if text != "auth flow" {
		t.Errorf("free text = %q, want %q", text, "auth flow")
	}
}

func TestParseQuery_Tags(t *testing.T) {
	// Comma within one token is OR; repeated tokens are AND; "-" excludes.
	filter, _ := ParseQuery("tag:rust,go tag:backend -tag:wip")
	if len(filter.AnyTags) != 2 {
		t.Errorf("AnyTags = %v, want [rust go]", filter.AnyTags)
	}
	if len(filter.Tags) != 1 || filter.Tags[0] != "backend" {
		t.Errorf("Tags = %v, want [backend]", filter.Tags)
	}
	if len(filter.ExcludeTags) != 1 || filter.ExcludeTags[0] != "wip" {
		t.Errorf("ExcludeTags = %v, want [wip]", filter.ExcludeTags)
	}
}

func TestParseQuery_StatusTombstonedOptsIn(t *testing.T) {
	filter, _ := ParseQuery("status:tombstoned")
	if !filter.IncludeTombstoned {
		t.Error("status:tombstoned should set IncludeTombstoned")
	}
	if len(filter.Statuses) != 1 || filter.Statuses[0] != StatusTombstoned {
		t.Errorf("Statuses = %v, want [tombstoned]", filter.Statuses)
	}
}

func TestParseQuery_RelativeTime(t *testing.T) {
	filter, _ := ParseQuery("since:7d")
	if filter.CreatedAfter.IsZero() {
		t.Fatal("since:7d should set CreatedAfter")
	}
	want := time.Now().AddDate(0, 0, -7)
	if diff := filter.CreatedAfter.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("CreatedAfter off by %v from expected", diff)
	}
}

func TestParseQuery_AbsoluteDate(t *testing.T) {
	filter, _ := ParseQuery("until:2026-03-01")
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !filter.CreatedBefore.Equal(want) {
		t.Errorf("CreatedBefore = %v, want %v", filter.CreatedBefore, want)
	}
}

func TestParseQuery_Domains(t *testing.T) {
	filter, _ := ParseQuery("org:acme project:widgets")
	if len(filter.Domains) != 2 {
		t.Fatalf("Domains = %v, want two entries", filter.Domains)
	}
	if filter.Domains[0].Organization != "acme" || filter.Domains[1].Project != "widgets" {
		t.Errorf("unexpected domains %v", filter.Domains)
	}
}

func TestParseQuery_Score(t *testing.T) {
	filter, _ := ParseQuery("score:0.5 cache")
	if filter.MinScore != 0.5 {
		t.Errorf("MinScore = %v, want 0.5", filter.MinScore)
	}

	// Out-of-range scores are ignored rather than erroring.
	filter, _ = ParseQuery("score:1.5")
	if filter.MinScore != 0 {
		t.Errorf("MinScore = %v, want 0 for out-of-range input", filter.MinScore)
	}
}

func TestParseQuery_UnknownKeyIgnored(t *testing.T) {
	filter, text := ParseQuery("frobnicate:yes cache invalidation")
	if !filter.IsEmpty() {
		t.Errorf("unknown key should not set filter fields, got %+v", filter)
	}
	if text != "cache invalidation" {
		t.Errorf("free text = %q, want %q", text, "cache invalidation")
	}
}

func TestParseQuery_InvalidNamespaceIgnored(t *testing.T) {
	filter, _ := ParseQuery("ns:nonsense query")
	if len(filter.Namespaces) != 0 {
		t.Errorf("invalid namespace should be dropped, got %v", filter.Namespaces)
	}
}

func TestParseQuery_BareNegatedWordStaysInQuery(t *testing.T) {
	_, text := ParseQuery("-important note")
	if text != "-important note" {
		t.Errorf("free text = %q, want %q", text, "-important note")
	}
}
