package types

import (
	"path"
	"time"
)

// SearchFilter narrows a search or list operation by memory attributes.
// All criteria are conjunctive across fields; within a field the semantics
// are documented per field. The zero value matches everything except
// tombstoned memories, which require IncludeTombstoned.
type SearchFilter struct {
	// Namespaces matches memories in any of the given namespaces (OR).
	Namespaces []Namespace `json:"namespaces,omitempty"`

	// Domains matches memories whose domain is contained by any entry (OR).
	Domains []Domain `json:"domains,omitempty"`

	// Statuses matches memories in any of the given statuses (OR).
	// When empty, every non-tombstoned status matches.
	Statuses []MemoryStatus `json:"statuses,omitempty"`

	// Tags must all be present on the memory (AND).
	Tags []string `json:"tags,omitempty"`

	// AnyTags requires at least one of the tags to be present (OR).
	AnyTags []string `json:"any_tags,omitempty"`

	// ExcludeTags rejects memories carrying any of these tags.
	ExcludeTags []string `json:"exclude_tags,omitempty"`

	// SourceGlob matches the memory source against a glob pattern
	// (path.Match syntax, e.g. "src/*").
	SourceGlob string `json:"source_glob,omitempty"`

	// CreatedAfter and CreatedBefore bound the creation time.
	// Zero values leave the corresponding bound open.
	CreatedAfter  time.Time `json:"created_after,omitempty"`
	CreatedBefore time.Time `json:"created_before,omitempty"`

	// MinScore drops hits whose normalized score falls below this value.
	// Applied by the fusion engine, not by Matches.
	MinScore float64 `json:"min_score,omitempty"`

	// IncludeTombstoned includes soft-deleted memories in results.
	IncludeTombstoned bool `json:"include_tombstoned,omitempty"`
}

// Matches reports whether the memory satisfies every filter criterion.
// MinScore is excluded: it acts on scores, not on memory attributes.
func (f *SearchFilter) Matches(m *Memory) bool {
	if m == nil {
		return false
	}

	if m.Status == StatusTombstoned && !f.IncludeTombstoned {
		return false
	}

	if len(f.Namespaces) > 0 && !containsNamespace(f.Namespaces, m.Namespace) {
		return false
	}

	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, m.Status) {
		return false
	}

	if len(f.Domains) > 0 {
		matched := false
		for _, d := range f.Domains {
			if d.Contains(m.Domain) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, tag := range f.Tags {
		if !m.HasTag(tag) {
			return false
		}
	}

	if len(f.AnyTags) > 0 {
		matched := false
		for _, tag := range f.AnyTags {
			if m.HasTag(tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, tag := range f.ExcludeTags {
		if m.HasTag(tag) {
			return false
		}
	}

	if f.SourceGlob != "" {
		// path.Match only errors on malformed patterns; a malformed
		// pattern matches nothing rather than failing the search.
		ok, err := path.Match(f.SourceGlob, m.Source)
		if err != nil || !ok {
			return false
		}
	}

	if !f.CreatedAfter.IsZero() && !m.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !m.CreatedAt.Before(f.CreatedBefore) {
		return false
	}

	return true
}

// IsEmpty reports whether the filter imposes no attribute constraints.
func (f *SearchFilter) IsEmpty() bool {
	return len(f.Namespaces) == 0 &&
		len(f.Domains) == 0 &&
		len(f.Statuses) == 0 &&
		len(f.Tags) == 0 &&
		len(f.AnyTags) == 0 &&
		len(f.ExcludeTags) == 0 &&
		f.SourceGlob == "" &&
		f.CreatedAfter.IsZero() &&
		f.CreatedBefore.IsZero() &&
		f.MinScore == 0 &&
		!f.IncludeTombstoned
}

// And returns a filter equivalent to the conjunction of f and other.
// Searching with the combined filter always yields a subset of searching
// with either operand alone.
func (f *SearchFilter) And(other *SearchFilter) *SearchFilter {
	if other == nil {
		c := *f
		return &c
	}

	combined := &SearchFilter{
		Namespaces:  intersectNamespaces(f.Namespaces, other.Namespaces),
		Domains:     append(append([]Domain{}, f.Domains...), other.Domains...),
		Statuses:    intersectStatuses(f.Statuses, other.Statuses),
		Tags:        append(append([]string{}, f.Tags...), other.Tags...),
		AnyTags:     f.AnyTags,
		ExcludeTags: append(append([]string{}, f.ExcludeTags...), other.ExcludeTags...),
		SourceGlob:  f.SourceGlob,
	}

	if len(other.AnyTags) > 0 {
		// AND of two OR-groups cannot be flattened into one OR-group;
		// fold the second group into required tags when it is a singleton,
		// otherwise keep the stricter group.
		if len(combined.AnyTags) == 0 {
			combined.AnyTags = other.AnyTags
		} else if len(other.AnyTags) == 1 {
			combined.Tags = append(combined.Tags, other.AnyTags[0])
		} else if len(combined.AnyTags) == 1 {
			combined.Tags = append(combined.Tags, combined.AnyTags[0])
			combined.AnyTags = other.AnyTags
		}
	}

	if other.SourceGlob != "" {
		combined.SourceGlob = other.SourceGlob
	}

	combined.CreatedAfter = laterOf(f.CreatedAfter, other.CreatedAfter)
	combined.CreatedBefore = earlierOf(f.CreatedBefore, other.CreatedBefore)

	if other.MinScore > f.MinScore {
		combined.MinScore = other.MinScore
	} else {
		combined.MinScore = f.MinScore
	}

	// Tombstones are visible only when both sides allow them.
	combined.IncludeTombstoned = f.IncludeTombstoned && other.IncludeTombstoned

	return combined
}

func containsNamespace(list []Namespace, n Namespace) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func containsStatus(list []MemoryStatus, s MemoryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// intersectNamespaces returns the intersection of two OR-groups, treating an
// empty group as "all".
func intersectNamespaces(a, b []Namespace) []Namespace {
	if len(a) == 0 {
		return append([]Namespace{}, b...)
	}
	if len(b) == 0 {
		return append([]Namespace{}, a...)
	}
	var out []Namespace
	for _, n := range a {
		if containsNamespace(b, n) {
			out = append(out, n)
		}
	}
	if out == nil {
		// Disjoint OR-groups: the conjunction matches nothing. An impossible
		// namespace keeps the subset property without a special case.
		out = []Namespace{Namespace("")}
	}
	return out
}

func intersectStatuses(a, b []MemoryStatus) []MemoryStatus {
	if len(a) == 0 {
		return append([]MemoryStatus{}, b...)
	}
	if len(b) == 0 {
		return append([]MemoryStatus{}, a...)
	}
	var out []MemoryStatus
	for _, s := range a {
		if containsStatus(b, s) {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []MemoryStatus{MemoryStatus("")}
	}
	return out
}

func laterOf(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
