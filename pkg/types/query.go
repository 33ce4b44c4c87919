package types

import (
	"strconv"
	"strings"
	"time"
)

// ParseQuery parses the filter query mini-language into a SearchFilter plus
// the remaining free-text query terms.
//
// Syntax, by example:
//
//	ns:decisions tag:rust,go -tag:test since:7d status:active source:src/*
//
// Tokens are space-separated. A "-" prefix excludes. A comma inside a tag:
// value is OR; repeating tag: tokens is AND. Unknown keys are silently
// ignored, so newer clients can pass filters older servers do not
// understand. Tokens without a key are collected into the free-text query.
func ParseQuery(input string) (*SearchFilter, string) {
	filter := &SearchFilter{}
	var queryTerms []string

	for _, token := range strings.Fields(input) {
		negated := false
		if strings.HasPrefix(token, "-") && strings.Contains(token, ":") {
			negated = true
			token = token[1:]
		}

		key, value, found := strings.Cut(token, ":")
		if !found || value == "" {
			if negated {
				// A bare negated word has no filter meaning; keep the
				// original token as query text.
				queryTerms = append(queryTerms, "-"+token)
			} else {
				queryTerms = append(queryTerms, token)
			}
			continue
		}

		switch strings.ToLower(key) {
		case "ns", "namespace":
			if n, err := ParseNamespace(value); err == nil {
				filter.Namespaces = append(filter.Namespaces, n)
			}
		case "tag", "tags":
			parts := splitList(value)
			if negated {
				filter.ExcludeTags = append(filter.ExcludeTags, parts...)
			} else if len(parts) > 1 {
				// Comma inside one tag: token is OR.
				filter.AnyTags = append(filter.AnyTags, parts...)
			} else {
				// Repeated tag: tokens are AND.
				filter.Tags = append(filter.Tags, parts...)
			}
		case "status":
			for _, p := range splitList(value) {
				s := MemoryStatus(strings.ToLower(p))
				if s.IsValid() {
					filter.Statuses = append(filter.Statuses, s)
					if s == StatusTombstoned {
						filter.IncludeTombstoned = true
					}
				}
			}
		case "source":
			filter.SourceGlob = value
		case "since":
			if t, ok := parseTimeBound(value); ok {
				filter.CreatedAfter = t
			}
		case "until", "before":
			if t, ok := parseTimeBound(value); ok {
				filter.CreatedBefore = t
			}
		case "score":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 && v <= 1 {
				filter.MinScore = v
			}
		case "org":
			filter.Domains = append(filter.Domains, Domain{Organization: value})
		case "project":
			filter.Domains = append(filter.Domains, Domain{Project: value})
		case "repo", "repository":
			filter.Domains = append(filter.Domains, Domain{Repository: value})
		case "tombstoned", "deleted":
			filter.IncludeTombstoned = value == "true" || value == "1" || value == "yes"
		default:
			// Unknown key: ignore.
		}
	}

	return filter, strings.Join(queryTerms, " ")
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTimeBound accepts either a relative duration (7d, 12h, 2w, 30m) or an
// absolute date (2026-01-31 or RFC 3339).
func parseTimeBound(value string) (time.Time, bool) {
	if len(value) >= 2 {
		unit := value[len(value)-1]
		if n, err := strconv.Atoi(value[:len(value)-1]); err == nil && n >= 0 {
			switch unit {
			case 'm':
				return time.Now().Add(-time.Duration(n) * time.Minute), true
			case 'h':
				return time.Now().Add(-time.Duration(n) * time.Hour), true
			case 'd':
				return time.Now().AddDate(0, 0, -n), true
			case 'w':
				return time.Now().AddDate(0, 0, -7*n), true
			}
		}
	}

	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}

	return time.Time{}, false
}
