package types

// SearchMode selects which ranking sources a recall operation consults.
type SearchMode string

const (
	// ModeText uses only the lexical (BM25) index.
	ModeText SearchMode = "text"

	// ModeVector uses only the semantic (embedding) index.
	ModeVector SearchMode = "vector"

	// ModeHybrid fuses both sources with Reciprocal Rank Fusion.
	ModeHybrid SearchMode = "hybrid"
)

// IsValid reports whether the mode is one of the known search modes.
func (m SearchMode) IsValid() bool {
	switch m {
	case ModeText, ModeVector, ModeHybrid:
		return true
	}
	return false
}

// SearchHit is a single ranked result.
//
// Score is normalized against the best raw score in the same result set, so
// the top hit of any non-empty result set always scores 1.0. RawScore is the
// pre-normalization fusion sum. VectorScore and BM25Score carry the
// backend-native magnitudes when the corresponding source contributed;
// they are zero when the memory was absent from that source's ranking.
type SearchHit struct {
	Memory      *Memory `json:"memory"`
	Score       float64 `json:"score"`
	RawScore    float64 `json:"raw_score"`
	VectorScore float64 `json:"vector_score,omitempty"`
	BM25Score   float64 `json:"bm25_score,omitempty"`
}

// SearchResult is the stable output contract consumed by the CLI and
// integration layers.
type SearchResult struct {
	Memories        []SearchHit `json:"memories"`
	TotalCount      int         `json:"total_count"`
	Mode            SearchMode  `json:"mode"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`

	// Warnings records non-fatal degradations, e.g. the vector backend
	// being unavailable during a hybrid search.
	Warnings []string `json:"warnings,omitempty"`
}
