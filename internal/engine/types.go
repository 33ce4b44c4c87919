package engine

import (
	"time"

	"github.com/scrypster/engram/internal/routing"
	"github.com/scrypster/engram/pkg/types"
)

// CaptureRequest describes a memory to record.
type CaptureRequest struct {
	// Content is the memory payload. Required.
	Content string

	// Scope selects which store receives the memory (default: project).
	Scope routing.Scope

	// Namespace categorises the memory. Optional.
	Namespace types.Namespace

	// Domain attaches org/project/repo scoping metadata. Optional.
	Domain types.Domain

	// Tags label the memory for filtered recall. Optional.
	Tags []string

	// Source records where the memory came from (file path, tool name).
	Source string

	// SessionID ties the memory to a capture session. Auto-generated per
	// engine instance when empty.
	SessionID string
}

// Receipt confirms a capture and reports any degraded steps.
//
// Persistence is the only step that can fail a capture; index and vector
// writes are best-effort and surface as warnings so a flaky derived store
// never loses a memory.
type Receipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// RecallRequest describes a search over captured memories.
type RecallRequest struct {
	// Query is the search text. It may embed filter directives
	// (ns:decisions tag:auth since:7d); the remainder is matched as free
	// text. An empty query lists by recency.
	Query string

	// Scope selects which store to search (default: project).
	Scope routing.Scope

	// Mode selects the ranking sources; empty uses the configured default.
	Mode types.SearchMode

	// Filter narrows results structurally, composed with any directives
	// parsed out of Query.
	Filter *types.SearchFilter

	// Limit caps returned hits; 0 uses the configured default.
	Limit int
}

// ScopeStats summarises one scope's stores for the status surface.
type ScopeStats struct {
	Scope            routing.Scope `json:"scope"`
	MemoryCount      int           `json:"memory_count"`
	EmbeddingCount   int           `json:"embedding_count"`
	TombstonedCount  int           `json:"tombstoned_count"`
	PersistenceState string        `json:"persistence_state"`
	IndexState       string        `json:"index_state"`
	VectorState      string        `json:"vector_state"`
}
