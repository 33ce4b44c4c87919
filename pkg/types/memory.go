// Package types defines the core data model shared by every Engram
// component: memories, namespaces, domains, statuses, search filters,
// and the search result contract exposed to CLI and integration layers.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory represents a single captured memory record.
//
// Content is the authoritative payload and is owned exclusively by the
// persistence backend. Embedding is a derived projection and may be absent
// (lazy or partial indexing is legal); the lexical and vector backends hold
// only derived views keyed by ID, never independent copies of truth.
type Memory struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Namespace Namespace    `json:"namespace"`
	Domain    Domain       `json:"domain"`
	Status    MemoryStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Embedding []float32    `json:"embedding,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	Source    string       `json:"source,omitempty"`

	// Provenance: the session in which the memory was captured.
	SessionID string `json:"session_id,omitempty"`
}

// NewMemoryID generates a new unique memory identifier.
// ULIDs are lexicographically sortable by creation time, which gives
// deterministic tie-breaking in fused result sets for free.
func NewMemoryID() string {
	return "mem_" + strings.ToLower(ulid.Make().String())
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants required before storage.
func (m *Memory) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("memory ID is required")
	}
	if m.Content == "" {
		return fmt.Errorf("memory content is required")
	}
	if m.Namespace != "" && !m.Namespace.IsValid() {
		return fmt.Errorf("unknown namespace %q", m.Namespace)
	}
	if m.Status != "" && !m.Status.IsValid() {
		return fmt.Errorf("unknown status %q", m.Status)
	}
	return nil
}

// MemoryStatus is the lifecycle status of a memory.
type MemoryStatus string

// Memory lifecycle states. Memories are created active, may be archived or
// superseded by consolidation, and are tombstoned on soft delete. Tombstoned
// memories are retained for auditability until purged.
const (
	StatusActive     MemoryStatus = "active"
	StatusArchived   MemoryStatus = "archived"
	StatusSuperseded MemoryStatus = "superseded"
	StatusPending    MemoryStatus = "pending"
	StatusTombstoned MemoryStatus = "tombstoned"
)

// IsValid reports whether the status is a known lifecycle state.
func (s MemoryStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusSuperseded, StatusPending, StatusTombstoned:
		return true
	}
	return false
}

// Namespace categorises a memory. Namespaces are a closed enumeration used
// purely as a filter dimension; they carry no storage behavior.
type Namespace string

const (
	NamespaceDecisions   Namespace = "decisions"
	NamespacePatterns    Namespace = "patterns"
	NamespaceLearnings   Namespace = "learnings"
	NamespaceContext     Namespace = "context"
	NamespaceTechDebt    Namespace = "tech-debt"
	NamespaceAPIs        Namespace = "apis"
	NamespaceConfig      Namespace = "config"
	NamespaceSecurity    Namespace = "security"
	NamespacePerformance Namespace = "performance"
	NamespaceTesting     Namespace = "testing"
)

// AllNamespaces lists every valid namespace, in display order.
var AllNamespaces = []Namespace{
	NamespaceDecisions,
	NamespacePatterns,
	NamespaceLearnings,
	NamespaceContext,
	NamespaceTechDebt,
	NamespaceAPIs,
	NamespaceConfig,
	NamespaceSecurity,
	NamespacePerformance,
	NamespaceTesting,
}

// IsValid reports whether the namespace is part of the closed enumeration.
func (n Namespace) IsValid() bool {
	for _, v := range AllNamespaces {
		if n == v {
			return true
		}
	}
	return false
}

// ParseNamespace converts a string into a Namespace.
func ParseNamespace(s string) (Namespace, error) {
	n := Namespace(strings.ToLower(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", fmt.Errorf("unknown namespace %q", s)
	}
	return n, nil
}

// Domain is a hierarchical scope descriptor. An empty domain is global.
type Domain struct {
	Organization string `json:"organization,omitempty"`
	Project      string `json:"project,omitempty"`
	Repository   string `json:"repository,omitempty"`
}

// IsGlobal reports whether the domain carries no scoping information.
func (d Domain) IsGlobal() bool {
	return d.Organization == "" && d.Project == "" && d.Repository == ""
}

// Contains reports whether other falls within this domain. An empty field
// on the receiver matches any value in other.
func (d Domain) Contains(other Domain) bool {
	if d.Organization != "" && d.Organization != other.Organization {
		return false
	}
	if d.Project != "" && d.Project != other.Project {
		return false
	}
	if d.Repository != "" && d.Repository != other.Repository {
		return false
	}
	return true
}

// String renders the domain as org/project/repo with empty segments elided.
func (d Domain) String() string {
	if d.IsGlobal() {
		return "global"
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Organization, d.Project, d.Repository} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
