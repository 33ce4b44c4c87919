// Package routing resolves a logical scope (project, user, org) to the
// backend set that serves it. Backend sets are opened lazily and cached, so
// every request within a scope shares the same connections and the same
// circuit-breaker state.
package routing

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/resilience"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/chromem"
	"github.com/scrypster/engram/internal/storage/memstore"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
)

// Scope identifies which slice of the memory store a request targets.
type Scope string

const (
	// ScopeProject holds memories tied to the current working project.
	ScopeProject Scope = "project"

	// ScopeUser holds memories that follow the user across projects.
	ScopeUser Scope = "user"

	// ScopeOrg holds memories shared across an organization. Requires the
	// org feature flag.
	ScopeOrg Scope = "org"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeProject, ScopeUser, ScopeOrg:
		return Scope(s), nil
	case "":
		return ScopeProject, nil
	}
	return "", fmt.Errorf("%w: unknown scope %q (want project, user, or org)", storage.ErrInvalidInput, s)
}

// BackendSet is the trio of backends serving one scope. All three are
// wrapped in independent resilience guards.
type BackendSet struct {
	Persistence storage.PersistenceBackend
	Index       storage.IndexBackend
	Vector      storage.VectorBackend
}

// Close closes all three backends, returning the first error seen.
func (s *BackendSet) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{s.Persistence, s.Index, s.Vector} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Router maps scopes to backend sets. Sets are keyed by their physical
// location, so two scopes stored in the same place share one set (and one
// breaker) instead of opening duplicate connections.
type Router struct {
	cfg    *config.Config
	logger *log.Logger

	mu   sync.Mutex
	sets map[string]*BackendSet
	keys map[Scope]string
}

// NewRouter creates a router over cfg. Backends open on first use.
func NewRouter(cfg *config.Config) *Router {
	return &Router{
		cfg:    cfg,
		logger: log.New(os.Stderr, "[routing] ", log.LstdFlags),
		sets:   make(map[string]*BackendSet),
		keys:   make(map[Scope]string),
	}
}

// Resolve returns the backend set for scope, opening it if needed.
// ScopeOrg returns ErrFeatureNotEnabled unless the org feature flag is set.
func (r *Router) Resolve(ctx context.Context, scope Scope) (*BackendSet, error) {
	scope, err := ParseScope(string(scope))
	if err != nil {
		return nil, err
	}
	if scope == ScopeOrg && !r.cfg.Features.EnableOrg {
		return nil, fmt.Errorf("%w: organization scope is disabled (set ENGRAM_ENABLE_ORG=true)", storage.ErrFeatureNotEnabled)
	}

	key, err := r.storageKey(scope)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.sets[key]; ok {
		r.keys[scope] = key
		return set, nil
	}

	set, err := r.open(key)
	if err != nil {
		return nil, err
	}
	r.sets[key] = set
	r.keys[scope] = key
	r.logger.Printf("opened %s backends for scope %s at %s", r.cfg.Storage.Engine, scope, key)
	return set, nil
}

// storageKey computes the physical location for a scope. Project and user
// scopes share the user data directory unless a project-local path is
// configured; the org scope always gets its own location.
func (r *Router) storageKey(scope Scope) (string, error) {
	if r.cfg.Storage.Engine == "postgres" {
		// One database serves every scope; scoping is logical, through the
		// domain fields on each memory.
		return "postgres#" + r.cfg.Storage.PostgresDSN, nil
	}
	if r.cfg.Storage.Engine == "memory" {
		return "memory#" + r.scopeSuffix(scope), nil
	}

	switch scope {
	case ScopeProject:
		if r.cfg.Storage.ProjectPath != "" {
			return filepath.Join(r.cfg.Storage.ProjectPath, ".engram"), nil
		}
		return r.cfg.Storage.DataDir, nil
	case ScopeUser:
		return r.cfg.Storage.DataDir, nil
	case ScopeOrg:
		org, err := r.OrgID()
		if err != nil {
			return "", err
		}
		return filepath.Join(r.cfg.Storage.DataDir, "org", org), nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", storage.ErrInvalidInput, scope)
}

func (r *Router) scopeSuffix(scope Scope) string {
	if scope == ScopeUser && r.cfg.Storage.ProjectPath == "" {
		// Matches the file-based layout: project and user share storage
		// until a project-local path splits them.
		return string(ScopeProject)
	}
	return string(scope)
}

// OrgID resolves the organization identifier: ENGRAM_ORG first, then the
// org segment of the git remote URL of the current repository.
func (r *Router) OrgID() (string, error) {
	if org := os.Getenv("ENGRAM_ORG"); org != "" {
		return org, nil
	}

	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", fmt.Errorf("%w: cannot determine organization (set ENGRAM_ORG or run inside a git repository with an origin remote)", storage.ErrInvalidInput)
	}
	org := parseOrgFromRemote(strings.TrimSpace(string(out)))
	if org == "" {
		return "", fmt.Errorf("%w: cannot parse organization from remote %q", storage.ErrInvalidInput, strings.TrimSpace(string(out)))
	}
	return org, nil
}

// parseOrgFromRemote extracts the organization segment from a git remote
// URL. Handles https, ssh, and scp-like forms:
//
//	https://github.com/acme/widgets.git  -> acme
//	git@github.com:acme/widgets.git      -> acme
//	ssh://git@github.com/acme/widgets    -> acme
func parseOrgFromRemote(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")

	// scp-like: git@host:org/repo
	if !strings.Contains(remote, "://") {
		if i := strings.Index(remote, ":"); i >= 0 {
			remote = remote[i+1:]
			parts := strings.Split(remote, "/")
			if len(parts) >= 2 && parts[0] != "" {
				return parts[0]
			}
		}
		return ""
	}

	// URL form: scheme://[user@]host/org/repo
	rest := remote[strings.Index(remote, "://")+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return ""
	}
	parts := strings.Split(strings.Trim(rest[slash+1:], "/"), "/")
	if len(parts) >= 2 && parts[0] != "" {
		return parts[0]
	}
	return ""
}

// open builds and guards the backend trio at the given location.
func (r *Router) open(key string) (*BackendSet, error) {
	raw, err := r.openRaw(key)
	if err != nil {
		return nil, err
	}

	guard := r.guardConfig()
	return &BackendSet{
		Persistence: resilience.NewGuardedPersistence(raw.Persistence, guard),
		Index:       resilience.NewGuardedIndex(raw.Index, guard),
		Vector:      resilience.NewGuardedVector(raw.Vector, guard),
	}, nil
}

func (r *Router) openRaw(key string) (*BackendSet, error) {
	dims := r.cfg.Embedding.Dimensions

	switch r.cfg.Storage.Engine {
	case "memory":
		set := &BackendSet{
			Persistence: memstore.NewPersistence(),
			Index:       memstore.NewIndex(),
		}
		if err := r.attachVector(set, key, dims); err != nil {
			return nil, err
		}
		return set, nil

	case "sqlite":
		if err := os.MkdirAll(key, 0o755); err != nil {
			return nil, storage.OpFailed("create data directory", err)
		}
		persistence, err := sqlite.NewPersistenceBackend(filepath.Join(key, "memories.db"))
		if err != nil {
			return nil, err
		}
		index, err := sqlite.NewIndexBackend(filepath.Join(key, "index.db"))
		if err != nil {
			persistence.Close()
			return nil, err
		}
		set := &BackendSet{Persistence: persistence, Index: index}
		if err := r.attachVector(set, key, dims); err != nil {
			persistence.Close()
			index.Close()
			return nil, err
		}
		return set, nil

	case "postgres":
		dsn := r.cfg.Storage.PostgresDSN
		persistence, err := postgres.NewPersistenceBackend(dsn)
		if err != nil {
			return nil, err
		}
		index, err := postgres.NewIndexBackend(dsn)
		if err != nil {
			persistence.Close()
			return nil, err
		}
		set := &BackendSet{Persistence: persistence, Index: index}
		if r.cfg.Embedding.Provider == "none" || r.cfg.Storage.VectorProvider == "chromem" {
			if err := r.attachVector(set, key, dims); err != nil {
				persistence.Close()
				index.Close()
				return nil, err
			}
			return set, nil
		}
		vector, err := postgres.NewVectorBackend(dsn, dims)
		if err != nil {
			persistence.Close()
			index.Close()
			return nil, err
		}
		set.Vector = vector
		return set, nil
	}
	return nil, fmt.Errorf("%w: unknown storage engine %q", storage.ErrInvalidInput, r.cfg.Storage.Engine)
}

// attachVector wires the vector backend for file and memory engines.
// Embedding provider "none" leaves the slot filled with an absent backend,
// which reports zero results rather than errors.
func (r *Router) attachVector(set *BackendSet, key string, dims int) error {
	if r.cfg.Embedding.Provider == "none" {
		set.Vector = storage.AbsentVector{}
		return nil
	}

	switch r.cfg.Storage.VectorProvider {
	case "chromem":
		persist := ""
		if r.cfg.Storage.Engine == "sqlite" {
			persist = filepath.Join(key, "vectors")
		}
		vector, err := chromem.NewVectorBackend(persist, dims)
		if err != nil {
			return err
		}
		set.Vector = vector
		return nil
	default:
		switch r.cfg.Storage.Engine {
		case "memory":
			vector, err := memstore.NewVector(dims)
			if err != nil {
				return err
			}
			set.Vector = vector
			return nil
		case "sqlite":
			vector, err := sqlite.NewVectorBackend(filepath.Join(key, "vectors.db"), dims)
			if err != nil {
				return err
			}
			set.Vector = vector
			return nil
		}
	}
	return fmt.Errorf("%w: no vector backend for engine %q", storage.ErrInvalidInput, r.cfg.Storage.Engine)
}

func (r *Router) guardConfig() resilience.GuardConfig {
	res := r.cfg.Resilience
	return resilience.GuardConfig{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: res.BreakerFailureThreshold,
			ResetTimeout:     res.BreakerResetTimeout.Std(),
			HalfOpenMaxCalls: res.BreakerHalfOpenCalls,
		},
		Retry: resilience.RetryConfig{
			MaxRetries: res.RetryMaxAttempts,
			Backoff:    res.RetryBackoff.Std(),
		},
		BulkheadSize:   res.BulkheadSize,
		AcquireTimeout: res.BulkheadAcquireTimeout.Std(),
		RatePerSecond:  res.RatePerSecond,
	}
}

// Close closes every opened backend set.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for key, set := range r.sets {
		if err := set.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.sets, key)
	}
	for scope := range r.keys {
		delete(r.keys, scope)
	}
	return first
}
