// Package engine orchestrates the memory lifecycle across the three backend
// layers: authoritative persistence, the derived lexical index, and the
// derived vector index. All writes flow persistence-first; derived stores
// are best-effort followers that can always be rebuilt.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/embedding"
	"github.com/scrypster/engram/internal/routing"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Engine is the single entry point for capture, recall, and maintenance.
type Engine struct {
	cfg      *config.Config
	router   *routing.Router
	embedder embedding.Embedder
	logger   *log.Logger

	// sessionID stamps every capture made through this engine instance.
	sessionID string
}

// New creates an engine over the given configuration. Backends open lazily
// on first use per scope.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	e := &Engine{
		cfg:       cfg,
		router:    routing.NewRouter(cfg),
		logger:    log.New(os.Stderr, "[engine] ", log.LstdFlags),
		sessionID: uuid.NewString(),
	}

	switch cfg.Embedding.Provider {
	case "none":
		// No embedder: semantic search degrades to empty results.
	case "hash":
		hash, err := embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		e.embedder = hash
		if cfg.Embedding.CacheEnabled {
			cached, err := embedding.NewCachedEmbedder(hash, cfg.Embedding.CacheMaxEntries)
			if err != nil {
				return nil, err
			}
			e.embedder = cached
		}
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", storage.ErrInvalidInput, cfg.Embedding.Provider)
	}

	return e, nil
}

// SessionID returns the capture session identifier for this instance.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Capture records a memory. Persistence must succeed; index and vector
// writes are best-effort and reported as warnings on the receipt, since a
// failed derived write is repairable by reindex while a lost record is not.
func (e *Engine) Capture(ctx context.Context, req CaptureRequest) (*Receipt, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: capture content is empty", storage.ErrInvalidInput)
	}
	if req.Namespace != "" && !req.Namespace.IsValid() {
		return nil, fmt.Errorf("%w: unknown namespace %q", storage.ErrInvalidInput, req.Namespace)
	}

	set, err := e.router.Resolve(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	memory := &types.Memory{
		ID:        types.NewMemoryID(),
		Content:   content,
		Namespace: req.Namespace,
		Domain:    req.Domain,
		Status:    types.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      normalizeTags(req.Tags),
		Source:    req.Source,
		SessionID: req.SessionID,
	}
	if memory.SessionID == "" {
		memory.SessionID = e.sessionID
	}

	receipt := &Receipt{ID: memory.ID, CreatedAt: now}

	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, content)
		if err != nil {
			receipt.Warnings = append(receipt.Warnings, fmt.Sprintf("embedding failed: %v", err))
		} else {
			memory.Embedding = vec
		}
	}

	if err := set.Persistence.Store(ctx, memory); err != nil {
		return nil, err
	}

	if err := set.Index.Index(ctx, memory); err != nil {
		e.logger.Printf("index write failed for %s: %v", memory.ID, err)
		receipt.Warnings = append(receipt.Warnings, fmt.Sprintf("index write failed: %v", err))
	}
	if memory.Embedding != nil {
		if err := set.Vector.Upsert(ctx, memory.ID, memory.Embedding, memory); err != nil {
			e.logger.Printf("vector write failed for %s: %v", memory.ID, err)
			receipt.Warnings = append(receipt.Warnings, fmt.Sprintf("vector write failed: %v", err))
		}
	}

	return receipt, nil
}

// Get retrieves a memory by ID from the authoritative store, or nil when it
// does not exist.
func (e *Engine) Get(ctx context.Context, scope routing.Scope, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is empty", storage.ErrInvalidInput)
	}
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	return set.Persistence.Get(ctx, id)
}

// List returns memories matching the filter, newest first, straight from
// the authoritative store.
func (e *Engine) List(ctx context.Context, scope routing.Scope, filter *types.SearchFilter, limit int) ([]*types.Memory, error) {
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.Search.DefaultLimit
	}

	ids, err := set.Persistence.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	memories, err := set.Persistence.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	matched := make([]*types.Memory, 0, len(memories))
	for _, m := range memories {
		if filter == nil || filter.Matches(m) {
			matched = append(matched, m)
		}
	}
	sortByCreatedDesc(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Delete tombstones a memory: the record stays in persistence for the
// retention window but leaves both derived indexes, so it no longer
// surfaces in search. It reports whether the memory existed.
func (e *Engine) Delete(ctx context.Context, scope routing.Scope, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is empty", storage.ErrInvalidInput)
	}
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return false, err
	}

	memory, err := set.Persistence.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if memory == nil {
		return false, nil
	}

	if memory.Status != types.StatusTombstoned {
		memory.Status = types.StatusTombstoned
		memory.UpdatedAt = time.Now().UTC()
		if err := set.Persistence.Store(ctx, memory); err != nil {
			return false, err
		}
	}

	if _, err := set.Index.Remove(ctx, id); err != nil {
		e.logger.Printf("index removal failed for %s: %v", id, err)
	}
	if _, err := set.Vector.Remove(ctx, id); err != nil {
		e.logger.Printf("vector removal failed for %s: %v", id, err)
	}
	return true, nil
}

// Restore reverses a tombstone, making the memory active and searchable
// again. Restoring a memory that is not tombstoned is a no-op. It reports
// whether the memory existed.
func (e *Engine) Restore(ctx context.Context, scope routing.Scope, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is empty", storage.ErrInvalidInput)
	}
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return false, err
	}

	memory, err := set.Persistence.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if memory == nil {
		return false, nil
	}
	if memory.Status != types.StatusTombstoned {
		return true, nil
	}

	memory.Status = types.StatusActive
	memory.UpdatedAt = time.Now().UTC()

	if memory.Embedding == nil && e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, memory.Content); err == nil {
			memory.Embedding = vec
		}
	}

	if err := set.Persistence.Store(ctx, memory); err != nil {
		return false, err
	}
	if err := set.Index.Index(ctx, memory); err != nil {
		e.logger.Printf("index restore failed for %s: %v", id, err)
	}
	if memory.Embedding != nil {
		if err := set.Vector.Upsert(ctx, memory.ID, memory.Embedding, memory); err != nil {
			e.logger.Printf("vector restore failed for %s: %v", id, err)
		}
	}
	return true, nil
}

// Purge permanently removes a memory from all three stores. It reports
// whether the memory existed in persistence.
func (e *Engine) Purge(ctx context.Context, scope routing.Scope, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is empty", storage.ErrInvalidInput)
	}
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return false, err
	}

	existed, err := set.Persistence.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := set.Index.Remove(ctx, id); err != nil {
		e.logger.Printf("index purge failed for %s: %v", id, err)
	}
	if _, err := set.Vector.Remove(ctx, id); err != nil {
		e.logger.Printf("vector purge failed for %s: %v", id, err)
	}
	return existed, nil
}

// PurgeTombstoned permanently removes tombstoned memories whose tombstone
// is older than the given age, returning how many were purged. A zero age
// uses the configured retention TTL.
func (e *Engine) PurgeTombstoned(ctx context.Context, scope routing.Scope, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = e.cfg.Retention.TombstoneTTL.Std()
	}
	set, err := e.router.Resolve(ctx, scope)
	if err != nil {
		return 0, err
	}

	ids, err := set.Persistence.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	memories, err := set.Persistence.GetBatch(ctx, ids)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	purged := 0
	for _, m := range memories {
		if m.Status != types.StatusTombstoned || m.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := set.Persistence.Delete(ctx, m.ID); err != nil {
			return purged, err
		}
		if _, err := set.Index.Remove(ctx, m.ID); err != nil {
			e.logger.Printf("index purge failed for %s: %v", m.ID, err)
		}
		if _, err := set.Vector.Remove(ctx, m.ID); err != nil {
			e.logger.Printf("vector purge failed for %s: %v", m.ID, err)
		}
		purged++
	}
	return purged, nil
}

// Close releases every opened backend.
func (e *Engine) Close() error {
	if c, ok := e.embedder.(*embedding.CachedEmbedder); ok {
		c.Close()
	}
	return e.router.Close()
}

// normalizeTags trims, lowercases, and de-duplicates tags, preserving first
// occurrence order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortByCreatedDesc(memories []*types.Memory) {
	sort.Slice(memories, func(i, j int) bool {
		if !memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].CreatedAt.After(memories[j].CreatedAt)
		}
		return memories[i].ID < memories[j].ID
	})
}
