// Package memstore implements the persistence, index, and vector backends
// entirely in process memory. It backs unit tests and ephemeral sessions
// where no data directory is available; semantics match the SQLite
// backends, including BM25 lexical ranking.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Ensure compile-time interface satisfaction.
var _ storage.PersistenceBackend = (*Persistence)(nil)

// Persistence is an in-memory authoritative record store.
type Persistence struct {
	mu       sync.RWMutex
	memories map[string]*types.Memory
	order    []string // insertion order for stable ListIDs
}

// NewPersistence creates an empty in-memory record store.
func NewPersistence() *Persistence {
	return &Persistence{memories: make(map[string]*types.Memory)}
}

// Store creates or overwrites a memory record (last-write-wins).
func (p *Persistence) Store(_ context.Context, memory *types.Memory) error {
	if memory == nil {
		return fmt.Errorf("%w: nil memory", storage.ErrInvalidInput)
	}
	if err := memory.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.memories[memory.ID]; !exists {
		p.order = append(p.order, memory.ID)
	}
	p.memories[memory.ID] = cloneMemory(memory)
	return nil
}

// Get retrieves a memory by ID, or nil when absent.
func (p *Persistence) Get(_ context.Context, id string) (*types.Memory, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.memories[id]
	if !ok {
		return nil, nil
	}
	return cloneMemory(m), nil
}

// Delete removes a record, reporting whether it existed.
func (p *Persistence) Delete(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.memories[id]; !ok {
		return false, nil
	}
	delete(p.memories, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// ListIDs returns all stored IDs in insertion order.
func (p *Persistence) ListIDs(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.order...), nil
}

// GetBatch retrieves multiple memories, skipping unknown IDs.
func (p *Persistence) GetBatch(_ context.Context, ids []string) ([]*types.Memory, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	memories := make([]*types.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := p.memories[id]; ok {
			memories = append(memories, cloneMemory(m))
		}
	}
	return memories, nil
}

// Exists reports whether the ID is stored.
func (p *Persistence) Exists(_ context.Context, id string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.memories[id]
	return ok, nil
}

// Count returns the number of stored memories.
func (p *Persistence) Count(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.memories), nil
}

// Close is a no-op for the in-memory store.
func (p *Persistence) Close() error { return nil }

func cloneMemory(m *types.Memory) *types.Memory {
	c := *m
	c.Tags = append([]string{}, m.Tags...)
	if m.Embedding != nil {
		c.Embedding = append([]float32{}, m.Embedding...)
	}
	return &c
}
