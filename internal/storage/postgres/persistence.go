package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.PersistenceBackend = (*PersistenceBackend)(nil)

// PersistenceBackend is the authoritative PostgreSQL record store.
type PersistenceBackend struct {
	db *sql.DB
}

// NewPersistenceBackend connects to the record store at dsn.
func NewPersistenceBackend(dsn string) (*PersistenceBackend, error) {
	db, err := open(dsn, memoriesSchema)
	if err != nil {
		return nil, err
	}
	return &PersistenceBackend{db: db}, nil
}

// Store creates or overwrites a memory record in a single upsert statement,
// so a failed commit never leaves a partial record.
func (p *PersistenceBackend) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return fmt.Errorf("%w: nil memory", storage.ErrInvalidInput)
	}
	if err := memory.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now
	if memory.Status == "" {
		memory.Status = types.StatusActive
	}

	tags, err := marshalTags(memory.Tags)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, namespace, organization, project, repository,
			status, tags, source, session_id, created_at, updated_at,
			embedding, embedding_dim
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			content       = EXCLUDED.content,
			namespace     = EXCLUDED.namespace,
			organization  = EXCLUDED.organization,
			project       = EXCLUDED.project,
			repository    = EXCLUDED.repository,
			status        = EXCLUDED.status,
			tags          = EXCLUDED.tags,
			source        = EXCLUDED.source,
			session_id    = EXCLUDED.session_id,
			updated_at    = EXCLUDED.updated_at,
			embedding     = EXCLUDED.embedding,
			embedding_dim = EXCLUDED.embedding_dim
	`,
		memory.ID, memory.Content, string(memory.Namespace),
		memory.Domain.Organization, memory.Domain.Project, memory.Domain.Repository,
		string(memory.Status), tags, memory.Source, memory.SessionID,
		memory.CreatedAt, memory.UpdatedAt,
		embeddingToBytes(memory.Embedding), len(memory.Embedding),
	)
	if err != nil {
		return storage.OpFailed("persistence.store", err)
	}
	return nil
}

const memoryColumns = `id, content, namespace, organization, project, repository,
	status, tags, source, session_id, created_at, updated_at, embedding, embedding_dim`

// Get retrieves a memory by ID. A missing ID returns (nil, nil).
func (p *PersistenceBackend) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.OpFailed("persistence.get", err)
	}
	return m, nil
}

// Delete removes a record, reporting whether it existed.
func (p *PersistenceBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, storage.OpFailed("persistence.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.OpFailed("persistence.delete", err)
	}
	return n > 0, nil
}

// ListIDs returns every stored memory ID, oldest first.
func (p *PersistenceBackend) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, storage.OpFailed("persistence.list_ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.OpFailed("persistence.list_ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("persistence.list_ids", err)
	}
	return ids, nil
}

// GetBatch retrieves memories for the given IDs with one ANY($1) query.
func (p *PersistenceBackend) GetBatch(ctx context.Context, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, storage.OpFailed("persistence.get_batch", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storage.OpFailed("persistence.get_batch", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("persistence.get_batch", err)
	}

	memories := make([]*types.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			memories = append(memories, m)
		}
	}
	return memories, nil
}

// Exists reports whether a memory with the given ID is stored.
func (p *PersistenceBackend) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storage.OpFailed("persistence.exists", err)
	}
	return true, nil
}

// Count returns the number of stored memories.
func (p *PersistenceBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, storage.OpFailed("persistence.count", err)
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (p *PersistenceBackend) Close() error {
	return p.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var m types.Memory
	var tags sql.NullString
	var blob []byte
	var dim int

	err := row.Scan(
		&m.ID, &m.Content, &m.Namespace,
		&m.Domain.Organization, &m.Domain.Project, &m.Domain.Repository,
		&m.Status, &tags, &m.Source, &m.SessionID,
		&m.CreatedAt, &m.UpdatedAt, &blob, &dim,
	)
	if err != nil {
		return nil, err
	}

	if m.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	if m.Embedding, err = embeddingFromBytes(blob, dim); err != nil {
		return nil, err
	}
	return &m, nil
}

func marshalTags(tags []string) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal tags: %w", err)
	}
	return out, nil
}

func unmarshalTags(blob sql.NullString) ([]string, error) {
	if !blob.Valid || blob.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(blob.String), &tags); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal tags: %w", err)
	}
	return tags, nil
}

func embeddingToBytes(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func embeddingFromBytes(blob []byte, dimension int) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) != 4*dimension {
		return nil, fmt.Errorf("postgres: embedding blob is %d bytes, want %d", len(blob), 4*dimension)
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}
