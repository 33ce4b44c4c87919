package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Ensure *PersistenceBackend implements the interface at compile time.
var _ storage.PersistenceBackend = (*PersistenceBackend)(nil)

const persistenceSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	namespace     TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	repository    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	tags          TEXT,
	source        TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	embedding     BLOB,
	embedding_dim INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
`

// PersistenceBackend is the authoritative SQLite record store.
type PersistenceBackend struct {
	db *sql.DB
}

// NewPersistenceBackend opens (or creates) the record store at dsn.
func NewPersistenceBackend(dsn string) (*PersistenceBackend, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(persistenceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create persistence schema: %w", err)
	}
	return &PersistenceBackend{db: db}, nil
}

// Store creates or overwrites a memory record. The upsert executes as a
// single statement, so a failed commit never leaves a partial record.
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

	args, err := projectionArgs(memory)
	if err != nil {
		return err
	}
	args = append(args, encodeEmbedding(memory.Embedding), len(memory.Embedding))

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO memories (`+projectionColumns+`, embedding, embedding_dim)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content       = excluded.content,
			namespace     = excluded.namespace,
			organization  = excluded.organization,
			project       = excluded.project,
			repository    = excluded.repository,
			status        = excluded.status,
			tags          = excluded.tags,
			source        = excluded.source,
			session_id    = excluded.session_id,
			updated_at    = excluded.updated_at,
			embedding     = excluded.embedding,
			embedding_dim = excluded.embedding_dim
	`, args...)
	if err != nil {
		return storage.OpFailed("persistence.store", err)
	}
	return nil
}

// Get retrieves a memory by ID. A missing ID returns (nil, nil).
func (p *PersistenceBackend) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+projectionColumns+`, embedding, embedding_dim
		FROM memories WHERE id = ?`, id)

	m, err := scanMemoryWithEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.OpFailed("persistence.get", err)
	}
	return m, nil
}

// Delete removes a record. It reports whether a record existed; a missing
// ID is false, never an error.
func (p *PersistenceBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
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

// GetBatch retrieves memories for the given IDs in one round trip using a
// single IN query. Unknown IDs are skipped. Results follow the order of ids.
func (p *PersistenceBackend) GetBatch(ctx context.Context, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+projectionColumns+`, embedding, embedding_dim
		FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storage.OpFailed("persistence.get_batch", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemoryWithEmbedding(rows)
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
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one)
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

// Close releases the underlying database handle.
func (p *PersistenceBackend) Close() error {
	return p.db.Close()
}

func scanMemoryWithEmbedding(row scanner) (*types.Memory, error) {
	var m types.Memory
	var tags sql.NullString
	var blob []byte
	var dim int

	err := row.Scan(
		&m.ID,
		&m.Content,
		&m.Namespace,
		&m.Domain.Organization,
		&m.Domain.Project,
		&m.Domain.Repository,
		&m.Status,
		&tags,
		&m.Source,
		&m.SessionID,
		&m.CreatedAt,
		&m.UpdatedAt,
		&blob,
		&dim,
	)
	if err != nil {
		return nil, err
	}

	if m.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	if m.Embedding, err = decodeEmbedding(blob, dim); err != nil {
		return nil, err
	}
	return &m, nil
}
