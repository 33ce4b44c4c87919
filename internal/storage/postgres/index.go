package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.IndexBackend = (*IndexBackend)(nil)

// IndexBackend is the derived lexical index backed by PostgreSQL tsvector
// ranking. The content_tsv column is generated, so entries can never drift
// out of sync with their content.
type IndexBackend struct {
	db *sql.DB
}

// NewIndexBackend connects to the lexical index at dsn.
func NewIndexBackend(dsn string) (*IndexBackend, error) {
	db, err := open(dsn, indexSchema)
	if err != nil {
		return nil, err
	}
	return &IndexBackend{db: db}, nil
}

const indexColumns = `id, content, namespace, organization, project, repository,
	status, tags, source, session_id, created_at, updated_at`

// Index adds or replaces a memory's lexical projection.
func (ix *IndexBackend) Index(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory with ID required", storage.ErrInvalidInput)
	}

	tags, err := marshalTags(memory.Tags)
	if err != nil {
		return err
	}

	_, err = ix.db.ExecContext(ctx, `
		INSERT INTO index_entries (`+indexColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			content      = EXCLUDED.content,
			namespace    = EXCLUDED.namespace,
			organization = EXCLUDED.organization,
			project      = EXCLUDED.project,
			repository   = EXCLUDED.repository,
			status       = EXCLUDED.status,
			tags         = EXCLUDED.tags,
			source       = EXCLUDED.source,
			session_id   = EXCLUDED.session_id,
			updated_at   = EXCLUDED.updated_at
	`,
		memory.ID, memory.Content, string(memory.Namespace),
		memory.Domain.Organization, memory.Domain.Project, memory.Domain.Repository,
		string(memory.Status), tags, memory.Source, memory.SessionID,
		memory.CreatedAt, memory.UpdatedAt,
	)
	if err != nil {
		return storage.OpFailed("index.index", err)
	}
	return nil
}

// Remove drops a memory from the index.
func (ix *IndexBackend) Remove(ctx context.Context, id string) (bool, error) {
	res, err := ix.db.ExecContext(ctx, `DELETE FROM index_entries WHERE id = $1`, id)
	if err != nil {
		return false, storage.OpFailed("index.remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.OpFailed("index.remove", err)
	}
	return n > 0, nil
}

// overFetch widens the SQL limit so attribute filtering applied in Go still
// fills the requested result count.
const overFetch = 4

// Search returns up to limit IDs ordered by descending ts_rank relevance.
func (ix *IndexBackend) Search(ctx context.Context, query string, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}
	if strings.TrimSpace(query) == "" {
		return ix.ListAll(ctx, filter, limit)
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+indexColumns+`, ts_rank(content_tsv, plainto_tsquery('english', $1)) AS score
		FROM index_entries
		WHERE content_tsv @@ plainto_tsquery('english', $1)
		ORDER BY score DESC, id
		LIMIT $2`, query, limit*overFetch)
	if err != nil {
		return nil, storage.OpFailed("index.search", fmt.Errorf("query %q: %w", query, err))
	}
	defer func() { _ = rows.Close() }()

	return collectScored(rows, filter, limit)
}

// ListAll returns up to limit IDs matching the filter, newest first, with a
// constant relevance score.
func (ix *IndexBackend) ListAll(ctx context.Context, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+indexColumns+`, 1.0 AS score
		FROM index_entries
		ORDER BY created_at DESC, id
		LIMIT $1`, limit*overFetch)
	if err != nil {
		return nil, storage.OpFailed("index.list_all", err)
	}
	defer func() { _ = rows.Close() }()

	return collectScored(rows, filter, limit)
}

// Reindex atomically replaces the whole index inside one transaction.
func (ix *IndexBackend) Reindex(ctx context.Context, memories []*types.Memory) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.OpFailed("index.reindex", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return storage.OpFailed("index.reindex", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_entries (`+indexColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return storage.OpFailed("index.reindex", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range memories {
		if m == nil || m.ID == "" {
			continue
		}
		tags, err := marshalTags(m.Tags)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			m.ID, m.Content, string(m.Namespace),
			m.Domain.Organization, m.Domain.Project, m.Domain.Repository,
			string(m.Status), tags, m.Source, m.SessionID,
			m.CreatedAt, m.UpdatedAt,
		)
		if err != nil {
			return storage.OpFailed("index.reindex", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.OpFailed("index.reindex", err)
	}
	return nil
}

// Clear drops every entry.
func (ix *IndexBackend) Clear(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return storage.OpFailed("index.clear", err)
	}
	return nil
}

// GetMemory returns the indexed projection for the ID, or nil when absent.
func (ix *IndexBackend) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := ix.db.QueryRowContext(ctx, `
		SELECT `+indexColumns+` FROM index_entries WHERE id = $1`, id)
	m, err := scanProjection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.OpFailed("index.get_memory", err)
	}
	return m, nil
}

// GetMemoriesBatch returns projections for the given IDs in one round trip.
func (ix *IndexBackend) GetMemoriesBatch(ctx context.Context, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+indexColumns+` FROM index_entries WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, storage.OpFailed("index.get_memories_batch", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.Memory, len(ids))
	for rows.Next() {
		m, err := scanProjection(rows)
		if err != nil {
			return nil, storage.OpFailed("index.get_memories_batch", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("index.get_memories_batch", err)
	}

	memories := make([]*types.Memory, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			memories = append(memories, m)
		}
	}
	return memories, nil
}

// Close releases the underlying connection pool.
func (ix *IndexBackend) Close() error {
	return ix.db.Close()
}

func scanProjection(row scanner) (*types.Memory, error) {
	var m types.Memory
	var tags sql.NullString

	err := row.Scan(
		&m.ID, &m.Content, &m.Namespace,
		&m.Domain.Organization, &m.Domain.Project, &m.Domain.Repository,
		&m.Status, &tags, &m.Source, &m.SessionID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Tags, err = unmarshalTags(tags); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectScored(rows *sql.Rows, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	var out []storage.ScoredID
	for rows.Next() {
		var m types.Memory
		var tags sql.NullString
		var score float64

		err := rows.Scan(
			&m.ID, &m.Content, &m.Namespace,
			&m.Domain.Organization, &m.Domain.Project, &m.Domain.Repository,
			&m.Status, &tags, &m.Source, &m.SessionID,
			&m.CreatedAt, &m.UpdatedAt, &score,
		)
		if err != nil {
			return nil, storage.OpFailed("index.scan", err)
		}
		if m.Tags, err = unmarshalTags(tags); err != nil {
			return nil, storage.OpFailed("index.scan", err)
		}

		if !filter.Matches(&m) {
			continue
		}
		out = append(out, storage.ScoredID{ID: m.ID, Score: score})
		if len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("index.scan", err)
	}
	return out, nil
}
