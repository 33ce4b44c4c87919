package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Ensure *IndexBackend implements the interface at compile time.
var _ storage.IndexBackend = (*IndexBackend)(nil)

// The FTS5 virtual table is an external-content table over index_entries,
// kept in sync with INSERT/UPDATE/DELETE triggers. bm25() is evaluated
// against it at query time.
const indexSchema = `
CREATE TABLE IF NOT EXISTS index_entries (
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
	updated_at    TIMESTAMP NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS index_fts USING fts5(
	content,
	content='index_entries',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS index_entries_ai AFTER INSERT ON index_entries BEGIN
	INSERT INTO index_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER IF NOT EXISTS index_entries_ad AFTER DELETE ON index_entries BEGIN
	INSERT INTO index_fts(index_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;
CREATE TRIGGER IF NOT EXISTS index_entries_au AFTER UPDATE ON index_entries BEGIN
	INSERT INTO index_fts(index_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	INSERT INTO index_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE INDEX IF NOT EXISTS idx_index_entries_created ON index_entries(created_at);
`

// IndexBackend is the derived lexical (BM25) index over memory content,
// backed by SQLite FTS5.
type IndexBackend struct {
	db *sql.DB
}

// NewIndexBackend opens (or creates) the lexical index at dsn.
func NewIndexBackend(dsn string) (*IndexBackend, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create index schema: %w", err)
	}
	return &IndexBackend{db: db}, nil
}

// Index adds or replaces a memory's lexical projection.
func (ix *IndexBackend) Index(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory with ID required", storage.ErrInvalidInput)
	}

	args, err := projectionArgs(memory)
	if err != nil {
		return err
	}

	// DELETE then INSERT inside one transaction rather than UPSERT: the
	// external-content FTS triggers only track row images, and a plain
	// upsert would leave the old content token list behind.
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.OpFailed("index.index", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE id = ?`, memory.ID); err != nil {
		return storage.OpFailed("index.index", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_entries (`+projectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return storage.OpFailed("index.index", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.OpFailed("index.index", err)
	}
	return nil
}

// Remove drops a memory from the index.
func (ix *IndexBackend) Remove(ctx context.Context, id string) (bool, error) {
	res, err := ix.db.ExecContext(ctx, `DELETE FROM index_entries WHERE id = ?`, id)
	if err != nil {
		return false, storage.OpFailed("index.remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.OpFailed("index.remove", err)
	}
	return n > 0, nil
}

// candidateMultiplier over-fetches FTS candidates so that attribute
// filtering applied after the MATCH still fills the requested limit.
const candidateMultiplier = 4

// Search returns up to limit IDs ordered by descending BM25 relevance.
// Scores are -bm25(), so larger is better; magnitudes are FTS5-native and
// are normalized only by the fusion engine.
func (ix *IndexBackend) Search(ctx context.Context, query string, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return ix.ListAll(ctx, filter, limit)
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+prefixColumns("e", projectionColumns)+`, -bm25(index_fts) AS score
		FROM index_fts f
		JOIN index_entries e ON e.rowid = f.rowid
		WHERE index_fts MATCH ?
		ORDER BY score DESC, e.id
		LIMIT ?`, ftsQuery, limit*candidateMultiplier)
	if err != nil {
		// Sanitization keeps FTS5 syntax errors out of reach, but if one
		// slips through it is a query problem, not a backend fault, and
		// retrying it would never succeed.
		if strings.Contains(err.Error(), "fts5: syntax error") {
			return nil, fmt.Errorf("%w: unsupported search query %q", storage.ErrInvalidInput, query)
		}
		return nil, storage.OpFailed("index.search", fmt.Errorf("MATCH %q: %w", query, err))
	}
	defer func() { _ = rows.Close() }()

	return ix.collectScored(rows, filter, limit)
}

// ListAll returns up to limit IDs matching the filter, newest first, with a
// constant relevance score (there is no query to rank against).
func (ix *IndexBackend) ListAll(ctx context.Context, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+projectionColumns+`, 1.0 AS score
		FROM index_entries
		ORDER BY created_at DESC, id
		LIMIT ?`, limit*candidateMultiplier)
	if err != nil {
		return nil, storage.OpFailed("index.list_all", err)
	}
	defer func() { _ = rows.Close() }()

	return ix.collectScored(rows, filter, limit)
}

// Reindex atomically replaces the whole index with projections of the given
// memories. The rebuild runs in one transaction, so concurrent readers see
// either the old or the new fully indexed state.
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
		INSERT INTO index_entries (`+projectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storage.OpFailed("index.reindex", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range memories {
		if m == nil || m.ID == "" {
			continue
		}
		args, err := projectionArgs(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return storage.OpFailed("index.reindex", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.OpFailed("index.reindex", err)
	}
	return nil
}

// Clear drops every entry from the index.
func (ix *IndexBackend) Clear(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return storage.OpFailed("index.clear", err)
	}
	return nil
}

// GetMemory returns the indexed projection for the ID, or nil when absent.
func (ix *IndexBackend) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := ix.db.QueryRowContext(ctx, `
		SELECT `+projectionColumns+` FROM index_entries WHERE id = ?`, id)
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

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT `+projectionColumns+`
		FROM index_entries WHERE id IN (`+placeholders+`)`, args...)
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

// Close releases the underlying database handle.
func (ix *IndexBackend) Close() error {
	return ix.db.Close()
}

// collectScored scans projection+score rows, applies the attribute filter in
// Go, and truncates to limit.
func (ix *IndexBackend) collectScored(rows *sql.Rows, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
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
		if m.Tags, err = decodeTags(tags); err != nil {
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

// prefixColumns qualifies each column in a comma-separated list with a table
// alias, for queries that join the projection table.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// sanitizeFTSQuery converts free-form user input into a safe FTS5 MATCH
// expression. FTS5 syntax is fragile: an unbalanced quote, a stray operator
// keyword, or punctuation inside a bareword ("v1.2") produces "fts5: syntax
// error". Input is reduced to letter/digit runs, so no operator or
// punctuation ever reaches MATCH; each run becomes a prefix term and the
// terms are OR'd for recall.
func sanitizeFTSQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var terms []string
	for _, w := range words {
		if len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	if len(terms) == 0 {
		if len(words) == 0 {
			return ""
		}
		return words[0]
	}
	return strings.Join(terms, " OR ")
}
