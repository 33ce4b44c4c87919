package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Ensure *VectorBackend implements the interface at compile time.
var _ storage.VectorBackend = (*VectorBackend)(nil)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id            TEXT PRIMARY KEY,
	embedding     BLOB NOT NULL,
	dimension     INTEGER NOT NULL,
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

CREATE INDEX IF NOT EXISTS idx_embeddings_created ON embeddings(created_at);
`

// searchMaxCandidates caps the number of embeddings loaded into memory per
// search. Candidates are selected newest first, so recent memories are
// always considered. Typical per-project datasets stay far below this cap;
// larger installs should use the PostgreSQL/pgvector backend for indexed
// ANN search.
const searchMaxCandidates = 10_000

// VectorBackend is the derived nearest-neighbor store over memory
// embeddings, backed by SQLite with brute-force cosine ranking in Go.
type VectorBackend struct {
	db         *sql.DB
	dimensions int
}

// NewVectorBackend opens (or creates) the vector store at dsn. dimensions
// fixes the embedding dimensionality the backend accepts.
func NewVectorBackend(dsn string, dimensions int) (*VectorBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidInput, dimensions)
	}
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(vectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create vector schema: %w", err)
	}
	return &VectorBackend{db: db, dimensions: dimensions}, nil
}

// Dimensions returns the embedding dimensionality this backend accepts.
func (v *VectorBackend) Dimensions() int {
	return v.dimensions
}

// Upsert stores or replaces the embedding for a memory, along with the
// attribute projection used for filter pushdown at search time.
func (v *VectorBackend) Upsert(ctx context.Context, id string, embedding []float32, memory *types.Memory) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID required", storage.ErrInvalidInput)
	}
	if len(embedding) != v.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, backend expects %d",
			storage.ErrInvalidInput, len(embedding), v.dimensions)
	}
	if memory == nil {
		memory = &types.Memory{ID: id}
	}

	tags, err := encodeTags(memory.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encode tags: %w", err)
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO embeddings (
			id, embedding, dimension,
			namespace, organization, project, repository,
			status, tags, source, session_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding    = excluded.embedding,
			dimension    = excluded.dimension,
			namespace    = excluded.namespace,
			organization = excluded.organization,
			project      = excluded.project,
			repository   = excluded.repository,
			status       = excluded.status,
			tags         = excluded.tags,
			source       = excluded.source,
			session_id   = excluded.session_id,
			updated_at   = excluded.updated_at
	`,
		id, encodeEmbedding(embedding), len(embedding),
		string(memory.Namespace), memory.Domain.Organization, memory.Domain.Project,
		memory.Domain.Repository, string(memory.Status), tags, memory.Source,
		memory.SessionID, memory.CreatedAt, memory.UpdatedAt,
	)
	if err != nil {
		return storage.OpFailed("vector.upsert", err)
	}
	return nil
}

// Remove drops an embedding, reporting whether it was present.
func (v *VectorBackend) Remove(ctx context.Context, id string) (bool, error) {
	res, err := v.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id = ?`, id)
	if err != nil {
		return false, storage.OpFailed("vector.remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.OpFailed("vector.remove", err)
	}
	return n > 0, nil
}

// Search ranks stored embeddings by cosine similarity to the query and
// returns up to limit IDs, best first. Ties are broken by ID so the
// ordering is reproducible.
func (v *VectorBackend) Search(ctx context.Context, queryEmbedding []float32, filter *types.SearchFilter, limit int) ([]storage.ScoredID, error) {
	if limit <= 0 || len(queryEmbedding) == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != v.dimensions {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, backend expects %d",
			storage.ErrInvalidInput, len(queryEmbedding), v.dimensions)
	}
	if filter == nil {
		filter = &types.SearchFilter{}
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT id, embedding, dimension,
			namespace, organization, project, repository,
			status, tags, source, session_id, created_at, updated_at
		FROM embeddings
		ORDER BY created_at DESC, id
		LIMIT ?`, searchMaxCandidates)
	if err != nil {
		return nil, storage.OpFailed("vector.search", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.ScoredID
	for rows.Next() {
		var m types.Memory
		var tags sql.NullString
		var blob []byte
		var dim int

		err := rows.Scan(
			&m.ID, &blob, &dim,
			&m.Namespace, &m.Domain.Organization, &m.Domain.Project, &m.Domain.Repository,
			&m.Status, &tags, &m.Source, &m.SessionID, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, storage.OpFailed("vector.search", err)
		}
		if m.Tags, err = decodeTags(tags); err != nil {
			return nil, storage.OpFailed("vector.search", err)
		}
		if !filter.Matches(&m) {
			continue
		}

		embedding, err := decodeEmbedding(blob, dim)
		if err != nil {
			// A corrupt blob should not fail the whole search; the entry
			// is simply unrankable until the next reindex.
			continue
		}
		candidates = append(candidates, storage.ScoredID{
			ID:    m.ID,
			Score: CosineSimilarity(queryEmbedding, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("vector.search", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Count returns the number of stored embeddings.
func (v *VectorBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, storage.OpFailed("vector.count", err)
	}
	return n, nil
}

// Clear drops every stored embedding.
func (v *VectorBackend) Clear(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return storage.OpFailed("vector.clear", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (v *VectorBackend) Close() error {
	return v.db.Close()
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Mismatched lengths or zero magnitudes score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
