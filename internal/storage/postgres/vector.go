package postgres

import (
	"context"
	"database/sql"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

var _ storage.VectorBackend = (*VectorBackend)(nil)

// VectorBackend is the derived nearest-neighbor store backed by the
// pgvector extension. Similarity search runs server-side with the cosine
// distance operator, so it scales past the brute-force backends.
type VectorBackend struct {
	db         *sql.DB
	dimensions int
}

// NewVectorBackend connects to the vector store at dsn. dimensions fixes
// the VECTOR column width and the accepted embedding length.
func NewVectorBackend(dsn string, dimensions int) (*VectorBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidInput, dimensions)
	}
	db, err := open(dsn, fmt.Sprintf(vectorSchema, dimensions))
	if err != nil {
		return nil, err
	}
	return &VectorBackend{db: db, dimensions: dimensions}, nil
}

// Dimensions returns the accepted embedding dimensionality.
func (v *VectorBackend) Dimensions() int { return v.dimensions }

// Upsert stores or replaces the embedding for a memory.
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

	tags, err := marshalTags(memory.Tags)
	if err != nil {
		return err
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO embeddings (
			id, embedding, namespace, organization, project, repository,
			status, tags, source, session_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			embedding    = EXCLUDED.embedding,
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
		id, pgvector.NewVector(embedding),
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
	res, err := v.db.ExecContext(ctx, `DELETE FROM embeddings WHERE id = $1`, id)
	if err != nil {
		return false, storage.OpFailed("vector.remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.OpFailed("vector.remove", err)
	}
	return n > 0, nil
}

// Search returns up to limit IDs ordered by descending cosine similarity.
// pgvector's <=> operator yields cosine distance; similarity is 1-distance.
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
		SELECT id, namespace, organization, project, repository,
			status, tags, source, session_id, created_at, updated_at,
			1 - (embedding <=> $1) AS similarity
		FROM embeddings
		ORDER BY embedding <=> $1, id
		LIMIT $2`, pgvector.NewVector(queryEmbedding), limit*overFetch)
	if err != nil {
		return nil, storage.OpFailed("vector.search", err)
	}
	defer func() { _ = rows.Close() }()

	var out []storage.ScoredID
	for rows.Next() {
		var m types.Memory
		var tags sql.NullString
		var similarity float64

		err := rows.Scan(
			&m.ID, &m.Namespace,
			&m.Domain.Organization, &m.Domain.Project, &m.Domain.Repository,
			&m.Status, &tags, &m.Source, &m.SessionID,
			&m.CreatedAt, &m.UpdatedAt, &similarity,
		)
		if err != nil {
			return nil, storage.OpFailed("vector.search", err)
		}
		if m.Tags, err = unmarshalTags(tags); err != nil {
			return nil, storage.OpFailed("vector.search", err)
		}

		if !filter.Matches(&m) {
			continue
		}
		out = append(out, storage.ScoredID{ID: m.ID, Score: similarity})
		if len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storage.OpFailed("vector.search", err)
	}
	return out, nil
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

// Close releases the underlying connection pool.
func (v *VectorBackend) Close() error {
	return v.db.Close()
}
