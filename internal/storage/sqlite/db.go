// Package sqlite implements the persistence, index, and vector backends on
// embedded SQLite (modernc.org/sqlite, pure Go). Each backend owns its own
// database file exclusively; the three files together form the on-disk
// contract: one authoritative record store and two independently
// rebuildable derived indexes.
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/pkg/types"
)

// openDB opens a SQLite database configured for concurrent use.
//
// SQLite supports only one concurrent writer. A single open connection
// serialises physical access through database/sql's own queueing, which is
// the mutex the concurrency model calls for: a caller that panics releases
// the connection back to the pool rather than wedging it for others. WAL
// mode lets readers proceed without blocking the writer, and busy_timeout
// bounds lock waits instead of failing immediately on contention.
func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return db, nil
}

// encodeEmbedding serialises an embedding as a little-endian float32 blob.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding reverses encodeEmbedding. The stored dimension guards
// against truncated blobs.
func decodeEmbedding(blob []byte, dimension int) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) != 4*dimension {
		return nil, fmt.Errorf("sqlite: embedding blob is %d bytes, want %d", len(blob), 4*dimension)
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}

// encodeTags marshals tags to JSON, or nil for an empty set.
func encodeTags(tags []string) ([]byte, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	return json.Marshal(tags)
}

func decodeTags(blob sql.NullString) ([]string, error) {
	if !blob.Valid || blob.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(blob.String), &tags); err != nil {
		return nil, fmt.Errorf("sqlite: decode tags: %w", err)
	}
	return tags, nil
}

// projectionColumns is the canonical column list for the derived projection
// of a memory held by the index and vector backends. It must match the scan
// order in scanProjection.
const projectionColumns = `id, content, namespace, organization, project, repository,
	status, tags, source, session_id, created_at, updated_at`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanProjection reads one projection row into a Memory. The returned
// memory never carries an embedding; embeddings belong to the vector layer.
func scanProjection(row scanner) (*types.Memory, error) {
	var m types.Memory
	var tags sql.NullString

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
	)
	if err != nil {
		return nil, err
	}

	if m.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &m, nil
}

// projectionArgs flattens a memory into the insert argument list matching
// projectionColumns.
func projectionArgs(m *types.Memory) ([]any, error) {
	tags, err := encodeTags(m.Tags)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode tags: %w", err)
	}
	return []any{
		m.ID,
		m.Content,
		string(m.Namespace),
		m.Domain.Organization,
		m.Domain.Project,
		m.Domain.Repository,
		string(m.Status),
		tags,
		m.Source,
		m.SessionID,
		m.CreatedAt,
		m.UpdatedAt,
	}, nil
}
