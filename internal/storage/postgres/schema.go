// Package postgres implements the persistence, index, and vector backends
// on a PostgreSQL server. The lexical index uses tsvector ranking and the
// vector backend uses the pgvector extension for indexed ANN search, which
// makes this the backend of choice for large datasets.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const memoriesSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	namespace     TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	repository    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	tags          JSONB,
	source        TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	embedding     BYTEA,
	embedding_dim INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
`

const indexSchema = `
CREATE TABLE IF NOT EXISTS index_entries (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	namespace     TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	repository    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	tags          JSONB,
	source        TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	content_tsv   TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_index_entries_tsv ON index_entries USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS idx_index_entries_created ON index_entries(created_at);
`

const vectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS embeddings (
	id            TEXT PRIMARY KEY,
	embedding     VECTOR(%d) NOT NULL,
	namespace     TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	project       TEXT NOT NULL DEFAULT '',
	repository    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	tags          JSONB,
	source        TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_embeddings_created ON embeddings(created_at);
`

// open connects to PostgreSQL and applies the given schema statements.
func open(dsn string, schema string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return db, nil
}
