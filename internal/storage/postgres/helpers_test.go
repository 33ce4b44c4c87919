package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the memories table. Defined in the
// postgres package so it can reach the unexported db field, exported so the
// postgres_test package can call it.
func (p *PersistenceBackend) TruncateForTest(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "TRUNCATE TABLE memories"); err != nil {
		return fmt.Errorf("postgres: truncate memories: %w", err)
	}
	return nil
}

// TruncateForTest removes all rows from the index_entries table.
func (ix *IndexBackend) TruncateForTest(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, "TRUNCATE TABLE index_entries"); err != nil {
		return fmt.Errorf("postgres: truncate index_entries: %w", err)
	}
	return nil
}

// TruncateForTest removes all rows from the embeddings table.
func (v *VectorBackend) TruncateForTest(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, "TRUNCATE TABLE embeddings"); err != nil {
		return fmt.Errorf("postgres: truncate embeddings: %w", err)
	}
	return nil
}
