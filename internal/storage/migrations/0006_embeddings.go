package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     6,
		Description: "document embeddings keyed by embedding_model for semantic search",
		Up:          up0006,
	})
}

func up0006(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS embeddings (
		document_id     INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		embedding_model TEXT NOT NULL,
		vector          BLOB NOT NULL,
		PRIMARY KEY (document_id, embedding_model)
	)`)
	return err
}
