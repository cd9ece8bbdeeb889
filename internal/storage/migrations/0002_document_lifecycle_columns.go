package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     2,
		Description: "document project/parent/access-tracking/trash/archive columns",
		Up:          up0002,
	})
}

// up0002 adds the columns that let a document carry a project, a parent
// reference, access tracking, and the live/archived/deleted tri-state.
// Every ALTER is guarded by hasColumn so re-running this migration (or
// applying it against a database that already has the column from a
// differently-ordered upgrade path) is a no-op, matching the idempotent
// column-add pattern used elsewhere in this codebase's migrations.
func up0002(ctx context.Context, tx *sql.Tx) error {
	type col struct{ name, ddl string }
	cols := []col{
		{"project", "ALTER TABLE documents ADD COLUMN project TEXT NOT NULL DEFAULT ''"},
		{"parent_id", "ALTER TABLE documents ADD COLUMN parent_id INTEGER REFERENCES documents(id)"},
		{"accessed_at", "ALTER TABLE documents ADD COLUMN accessed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"},
		{"access_count", "ALTER TABLE documents ADD COLUMN access_count INTEGER NOT NULL DEFAULT 0"},
		{"archived_at", "ALTER TABLE documents ADD COLUMN archived_at TIMESTAMP"},
		{"deleted_at", "ALTER TABLE documents ADD COLUMN deleted_at TIMESTAMP"},
	}
	for _, c := range cols {
		has, err := hasColumn(ctx, tx, "documents", c.name)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := tx.ExecContext(ctx, c.ddl); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project)`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_documents_parent_id ON documents(parent_id)`); err != nil {
		return err
	}
	return nil
}
