package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     3,
		Description: "task priority/category/epic-linkage/dependency columns",
		Up:          up0003,
	})
}

func up0003(ctx context.Context, tx *sql.Tx) error {
	type col struct{ name, ddl string }
	cols := []col{
		{"priority", "ALTER TABLE tasks ADD COLUMN priority INTEGER NOT NULL DEFAULT 3"},
		{"epic_key", "ALTER TABLE tasks ADD COLUMN epic_key TEXT NOT NULL DEFAULT ''"},
		{"epic_seq", "ALTER TABLE tasks ADD COLUMN epic_seq INTEGER NOT NULL DEFAULT 0"},
		{"category", "ALTER TABLE tasks ADD COLUMN category TEXT NOT NULL DEFAULT ''"},
		{"source_doc_id", "ALTER TABLE tasks ADD COLUMN source_doc_id INTEGER REFERENCES documents(id)"},
		{"parent_task_id", "ALTER TABLE tasks ADD COLUMN parent_task_id INTEGER REFERENCES tasks(id)"},
		{"completed_at", "ALTER TABLE tasks ADD COLUMN completed_at TIMESTAMP"},
	}
	for _, c := range cols {
		has, err := hasColumn(ctx, tx, "tasks", c.name)
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
		`CREATE INDEX IF NOT EXISTS idx_tasks_epic_key ON tasks(epic_key)`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority)`); err != nil {
		return err
	}
	return nil
}
