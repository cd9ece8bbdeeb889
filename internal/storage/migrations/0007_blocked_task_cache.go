package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     7,
		Description: "blocked_task_cache materializes dependency-readiness for fast ready-queue reads",
		Up:          up0007,
	})
}

// up0007 adds the cache the readiness query reads instead of re-walking
// task_dependencies on every call. The tasks package rebuilds a task's row
// whenever one of its dependency edges or a dependency's status changes.
func up0007(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blocked_task_cache (
			task_id     INTEGER PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
			blocked     INTEGER NOT NULL DEFAULT 0,
			blocker_ids TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_task_cache_blocked ON blocked_task_cache(blocked)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
