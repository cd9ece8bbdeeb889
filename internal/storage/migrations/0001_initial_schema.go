package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     1,
		Description: "base documents, tags, tasks, epics, and executions tables",
		Up:          up0001,
	})
}

func up0001(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS document_tags (
			document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			tag_id      INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (document_id, tag_id)
		)`,

		`CREATE TABLE IF NOT EXISTS document_links (
			from_id          INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			to_id            INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			similarity_score REAL NOT NULL DEFAULT 0,
			method           TEXT NOT NULL DEFAULT 'manual',
			PRIMARY KEY (from_id, to_id)
		)`,

		`CREATE TABLE IF NOT EXISTS document_sources (
			document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
			source_kind TEXT NOT NULL,
			source_id   TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS epics (
			key        TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			category   TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'open',
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,

		`CREATE TABLE IF NOT EXISTS task_dependencies (
			dependent_id  INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			dependency_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			PRIMARY KEY (dependent_id, dependency_id),
			CHECK (dependent_id != dependency_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_dependencies_dependency ON task_dependencies(dependency_id)`,

		`CREATE TABLE IF NOT EXISTS task_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL DEFAULT 'note',
			message    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_log_task_id ON task_log(task_id)`,

		`CREATE TABLE IF NOT EXISTS executions (
			id          TEXT PRIMARY KEY,
			task        TEXT NOT NULL,
			working_dir TEXT NOT NULL DEFAULT '',
			model       TEXT NOT NULL DEFAULT '',
			mode        TEXT NOT NULL DEFAULT 'synthesize',
			status      TEXT NOT NULL DEFAULT 'pending',
			started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			log_path    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status)`,
	}

	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
