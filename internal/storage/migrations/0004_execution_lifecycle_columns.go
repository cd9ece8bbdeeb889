package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     4,
		Description: "execution pid/heartbeat/completion/token/worktree columns",
		Up:          up0004,
	})
}

func up0004(ctx context.Context, tx *sql.Tx) error {
	type col struct{ name, ddl string }
	cols := []col{
		{"tool_allowlist", "ALTER TABLE executions ADD COLUMN tool_allowlist TEXT NOT NULL DEFAULT ''"},
		{"pid", "ALTER TABLE executions ADD COLUMN pid INTEGER NOT NULL DEFAULT 0"},
		{"last_heartbeat", "ALTER TABLE executions ADD COLUMN last_heartbeat TIMESTAMP"},
		{"completed_at", "ALTER TABLE executions ADD COLUMN completed_at TIMESTAMP"},
		{"exit_code", "ALTER TABLE executions ADD COLUMN exit_code INTEGER"},
		{"stdout_tail", "ALTER TABLE executions ADD COLUMN stdout_tail TEXT NOT NULL DEFAULT ''"},
		{"tokens_in", "ALTER TABLE executions ADD COLUMN tokens_in INTEGER NOT NULL DEFAULT 0"},
		{"tokens_out", "ALTER TABLE executions ADD COLUMN tokens_out INTEGER NOT NULL DEFAULT 0"},
		{"cost_usd", "ALTER TABLE executions ADD COLUMN cost_usd REAL"},
		{"worktree_path", "ALTER TABLE executions ADD COLUMN worktree_path TEXT NOT NULL DEFAULT ''"},
		{"branch", "ALTER TABLE executions ADD COLUMN branch TEXT NOT NULL DEFAULT ''"},
		{"doc_id_output", "ALTER TABLE executions ADD COLUMN doc_id_output INTEGER REFERENCES documents(id)"},
		{"pr_url", "ALTER TABLE executions ADD COLUMN pr_url TEXT NOT NULL DEFAULT ''"},
		{"failure_reason", "ALTER TABLE executions ADD COLUMN failure_reason TEXT NOT NULL DEFAULT ''"},
	}
	for _, c := range cols {
		has, err := hasColumn(ctx, tx, "executions", c.name)
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
	return nil
}
