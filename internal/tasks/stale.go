package tasks

import (
	"context"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// ListStale returns tasks that are still open (not done or wontdo) and
// have not been updated in at least days days, oldest first. Intended
// for `maintain cleanup --stale-tasks` to surface work that has likely
// been abandoned.
func (s *Store) ListStale(ctx context.Context, days int, limit int) ([]*types.Task, error) {
	if days <= 0 {
		days = 14
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status NOT IN (?, ?)
		   AND datetime(updated_at) < datetime('now', '-' || ? || ' days')
		 ORDER BY updated_at ASC
		 LIMIT ?`, types.TaskDone, types.TaskWontdo, days, limit)
	if err != nil {
		return nil, storage.WrapDBError("list stale tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
