package tasks

import (
	"context"
	"strconv"
	"strings"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// ReadyQueue returns open tasks whose every dependency is done or wontdo,
// ordered by priority then creation time. It reads from
// blocked_task_cache rather than re-walking task_dependencies per call.
func (s *Store) ReadyQueue(ctx context.Context, limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+qualifiedTaskColumns("t")+` FROM tasks t
		 JOIN blocked_task_cache c ON c.task_id = t.id
		 WHERE t.status = ? AND c.blocked = 0
		 ORDER BY t.priority ASC, t.created_at ASC
		 LIMIT ?`, types.TaskOpen, limit)
	if err != nil {
		return nil, storage.WrapDBError("ready queue", err)
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

// rebuildTaskCache recomputes whether taskID is blocked from its live
// dependency set and writes the result into blocked_task_cache.
func (s *Store) rebuildTaskCache(ctx context.Context, taskID int64) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT td.dependency_id, t.status FROM task_dependencies td
		 JOIN tasks t ON t.id = td.dependency_id
		 WHERE td.dependent_id = ?`, taskID)
	if err != nil {
		return storage.WrapDBError("read dependency statuses", err)
	}

	var blockerIDs []string
	for rows.Next() {
		var depID int64
		var status types.TaskStatus
		if err := rows.Scan(&depID, &status); err != nil {
			rows.Close()
			return err
		}
		if status != types.TaskDone && status != types.TaskWontdo {
			blockerIDs = append(blockerIDs, strconv.FormatInt(depID, 10))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	blocked := 0
	if len(blockerIDs) > 0 {
		blocked = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO blocked_task_cache (task_id, blocked, blocker_ids, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(task_id) DO UPDATE SET blocked = excluded.blocked, blocker_ids = excluded.blocker_ids, updated_at = excluded.updated_at`,
		taskID, blocked, strings.Join(blockerIDs, ","))
	if err != nil {
		return storage.WrapDBError("write blocked_task_cache", err)
	}

	if blocked == 1 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`, types.TaskBlocked, taskID, types.TaskOpen); err != nil {
			return storage.WrapDBError("mark task blocked", err)
		}
	} else {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ? WHERE id = ? AND status = ?`, types.TaskOpen, taskID, types.TaskBlocked); err != nil {
			return storage.WrapDBError("unblock task", err)
		}
	}
	return nil
}

// rebuildDependentCache refreshes the cache row of every task that depends
// on doneTaskID after doneTaskID moves into or out of done/wontdo.
func (s *Store) rebuildDependentCache(ctx context.Context, doneTaskID int64) error {
	dependents, err := s.Dependents(ctx, doneTaskID)
	if err != nil {
		return err
	}
	for _, depID := range dependents {
		if err := s.rebuildTaskCache(ctx, depID); err != nil {
			return err
		}
	}
	return nil
}
