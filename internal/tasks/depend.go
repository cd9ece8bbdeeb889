package tasks

import (
	"context"
	"database/sql"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// DependOn records that fromID depends on (is blocked by) toID, refusing
// the edge if it would close a cycle in the dependency graph.
func (s *Store) DependOn(ctx context.Context, fromID, toID int64) error {
	if fromID == toID {
		return types.NewError(types.ErrKindInvalidInput, "a task cannot depend on itself")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cycle, err := wouldCreateCycle(ctx, tx, fromID, toID)
	if err != nil {
		return err
	}
	if cycle {
		return types.WrapError(types.ErrKindConflictState, storage.ErrCycle,
			"task %d depending on %d would create a cycle", fromID, toID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_dependencies (dependent_id, dependency_id) VALUES (?, ?)`,
		fromID, toID); err != nil {
		return storage.WrapDBError("add dependency", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return s.rebuildTaskCache(ctx, fromID)
}

// RemoveDependency deletes an existing dependency edge and refreshes the
// dependent task's readiness cache.
func (s *Store) RemoveDependency(ctx context.Context, fromID, toID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE dependent_id = ? AND dependency_id = ?`, fromID, toID)
	if err != nil {
		return storage.WrapDBError("remove dependency", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return s.rebuildTaskCache(ctx, fromID)
}

// wouldCreateCycle does a BFS from toID looking for a path back to fromID
// through existing dependency edges. If one exists, adding fromID -> toID
// would close a cycle.
func wouldCreateCycle(ctx context.Context, tx *sql.Tx, fromID, toID int64) (bool, error) {
	visited := map[int64]bool{}
	queue := []int64{toID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == fromID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		rows, err := tx.QueryContext(ctx,
			`SELECT dependency_id FROM task_dependencies WHERE dependent_id = ?`, current)
		if err != nil {
			return false, storage.WrapDBError("walk dependency graph", err)
		}
		for rows.Next() {
			var next int64
			if err := rows.Scan(&next); err != nil {
				rows.Close()
				return false, err
			}
			if !visited[next] {
				queue = append(queue, next)
			}
		}
		rows.Close()
	}
	return false, nil
}

// Dependencies returns the ids a task depends on.
func (s *Store) Dependencies(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dependency_id FROM task_dependencies WHERE dependent_id = ?`, taskID)
	if err != nil {
		return nil, storage.WrapDBError("list dependencies", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Dependents returns the ids that depend on taskID, for cache invalidation
// when taskID's status changes.
func (s *Store) Dependents(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dependent_id FROM task_dependencies WHERE dependency_id = ?`, taskID)
	if err != nil {
		return nil, storage.WrapDBError("list dependents", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
