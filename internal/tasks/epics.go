package tasks

import (
	"context"
	"database/sql"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// GetEpic returns an epic by key. Status reflects the last automatic
// derivation (refreshed on every child task transition, see
// refreshEpicStatus) or an explicit SetEpicStatus override, whichever
// happened most recently.
func (s *Store) GetEpic(ctx context.Context, key string) (*types.Epic, error) {
	var (
		e         types.Epic
		category  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, title, category, status, created_at FROM epics WHERE key = ?`, key).
		Scan(&e.Key, &e.Title, &category, &e.Status, &createdAt)
	if err != nil {
		return nil, storage.WrapDBErrorf(err, "get epic %s", key)
	}
	e.Category = category.String
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

// refreshEpicStatus recomputes and persists key's derived status from its
// current child tasks. Called after every task status transition whose
// task belongs to an epic; a later SetEpicStatus call stands until the
// next transition recomputes it again.
func (s *Store) refreshEpicStatus(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	derived, err := deriveEpicStatus(ctx, s.db, key)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE epics SET status = ? WHERE key = ?`, derived, key)
	if err != nil {
		return storage.WrapDBError("refresh epic status", err)
	}
	return nil
}

// deriveEpicStatus computes an epic's status from its child tasks: done iff
// every child is done or wontdo, active iff any child is active, else open.
func deriveEpicStatus(ctx context.Context, db interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, key string) (types.EpicStatus, error) {
	rows, err := db.QueryContext(ctx, `SELECT status FROM tasks WHERE epic_key = ?`, key)
	if err != nil {
		return "", storage.WrapDBError("list epic tasks", err)
	}
	defer rows.Close()

	var total, terminal, active int
	for rows.Next() {
		var st types.TaskStatus
		if err := rows.Scan(&st); err != nil {
			return "", err
		}
		total++
		if st == types.TaskDone || st == types.TaskWontdo {
			terminal++
		}
		if st == types.TaskActive {
			active++
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case total > 0 && terminal == total:
		return types.EpicDone, nil
	case active > 0:
		return types.EpicActive, nil
	default:
		return types.EpicOpen, nil
	}
}

// SetEpicStatus manually overrides an epic's status, bypassing derivation.
func (s *Store) SetEpicStatus(ctx context.Context, key string, status types.EpicStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE epics SET status = ? WHERE key = ?`, status, key)
	if err != nil {
		return storage.WrapDBError("set epic status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
