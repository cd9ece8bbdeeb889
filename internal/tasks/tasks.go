// Package tasks implements task/workflow state: creation, status
// transitions, dependency edges with cycle refusal, and epic grouping.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// Store is the task storage boundary.
type Store struct {
	db *storage.DB
}

// New builds a Store.
func New(db *storage.DB) *Store {
	return &Store{db: db}
}

const defaultPriority = 3

// CreateOptions carries the optional fields a new task may specify.
type CreateOptions struct {
	Priority     int
	EpicKey      string
	Category     string
	SourceDocID  *int64
	ParentTaskID *int64
}

// Create inserts a new open task and returns its id.
func (s *Store) Create(ctx context.Context, title, description string, opts CreateOptions) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, types.NewError(types.ErrKindInvalidInput, "task title must not be empty")
	}
	priority := opts.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	if priority < 1 || priority > 5 {
		return 0, types.NewError(types.ErrKindInvalidInput, "priority must be between 1 and 5, got %d", priority)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var epicSeq int
	if opts.EpicKey != "" {
		if _, err := ensureEpic(ctx, tx, opts.EpicKey); err != nil {
			return 0, err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(epic_seq), 0) + 1 FROM tasks WHERE epic_key = ?`, opts.EpicKey).Scan(&epicSeq); err != nil {
			return 0, storage.WrapDBError("next epic sequence", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, priority, epic_key, epic_seq, category, source_doc_id, parent_task_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		title, description, types.TaskOpen, priority, opts.EpicKey, epicSeq, opts.Category,
		nullInt(opts.SourceDocID), nullInt(opts.ParentTaskID))
	if err != nil {
		return 0, storage.WrapDBError("create task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blocked_task_cache (task_id, blocked, blocker_ids) VALUES (?, 0, '')`, id); err != nil {
		return 0, storage.WrapDBError("seed blocked_task_cache", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func ensureEpic(ctx context.Context, tx *sql.Tx, key string) (string, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO epics (key, title, category, status) VALUES (?, ?, '', ?)`, key, key, types.EpicOpen)
	if err != nil {
		return "", storage.WrapDBError("ensure epic", err)
	}
	return key, nil
}

var taskColumns = `id, title, description, status, priority, epic_key, epic_seq, category,
	source_doc_id, parent_task_id, created_at, updated_at, completed_at`

// qualifiedTaskColumns prefixes every task column with alias, for queries
// that join tasks against another table with overlapping column names.
func qualifiedTaskColumns(alias string) string {
	cols := strings.Split(taskColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// Get returns a single task by id.
func (s *Store) Get(ctx context.Context, id int64) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, storage.WrapDBErrorf(err, "get task %d", id)
	}
	return t, nil
}

func scanTask(row *sql.Row) (*types.Task, error) {
	var (
		t                      types.Task
		description            sql.NullString
		epicKey, category      sql.NullString
		sourceDocID, parentID  sql.NullInt64
		createdAt, updatedAt   string
		completedAt            sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority,
		&epicKey, &t.EpicSeq, &category, &sourceDocID, &parentID,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.EpicKey = epicKey.String
	t.Category = category.String
	if sourceDocID.Valid {
		v := sourceDocID.Int64
		t.SourceDocID = &v
	}
	if parentID.Valid {
		v := parentID.Int64
		t.ParentTaskID = &v
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		v := parseTime(completedAt.String)
		t.CompletedAt = &v
	}
	return &t, nil
}

func scanTaskRows(rows *sql.Rows) (*types.Task, error) {
	var (
		t                      types.Task
		description            sql.NullString
		epicKey, category      sql.NullString
		sourceDocID, parentID  sql.NullInt64
		createdAt, updatedAt   string
		completedAt            sql.NullString
	)
	if err := rows.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority,
		&epicKey, &t.EpicSeq, &category, &sourceDocID, &parentID,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.EpicKey = epicKey.String
	t.Category = category.String
	if sourceDocID.Valid {
		v := sourceDocID.Int64
		t.SourceDocID = &v
	}
	if parentID.Valid {
		v := parentID.Int64
		t.ParentTaskID = &v
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		v := parseTime(completedAt.String)
		t.CompletedAt = &v
	}
	return &t, nil
}

// List returns tasks matching f, ordered by priority then creation time.
func (s *Store) List(ctx context.Context, f types.WorkFilter) ([]*types.Task, error) {
	fb := storage.NewFilterBuilder()
	if len(f.Status) > 0 {
		placeholders := make([]string, len(f.Status))
		args := make([]any, len(f.Status))
		for i, st := range f.Status {
			placeholders[i] = "?"
			args[i] = st
		}
		fb.Add("status IN ("+strings.Join(placeholders, ",")+")", args...)
	}
	fb.AddIf(f.EpicKey != "", "epic_key = ?", f.EpicKey)
	fb.AddIf(f.Category != "", "category = ?", f.Category)
	where, args := fb.Build()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	sqlText := `SELECT ` + taskColumns + ` FROM tasks ` + where +
		` ORDER BY priority ASC, created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, storage.WrapDBError("list tasks", err)
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

// legalTransitions is the exact transition table: every pair is allowed
// except a status transitioning to itself.
func legalTransitions(from, to types.TaskStatus) bool {
	if from == to {
		return false
	}
	switch to {
	case types.TaskOpen, types.TaskActive, types.TaskBlocked, types.TaskDone, types.TaskFailed, types.TaskWontdo:
		return true
	default:
		return false
	}
}

// Transition moves a task to newStatus, appending a status_change log entry.
// completed_at is set when entering done/wontdo and cleared otherwise, so it
// always reflects the task's current terminal-completion state.
func (s *Store) Transition(ctx context.Context, id int64, newStatus types.TaskStatus, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current types.TaskStatus
	var epicKey sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT status, epic_key FROM tasks WHERE id = ?`, id).Scan(&current, &epicKey); err != nil {
		return storage.WrapDBErrorf(err, "transition task %d", id)
	}
	if !legalTransitions(current, newStatus) {
		return types.NewError(types.ErrKindConflictState, "cannot transition task %d from %s to %s", id, current, newStatus)
	}

	var completedAt any
	if newStatus == types.TaskDone || newStatus == types.TaskWontdo {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newStatus, completedAt, id); err != nil {
		return storage.WrapDBError("update task status", err)
	}

	logMsg := fmt.Sprintf("%s -> %s", current, newStatus)
	if message != "" {
		logMsg = logMsg + ": " + message
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO task_log (task_id, kind, message) VALUES (?, ?, ?)`,
		id, types.TaskLogStatusChange, logMsg); err != nil {
		return storage.WrapDBError("append task log", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	wasTerminalPositive := current == types.TaskDone || current == types.TaskWontdo
	isTerminalPositive := newStatus == types.TaskDone || newStatus == types.TaskWontdo
	if wasTerminalPositive || isTerminalPositive {
		if err := s.rebuildDependentCache(ctx, id); err != nil {
			return err
		}
	}
	if epicKey.Valid {
		if err := s.refreshEpicStatus(ctx, epicKey.String); err != nil {
			return err
		}
	}
	return nil
}

// LogNote appends a free-form note to a task's history.
func (s *Store) LogNote(ctx context.Context, id int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return types.NewError(types.ErrKindInvalidInput, "note text must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_log (task_id, kind, message) VALUES (?, ?, ?)`, id, types.TaskLogNote, text)
	if err != nil {
		return storage.WrapDBError("log note", err)
	}
	return nil
}

// LinkSource associates a task with the document it originated from.
func (s *Store) LinkSource(ctx context.Context, taskID, docID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET source_doc_id = ? WHERE id = ?`, docID, taskID)
	if err != nil {
		return storage.WrapDBError("link task source", err)
	}
	return nil
}

// Delete removes a task and its dependency edges/log history.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return storage.WrapDBError("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
