package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

const execSelectColumns = `SELECT id, task, tool_allowlist, working_dir, model, mode, status, pid,
	started_at, last_heartbeat, completed_at, exit_code, log_path, stdout_tail,
	tokens_in, tokens_out, cost_usd, worktree_path, branch, doc_id_output, pr_url, failure_reason
	FROM executions`

func insertPending(ctx context.Context, db *storage.DB, e *types.Execution) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO executions (id, task, tool_allowlist, working_dir, model, mode, status, started_at, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Task, strings.Join(e.ToolAllowlist, ","), e.WorkingDir, e.Model, string(e.Mode),
		string(types.ExecPending), e.StartedAt, e.LogPath)
	return storage.WrapDBError("insert execution", err)
}

func markRunning(ctx context.Context, db *storage.DB, id string, pid int, worktreePath, branch string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE executions SET status = ?, pid = ?, last_heartbeat = CURRENT_TIMESTAMP,
			worktree_path = ?, branch = ? WHERE id = ?`,
		string(types.ExecRunning), pid, worktreePath, branch, id)
	return storage.WrapDBError("mark execution running", err)
}

func touchHeartbeat(ctx context.Context, db *storage.DB, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE executions SET last_heartbeat = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		id, string(types.ExecRunning))
	return storage.WrapDBError("touch heartbeat", err)
}

func appendStdoutTail(ctx context.Context, db *storage.DB, id, tail string) error {
	_, err := db.ExecContext(ctx, `UPDATE executions SET stdout_tail = ? WHERE id = ?`, tail, id)
	return storage.WrapDBError("update stdout tail", err)
}

type terminalUpdate struct {
	Status        types.ExecutionStatus
	ExitCode      *int
	FailureReason string
	DocIDOutput   *int64
	PRURL         string
	TokensIn      int64
	TokensOut     int64
	CostUSD       *float64
}

func markTerminal(ctx context.Context, db *storage.DB, id string, u terminalUpdate) error {
	_, err := db.ExecContext(ctx, `
		UPDATE executions SET status = ?, exit_code = ?, completed_at = CURRENT_TIMESTAMP,
			failure_reason = ?, doc_id_output = ?, pr_url = ?,
			tokens_in = ?, tokens_out = ?, cost_usd = ?
		WHERE id = ?`,
		string(u.Status), u.ExitCode, u.FailureReason, u.DocIDOutput, u.PRURL,
		u.TokensIn, u.TokensOut, u.CostUSD, id)
	return storage.WrapDBError("mark execution terminal", err)
}

func clearWorktree(ctx context.Context, db *storage.DB, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE executions SET worktree_path = '' WHERE id = ?`, id)
	return storage.WrapDBError("clear worktree path", err)
}

// Get fetches a single execution row by id.
func Get(ctx context.Context, db *storage.DB, id string) (*types.Execution, error) {
	row := db.QueryRowContext(ctx, execSelectColumns+` WHERE id = ?`, id)
	return scanExecution(row)
}

// ListFilter narrows a List call.
type ListFilter struct {
	Status []types.ExecutionStatus
	Limit  int
}

// List returns executions ordered by started_at desc, optionally filtered
// by status.
func List(ctx context.Context, db *storage.DB, f ListFilter) ([]*types.Execution, error) {
	fb := storage.NewFilterBuilder()
	if len(f.Status) > 0 {
		placeholders := make([]string, len(f.Status))
		args := make([]any, len(f.Status))
		for i, s := range f.Status {
			placeholders[i] = "?"
			args[i] = string(s)
		}
		fb.Add("status IN ("+strings.Join(placeholders, ",")+")", args...)
	}
	where, args := fb.Build()
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, execSelectColumns+" "+where+" ORDER BY started_at DESC LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, storage.WrapDBError("list executions", err)
	}
	defer rows.Close()

	var out []*types.Execution
	for rows.Next() {
		e, err := scanExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRunning returns every execution currently recorded as running, the
// set crash recovery inspects on startup.
func ListRunning(ctx context.Context, db *storage.DB) ([]*types.Execution, error) {
	return List(ctx, db, ListFilter{Status: []types.ExecutionStatus{types.ExecRunning}, Limit: 10000})
}

func scanExecution(row *sql.Row) (*types.Execution, error) {
	var e types.Execution
	var (
		toolAllowlist                                string
		mode, status                                  string
		pid                                           int
		lastHeartbeat, completedAt                    sql.NullString
		exitCode                                      sql.NullInt64
		tokensIn, tokensOut                           int64
		costUSD                                       sql.NullFloat64
		worktreePath, branch, prURL, failureReason     string
		docIDOutput                                   sql.NullInt64
		startedAt                                     time.Time
	)
	if err := row.Scan(&e.ID, &e.Task, &toolAllowlist, &e.WorkingDir, &e.Model, &mode, &status, &pid,
		&startedAt, &lastHeartbeat, &completedAt, &exitCode, &e.LogPath, &e.StdoutTail,
		&tokensIn, &tokensOut, &costUSD, &worktreePath, &branch, &docIDOutput, &prURL, &failureReason); err != nil {
		return nil, storage.WrapDBError("scan execution", err)
	}
	fillExecution(&e, toolAllowlist, mode, status, pid, startedAt, lastHeartbeat, completedAt, exitCode,
		tokensIn, tokensOut, costUSD, worktreePath, branch, docIDOutput, prURL, failureReason)
	return &e, nil
}

func scanExecutionRows(rows *sql.Rows) (*types.Execution, error) {
	var e types.Execution
	var (
		toolAllowlist                                string
		mode, status                                  string
		pid                                           int
		lastHeartbeat, completedAt                    sql.NullString
		exitCode                                      sql.NullInt64
		tokensIn, tokensOut                           int64
		costUSD                                       sql.NullFloat64
		worktreePath, branch, prURL, failureReason     string
		docIDOutput                                   sql.NullInt64
		startedAt                                     time.Time
	)
	if err := rows.Scan(&e.ID, &e.Task, &toolAllowlist, &e.WorkingDir, &e.Model, &mode, &status, &pid,
		&startedAt, &lastHeartbeat, &completedAt, &exitCode, &e.LogPath, &e.StdoutTail,
		&tokensIn, &tokensOut, &costUSD, &worktreePath, &branch, &docIDOutput, &prURL, &failureReason); err != nil {
		return nil, storage.WrapDBError("scan execution", err)
	}
	fillExecution(&e, toolAllowlist, mode, status, pid, startedAt, lastHeartbeat, completedAt, exitCode,
		tokensIn, tokensOut, costUSD, worktreePath, branch, docIDOutput, prURL, failureReason)
	return &e, nil
}

func fillExecution(e *types.Execution, toolAllowlist, mode, status string, pid int, startedAt time.Time,
	lastHeartbeat, completedAt sql.NullString, exitCode sql.NullInt64, tokensIn, tokensOut int64,
	costUSD sql.NullFloat64, worktreePath, branch string, docIDOutput sql.NullInt64, prURL, failureReason string) {
	if toolAllowlist != "" {
		e.ToolAllowlist = strings.Split(toolAllowlist, ",")
	}
	e.Mode = types.ExecutionMode(mode)
	e.Status = types.ExecutionStatus(status)
	e.PID = pid
	e.StartedAt = startedAt.UTC()
	if lastHeartbeat.Valid {
		t := parseSQLiteTime(lastHeartbeat.String)
		e.LastHeartbeat = &t
	}
	if completedAt.Valid {
		t := parseSQLiteTime(completedAt.String)
		e.CompletedAt = &t
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		e.ExitCode = &v
	}
	e.TokensIn = tokensIn
	e.TokensOut = tokensOut
	if costUSD.Valid {
		v := costUSD.Float64
		e.CostUSD = &v
	}
	e.WorktreePath = worktreePath
	e.Branch = branch
	if docIDOutput.Valid {
		v := docIDOutput.Int64
		e.DocIDOutput = &v
	}
	e.PRURL = prURL
	e.FailureReason = failureReason
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
