package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arockwell/emdx/internal/config"
	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"github.com/stretchr/testify/require"
)

// shellRunner is a fake AgentRunner that hands job.Task to /bin/sh -c,
// exercising the real process lifecycle without depending on any actual
// agent binary being installed.
type shellRunner struct{}

func (shellRunner) Binary() string { return "/bin/sh" }
func (shellRunner) Args(job Job) []string {
	return []string{"-c", job.Task}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.ExecutionTimeoutSeconds = 5
	cfg.KillGraceSeconds = 1
	cfg.HeartbeatIntervalSeconds = 1
	cfg.TailBufferBytes = 4096
	cfg.OutputSaveThresholdBytes = 1_000_000 // keep result-capture out of these tests

	docs := documents.New(db, nil)
	return New(db, docs, cfg, nil, shellRunner{}, nil, nil)
}

func waitTerminal(t *testing.T, e *Engine, id string, timeout time.Duration) *types.Execution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ex, err := e.Wait(ctx, id)
	require.NoError(t, err)
	return ex
}

func TestSpawnCompletesSuccessfully(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Spawn(context.Background(), Job{Task: "echo hello-world"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ex := waitTerminal(t, e, id, 5*time.Second)
	require.Equal(t, types.ExecCompleted, ex.Status)
	require.NotNil(t, ex.ExitCode)
	require.Equal(t, 0, *ex.ExitCode)
	require.Contains(t, ex.StdoutTail, "hello-world")
}

func TestSpawnRecordsNonZeroExitAsFailed(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Spawn(context.Background(), Job{Task: "exit 7"})
	require.NoError(t, err)

	ex := waitTerminal(t, e, id, 5*time.Second)
	require.Equal(t, types.ExecFailed, ex.Status)
	require.NotNil(t, ex.ExitCode)
	require.Equal(t, 7, *ex.ExitCode)
}

func TestSpawnTimesOutLongRunningJob(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.ExecutionTimeoutSeconds = 1
	e.cfg.KillGraceSeconds = 1

	id, err := e.Spawn(context.Background(), Job{Task: "sleep 30", Timeout: time.Second})
	require.NoError(t, err)

	ex := waitTerminal(t, e, id, 10*time.Second)
	require.Equal(t, types.ExecTimeout, ex.Status)
	require.NotNil(t, ex.ExitCode)
	require.Equal(t, 124, *ex.ExitCode)
}

func TestKillStopsRunningJob(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Spawn(context.Background(), Job{Task: "sleep 30", Timeout: time.Minute})
	require.NoError(t, err)

	// Give the process a moment to actually start before killing it.
	require.Eventually(t, func() bool {
		ex, err := e.Status(context.Background(), id)
		return err == nil && ex.Status == types.ExecRunning
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, e.Kill(id))

	ex := waitTerminal(t, e, id, 10*time.Second)
	require.Equal(t, types.ExecKilled, ex.Status)
	require.NotNil(t, ex.ExitCode)
	require.Equal(t, 130, *ex.ExitCode)
}

func TestTailStreamsLiveOutput(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Spawn(context.Background(), Job{Task: "echo line-one; sleep 0.2; echo line-two"})
	require.NoError(t, err)

	ch, unsub, err := e.Tail(id)
	if err != nil {
		// The job may have already finished before Tail subscribed; that's
		// an acceptable race in this fast-running test, not a failure.
		waitTerminal(t, e, id, 5*time.Second)
		return
	}
	defer unsub()

	var collected []byte
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				break loop
			}
			collected = append(collected, chunk...)
		case <-timeout:
			break loop
		}
	}
	waitTerminal(t, e, id, 5*time.Second)
	require.Contains(t, string(collected), "line")
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	e := newTestEngine(t)
	jobs := []Job{
		{Task: "echo ok-1"},
		{Task: "exit 3"},
		{Task: "echo ok-2"},
	}
	results, err := e.RunBatch(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, types.ExecCompleted, results[0].Execution.Status)

	require.NoError(t, results[1].Err)
	require.Equal(t, types.ExecFailed, results[1].Execution.Status)

	require.NoError(t, results[2].Err)
	require.Equal(t, types.ExecCompleted, results[2].Execution.Status)
}

func TestReconcileMarksStaleRunningExecutionAsFailed(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	ex := &types.Execution{
		ID:        "exec-stale-1",
		Task:      "noop",
		StartedAt: time.Now().Add(-time.Hour),
		LogPath:   filepath.Join(t.TempDir(), "exec-stale-1.log"),
	}
	require.NoError(t, insertPending(ctx, db, ex))
	require.NoError(t, markRunning(ctx, db, ex.ID, 999999, "", ""))

	// Backdate the heartbeat past the liveness window so the dead pid is
	// eligible for reconciliation without waiting out the 2h threshold.
	_, err = db.ExecContext(ctx,
		`UPDATE executions SET last_heartbeat = datetime('now', '-10 minutes') WHERE id = ?`, ex.ID)
	require.NoError(t, err)

	n, err := Reconcile(ctx, db, 2*time.Hour, 90*time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := Get(ctx, db, ex.ID)
	require.NoError(t, err)
	require.Equal(t, types.ExecFailed, got.Status)
	require.NotNil(t, got.ExitCode)
	require.Equal(t, 124, *got.ExitCode)
}
