package recipes

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/arockwell/emdx/internal/config"
	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"github.com/stretchr/testify/require"
)

// shellRunner hands a job's task straight to /bin/sh -c, the same fake
// used by internal/executor's own tests, so a recipe step exercises the
// real subprocess lifecycle without depending on an actual agent binary.
type shellRunner struct{}

func (shellRunner) Binary() string { return "/bin/sh" }
func (shellRunner) Args(job executor.Job) []string {
	return []string{"-c", job.Task}
}

func newTestEngine(t *testing.T) *executor.Engine {
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
	cfg.OutputSaveThresholdBytes = 1_000_000

	docs := documents.New(db, nil)
	return executor.New(db, docs, cfg, nil, shellRunner{}, nil, nil)
}

func TestRunnerChainsStepOutputIntoNextStep(t *testing.T) {
	engine := newTestEngine(t)
	runner := NewRunner(engine, t.TempDir())

	recipe := Recipe{
		Name: "chain-test",
		Steps: []Step{
			{Prompt: "echo step-one-output"},
			{Prompt: "echo got: {{prev_stdout}}"},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := runner.Run(ctx, recipe, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, types.ExecCompleted, results[0].Execution.Status)
	require.Contains(t, results[0].Execution.StdoutTail, "step-one-output")

	require.Equal(t, types.ExecCompleted, results[1].Execution.Status)
	require.Contains(t, results[1].Execution.StdoutTail, "step-one-output")
}

func TestRunnerStopsAtFirstFailedStep(t *testing.T) {
	engine := newTestEngine(t)
	runner := NewRunner(engine, t.TempDir())

	recipe := Recipe{
		Name: "fail-test",
		Steps: []Step{
			{Prompt: "exit 9"},
			{Prompt: "echo should-not-run"},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := runner.Run(ctx, recipe, nil)
	require.Error(t, err)
	require.Len(t, results, 1)
	require.Equal(t, types.ExecFailed, results[0].Execution.Status)
}

func TestRunnerRejectsEmptyRecipe(t *testing.T) {
	engine := newTestEngine(t)
	runner := NewRunner(engine, t.TempDir())

	_, err := runner.Run(context.Background(), Recipe{Name: "empty"}, nil)
	require.Error(t, err)
}
