package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Create(ctx, "Implement feature", "", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Transition(ctx, id, types.TaskActive, "starting"))
	task, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.TaskActive, task.Status)

	require.NoError(t, s.Transition(ctx, id, types.TaskDone, "finished"))
	task, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, task.Status)
	require.NotNil(t, task.CompletedAt)

	err = s.Transition(ctx, id, types.TaskDone, "")
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	require.Equal(t, types.ErrKindConflictState, typedErr.Kind)
}

func TestReadyQueueOrdersByPriorityThenAge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	low, err := s.Create(ctx, "Low priority", "", CreateOptions{Priority: 5})
	require.NoError(t, err)
	high, err := s.Create(ctx, "High priority", "", CreateOptions{Priority: 1})
	require.NoError(t, err)

	ready, err := s.ReadyQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	require.Equal(t, high, ready[0].ID)
	require.Equal(t, low, ready[1].ID)
}

func TestDependencyBlocksReadinessUntilSatisfied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocker, err := s.Create(ctx, "Blocker", "", CreateOptions{})
	require.NoError(t, err)
	dependent, err := s.Create(ctx, "Dependent", "", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.DependOn(ctx, dependent, blocker))

	task, err := s.Get(ctx, dependent)
	require.NoError(t, err)
	require.Equal(t, types.TaskBlocked, task.Status)

	ready, err := s.ReadyQueue(ctx, 10)
	require.NoError(t, err)
	require.NotContains(t, taskIDs(ready), dependent)

	require.NoError(t, s.Transition(ctx, blocker, types.TaskDone, ""))

	task, err = s.Get(ctx, dependent)
	require.NoError(t, err)
	require.Equal(t, types.TaskOpen, task.Status)

	ready, err = s.ReadyQueue(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, taskIDs(ready), dependent)
}

func TestReopeningDependencyReblocksDependents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocker, err := s.Create(ctx, "Blocker", "", CreateOptions{})
	require.NoError(t, err)
	dependent, err := s.Create(ctx, "Dependent", "", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.DependOn(ctx, dependent, blocker))
	require.NoError(t, s.Transition(ctx, blocker, types.TaskDone, ""))

	task, err := s.Get(ctx, dependent)
	require.NoError(t, err)
	require.Equal(t, types.TaskOpen, task.Status)
	ready, err := s.ReadyQueue(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, taskIDs(ready), dependent)

	// Reopening the blocker must reblock the dependent and remove it from
	// the ready queue again — blocked_task_cache is keyed off live status,
	// not a one-way snapshot taken when the dependency first finished.
	require.NoError(t, s.Transition(ctx, blocker, types.TaskOpen, "reopened"))

	task, err = s.Get(ctx, dependent)
	require.NoError(t, err)
	require.Equal(t, types.TaskBlocked, task.Status)

	ready, err = s.ReadyQueue(ctx, 10)
	require.NoError(t, err)
	require.NotContains(t, taskIDs(ready), dependent)
}

func TestDependOnRefusesCycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Create(ctx, "A", "", CreateOptions{})
	require.NoError(t, err)
	b, err := s.Create(ctx, "B", "", CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.DependOn(ctx, b, a))
	err = s.DependOn(ctx, a, b)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrCycle)
}

func TestEpicStatusDerivation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t1, err := s.Create(ctx, "Task one", "", CreateOptions{EpicKey: "EP-1"})
	require.NoError(t, err)
	t2, err := s.Create(ctx, "Task two", "", CreateOptions{EpicKey: "EP-1"})
	require.NoError(t, err)

	epic, err := s.GetEpic(ctx, "EP-1")
	require.NoError(t, err)
	require.Equal(t, types.EpicOpen, epic.Status)

	require.NoError(t, s.Transition(ctx, t1, types.TaskActive, ""))
	epic, err = s.GetEpic(ctx, "EP-1")
	require.NoError(t, err)
	require.Equal(t, types.EpicActive, epic.Status)

	require.NoError(t, s.Transition(ctx, t1, types.TaskDone, ""))
	require.NoError(t, s.Transition(ctx, t2, types.TaskWontdo, ""))
	epic, err = s.GetEpic(ctx, "EP-1")
	require.NoError(t, err)
	require.Equal(t, types.EpicDone, epic.Status)
}

func taskIDs(tasks []*types.Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
