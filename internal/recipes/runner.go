package recipes

import (
	"context"
	"fmt"
	"time"

	"github.com/arockwell/emdx/internal/eventbus"
	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/types"
)

// StepResult is one step's outcome within a recipe run.
type StepResult struct {
	Step        Step
	ExecutionID string
	Execution   *types.Execution
}

// Runner executes a Recipe's steps sequentially against a Delegate
// executor, chaining each step's stdout into the next step's
// `{{prev_stdout}}` variable.
type Runner struct {
	engine   *executor.Engine
	repoRoot string
}

// NewRunner builds a Runner over an already-constructed executor.Engine.
// repoRoot is used for any step that requests worktree/pr/branch mode.
func NewRunner(engine *executor.Engine, repoRoot string) *Runner {
	return &Runner{engine: engine, repoRoot: repoRoot}
}

// Run executes every step of recipe in order, stopping at the first
// step whose execution does not complete successfully. vars seeds the
// substitution map for step 1; `prev_stdout` is injected automatically
// from step 2 onward.
func (r *Runner) Run(ctx context.Context, recipe Recipe, vars map[string]string) ([]StepResult, error) {
	if len(recipe.Steps) == 0 {
		return nil, fmt.Errorf("recipes: recipe %q has no steps", recipe.Name)
	}

	merged := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		merged[k] = v
	}

	results := make([]StepResult, 0, len(recipe.Steps))
	for i, step := range recipe.Steps {
		prompt := Render(step.Prompt, merged)

		mode := types.ModeSynthesize
		switch {
		case step.PR:
			mode = types.ModePR
		case step.Branch:
			mode = types.ModeBranch
		}

		job := executor.Job{
			Task:          prompt,
			ToolAllowlist: step.ToolAllowlist,
			Model:         step.Model,
			RepoRoot:      r.repoRoot,
			Worktree:      step.Worktree || step.PR || step.Branch,
			Mode:          mode,
			Cleanup:       true,
		}
		if step.TimeoutSeconds > 0 {
			job.Timeout = time.Duration(step.TimeoutSeconds) * time.Second
		}

		ex, err := r.runStep(ctx, job)
		if err != nil {
			return results, fmt.Errorf("recipes: step %d of %q: %w", i+1, recipe.Name, err)
		}
		results = append(results, StepResult{Step: step, ExecutionID: ex.ID, Execution: ex})

		if ex.Status != types.ExecCompleted {
			return results, fmt.Errorf("recipes: step %d of %q ended %s: %s", i+1, recipe.Name, ex.Status, ex.FailureReason)
		}
		merged["prev_stdout"] = ex.StdoutTail
	}
	return results, nil
}

// runStep spawns job and blocks until its execution reaches a terminal
// event, using a WaitHandler registered on the executor's event bus —
// the mechanism the Delegate Executor's Bus() seam exists to serve.
func (r *Runner) runStep(ctx context.Context, job executor.Job) (*types.Execution, error) {
	id, err := r.engine.Spawn(ctx, job)
	if err != nil {
		return nil, err
	}

	wh := eventbus.NewWaitHandler(id)
	bus := r.engine.Bus()
	bus.Register(wh)
	defer bus.Unregister(wh.ID())

	select {
	case <-wh.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.engine.Status(ctx, id)
}
