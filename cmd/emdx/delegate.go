package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/git"
	"github.com/arockwell/emdx/internal/types"
)

// repoRootOrEmpty resolves the main repository root even when invoked
// from inside one of the delegate executor's own worktrees, so a
// recipe or delegate run launched from a worktree still isolates new
// work against the main checkout rather than nesting worktrees.
func repoRootOrEmpty() string {
	if root, err := git.GetMainRepoRoot(); err == nil && root != "" {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func newDelegateCmd() *cobra.Command {
	var (
		toolAllowlist      []string
		model              string
		worktreeFlag       bool
		prFlag, branchFlag bool
		docFlag            bool
		branchPrefix       string
		timeoutSeconds     int
		cleanup            bool
		waitForCompletion  bool
	)

	cmd := &cobra.Command{
		Use:   "delegate <prompt>",
		Short: "spawn an external agent subprocess to work on prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := types.ModeSynthesize
			switch {
			case prFlag:
				mode = types.ModePR
			case branchFlag:
				mode = types.ModeBranch
			case docFlag:
				mode = types.ModeDoc
			}
			job := executor.Job{
				Task:          args[0],
				ToolAllowlist: toolAllowlist,
				Model:         model,
				RepoRoot:      repoRootOrEmpty(),
				Worktree:      worktreeFlag || mode == types.ModePR || mode == types.ModeBranch,
				Mode:          mode,
				BranchPrefix:  branchPrefix,
				Cleanup:       cleanup,
			}
			if timeoutSeconds > 0 {
				job.Timeout = time.Duration(timeoutSeconds) * time.Second
			}
			id, err := theApp.exec.Spawn(cmd.Context(), job)
			if err != nil {
				return err
			}
			if !waitForCompletion {
				return printResult(map[string]any{"execution_id": id}, func() {
					fmt.Printf("spawned execution %s\n", id)
				})
			}
			ex, err := theApp.exec.Wait(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printResult(ex, func() { printExecution(ex) })
		},
	}
	cmd.Flags().StringSliceVar(&toolAllowlist, "tools", nil, "comma-separated tool allowlist passed to the agent")
	cmd.Flags().StringVar(&model, "model", "", "agent model selector")
	cmd.Flags().BoolVar(&worktreeFlag, "worktree", false, "isolate the run in a new git worktree")
	cmd.Flags().BoolVar(&prFlag, "pr", false, "after completion, push and open a pull request")
	cmd.Flags().BoolVar(&branchFlag, "branch", false, "after completion, push the branch without opening a PR")
	cmd.Flags().BoolVar(&docFlag, "doc", false, "always save captured output as a document regardless of size")
	cmd.Flags().StringVar(&branchPrefix, "branch-prefix", "delegate", "branch namespace for worktree/pr/branch modes")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "override the default execution timeout, in seconds")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove the worktree once the execution reaches a terminal state")
	cmd.Flags().BoolVar(&waitForCompletion, "wait", false, "block until the execution reaches a terminal status")

	cmd.AddCommand(newDelegateBatchCmd())
	return cmd
}

func newDelegateBatchCmd() *cobra.Command {
	var concurrency int
	var worktreeFlag, cleanup bool
	cmd := &cobra.Command{
		Use:   "batch <prompt>...",
		Short: "spawn multiple delegate jobs concurrently and wait for all to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := make([]executor.Job, len(args))
			for i, prompt := range args {
				jobs[i] = executor.Job{
					Task:     prompt,
					RepoRoot: repoRootOrEmpty(),
					Worktree: worktreeFlag,
					Mode:     types.ModeSynthesize,
					Cleanup:  cleanup,
				}
			}
			results, err := theApp.exec.RunBatch(cmd.Context(), jobs, concurrency)
			if err != nil {
				return err
			}
			return printResult(results, func() {
				for _, r := range results {
					if r.Err != nil {
						fmt.Printf("%s: error: %v\n", r.ExecutionID, r.Err)
						continue
					}
					printExecution(r.Execution)
				}
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent executions (default: configured max_concurrent)")
	cmd.Flags().BoolVar(&worktreeFlag, "worktree", false, "isolate each run in its own git worktree")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove each worktree once its execution reaches a terminal state")
	return cmd
}

func printExecution(ex *types.Execution) {
	if ex == nil {
		fmt.Println("no execution")
		return
	}
	fmt.Printf("%s: %s", ex.ID, ex.Status)
	if ex.ExitCode != nil {
		fmt.Printf(" (exit %d)", *ex.ExitCode)
	}
	fmt.Println()
	if ex.DocIDOutput != nil {
		fmt.Printf("  saved document #%d\n", *ex.DocIDOutput)
	}
	if ex.PRURL != "" {
		fmt.Printf("  pull request: %s\n", ex.PRURL)
	}
	if ex.FailureReason != "" {
		fmt.Printf("  reason: %s\n", ex.FailureReason)
	}
}
