package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/types"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "inspect and control delegate executions",
	}
	cmd.AddCommand(newExecListCmd(), newExecHealthCmd(), newExecKillCmd(), newExecTailCmd(), newExecCleanupCmd())
	return cmd
}

func newExecListCmd() *cobra.Command {
	var statusFlags []string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list delegate executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []types.ExecutionStatus
			for _, s := range statusFlags {
				statuses = append(statuses, types.ExecutionStatus(s))
			}
			list, err := executor.List(cmd.Context(), theApp.db, executor.ListFilter{Status: statuses, Limit: limit})
			if err != nil {
				return err
			}
			return printResult(list, func() {
				if len(list) == 0 {
					fmt.Println("no executions")
					return
				}
				for _, ex := range list {
					fmt.Printf("%s %s (%s) %s\n", ex.ID, ex.Status, humanize.Time(ex.StartedAt), truncate(ex.Task, 60))
				}
			})
		},
	}
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "filter by status (pending,running,completed,failed,timeout,killed)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")
	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// newExecHealthCmd reconciles any execution left `running` by a process
// that is no longer alive or whose heartbeat has gone stale.
func newExecHealthCmd() *cobra.Command {
	var ageMinutes int
	cmd := &cobra.Command{
		Use:   "health",
		Short: "reconcile stale running executions to failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := time.Duration(theApp.cfg.StaleThresholdSeconds) * time.Second
			if ageMinutes > 0 {
				age = time.Duration(ageMinutes) * time.Minute
			}
			n, err := executor.Reconcile(cmd.Context(), theApp.db, age,
				time.Duration(theApp.cfg.LivenessTimeoutSeconds)*time.Second, theApp.log)
			if err != nil {
				return err
			}
			return printResult(map[string]any{"reconciled": n}, func() {
				fmt.Printf("reconciled %d stale execution(s)\n", n)
			})
		},
	}
	cmd.Flags().IntVar(&ageMinutes, "age", 0, "staleness age in minutes (default: configured stale_threshold_seconds, canonically 2h)")
	return cmd
}

func newExecKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <execution-id>",
		Short: "gracefully terminate a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := theApp.exec.Kill(args[0]); err != nil {
				return err
			}
			return printResult(map[string]any{"execution_id": args[0]}, func() {
				fmt.Printf("killing execution %s\n", args[0])
			})
		},
	}
}

func newExecTailCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail <execution-id>",
		Short: "stream an execution's captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ex, err := executor.Get(cmd.Context(), theApp.db, id)
			if err != nil {
				return err
			}
			if !follow || ex.Status != types.ExecRunning {
				f, err := os.Open(ex.LogPath)
				if err != nil {
					return types.WrapError(types.ErrKindStorageUnavailable, err, "open log %s", ex.LogPath)
				}
				defer f.Close()
				scanner := bufio.NewScanner(f)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				for scanner.Scan() {
					fmt.Println(scanner.Text())
				}
				return scanner.Err()
			}

			ch, unsub, err := theApp.exec.Tail(id)
			if err != nil {
				return err
			}
			defer unsub()
			for {
				select {
				case chunk, ok := <-ch:
					if !ok {
						return nil
					}
					os.Stdout.Write(chunk)
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream live output until the execution finishes")
	return cmd
}

func newExecCleanupCmd() *cobra.Command {
	var ageMinutes int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "operator-invoked reconciliation of stale running executions (maintain cleanup --executions equivalent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := time.Duration(theApp.cfg.StaleThresholdSeconds) * time.Second
			if ageMinutes > 0 {
				age = time.Duration(ageMinutes) * time.Minute
			}
			n, err := executor.Reconcile(cmd.Context(), theApp.db, age,
				time.Duration(theApp.cfg.LivenessTimeoutSeconds)*time.Second, theApp.log)
			if err != nil {
				return err
			}
			return printResult(map[string]any{"reconciled": n}, func() {
				fmt.Printf("reconciled %d stale execution(s)\n", n)
			})
		},
	}
	cmd.Flags().IntVar(&ageMinutes, "age", 0, "staleness age in minutes")
	return cmd
}
