package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

func newMaintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "database migration, backup, and cleanup operations",
	}
	cmd.AddCommand(newMaintainMigrateCmd(), newMaintainBackupCmd(), newMaintainCleanupCmd())
	return cmd
}

// newMaintainMigrateCmd applies pending schema migrations. storage.Open
// already runs migrations on every startup, so this is an
// explicit operator hook for pre-upgrade maintenance windows where the
// migration should happen before anything else touches the database.
func newMaintainMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply any pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// theApp.db was opened (and migrated) during bootstrap; reopening
			// against the same path is a no-op when the schema is current and
			// otherwise runs whatever migrations remain.
			db, err := storage.Open(cmd.Context(), theApp.cfg.DBPath, theApp.log)
			if err != nil {
				return err
			}
			defer db.Close()
			return printResult(map[string]any{"db_path": theApp.cfg.DBPath}, func() {
				fmt.Printf("migrations applied to %s\n", theApp.cfg.DBPath)
			})
		},
	}
}

// newMaintainBackupCmd writes a consistent snapshot of the live database
// using SQLite's VACUUM INTO, which is safe to run against a database with
// an open WAL writer and produces a single compact file.
func newMaintainBackupCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "write a consistent snapshot of the database to a new file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				dest = fmt.Sprintf("%s.backup-%s", theApp.cfg.DBPath, time.Now().UTC().Format("20060102-150405"))
			}
			if _, err := theApp.db.ExecContext(cmd.Context(), "VACUUM INTO ?", dest); err != nil {
				return fail(types.ErrKindStorageUnavailable, "backup failed: %v", err)
			}
			return printResult(map[string]any{"path": dest}, func() {
				fmt.Printf("wrote backup to %s\n", dest)
			})
		},
	}
	cmd.Flags().StringVar(&dest, "out", "", "destination path (default: <db>.backup-<timestamp>)")
	return cmd
}

// newMaintainCleanupCmd is the operator-invoked counterpart to the
// automatic startup reconciliation: `--executions` reconciles stale
// `running` rows the same way engine startup does, `--age` overrides
// the canonical 2h threshold for that pass, and `--stale-tasks`
// surfaces `ListStale`'s abandoned-work report. Neither flag implies
// the other;
// passing neither is a no-op, matching `--executions`/`--stale-tasks`
// being independent operator choices rather than a combined default.
func newMaintainCleanupCmd() *cobra.Command {
	var executions, staleTasks bool
	var ageMinutes, staleDays, limit int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "reconcile stale executions and/or report abandoned tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]any{}

			if executions {
				age := time.Duration(theApp.cfg.StaleThresholdSeconds) * time.Second
				if ageMinutes > 0 {
					age = time.Duration(ageMinutes) * time.Minute
				}
				n, err := executor.Reconcile(cmd.Context(), theApp.db, age,
					time.Duration(theApp.cfg.LivenessTimeoutSeconds)*time.Second, theApp.log)
				if err != nil {
					return err
				}
				out["reconciled_executions"] = n
			}

			var stale []*types.Task
			if staleTasks {
				list, err := theApp.tasks.ListStale(cmd.Context(), staleDays, limit)
				if err != nil {
					return err
				}
				stale = list
				out["stale_tasks"] = list
			}

			return printResult(out, func() {
				if executions {
					fmt.Printf("reconciled %d stale execution(s)\n", out["reconciled_executions"])
				}
				if staleTasks {
					printTasks(stale)
				}
				if !executions && !staleTasks {
					fmt.Println("nothing to do: pass --executions and/or --stale-tasks")
				}
			})
		},
	}
	cmd.Flags().BoolVar(&executions, "executions", false, "reconcile stale running executions to failed")
	cmd.Flags().BoolVar(&staleTasks, "stale-tasks", false, "list open tasks untouched for a while")
	cmd.Flags().IntVar(&ageMinutes, "age", 0, "execution staleness age in minutes (default: configured stale_threshold_seconds, canonically 2h)")
	cmd.Flags().IntVar(&staleDays, "days", 14, "task staleness in days")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum stale tasks to report")
	return cmd
}
