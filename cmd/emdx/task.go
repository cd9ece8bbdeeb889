package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/tasks"
	"github.com/arockwell/emdx/internal/types"
)

func printTasks(list []*types.Task) {
	if len(list) == 0 {
		fmt.Println("no tasks")
		return
	}
	for _, t := range list {
		epic := ""
		if t.EpicKey != "" {
			epic = " [" + t.EpicKey + "]"
		}
		fmt.Printf("#%d (%s, p%d)%s %s\n", t.ID, t.Status, t.Priority, epic, t.Title)
	}
}

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "manage tasks, epics, and dependencies",
	}
	cmd.AddCommand(
		newTaskAddCmd(), newTaskViewCmd(), newTaskListCmd(),
		newTaskTransitionCmd(types.TaskActive, "active", "mark a task active"),
		newTaskTransitionCmd(types.TaskDone, "done", "mark a task done"),
		newTaskTransitionCmd(types.TaskBlocked, "blocked", "mark a task blocked"),
		newTaskTransitionCmd(types.TaskFailed, "failed", "mark a task failed"),
		newTaskTransitionCmd(types.TaskWontdo, "wontdo", "mark a task won't-do"),
		newTaskTransitionCmd(types.TaskOpen, "reopen", "reopen a task"),
		newTaskReadyCmd(), newTaskLogCmd(), newTaskDependCmd(), newTaskUndependCmd(),
		newTaskDeleteCmd(),
	)
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var description, epicKey, category string
	var priority int
	var sourceDocID, parentTaskID int64
	cmd := &cobra.Command{
		Use:     "add <title>",
		Aliases: []string{"create"},
		Short:   "create a new open task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tasks.CreateOptions{Priority: priority, EpicKey: epicKey, Category: category}
			if sourceDocID != 0 {
				opts.SourceDocID = &sourceDocID
			}
			if parentTaskID != 0 {
				opts.ParentTaskID = &parentTaskID
			}
			id, err := theApp.tasks.Create(cmd.Context(), args[0], description, opts)
			if err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("created task %d: %s\n", id, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().IntVar(&priority, "priority", 3, "priority 1 (highest) .. 5")
	cmd.Flags().StringVar(&epicKey, "epic", "", "epic key to group this task under")
	cmd.Flags().StringVar(&category, "category", "", "short category code, e.g. FEAT/FIX/ARCH/DOCS/TEST/CHORE")
	cmd.Flags().Int64Var(&sourceDocID, "source-doc", 0, "id of the document this task originated from")
	cmd.Flags().Int64Var(&parentTaskID, "parent", 0, "parent task id")
	return cmd
}

func newTaskViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "view a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "task view requires a numeric id")
			}
			t, err := theApp.tasks.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printResult(t, func() {
				printTasks([]*types.Task{t})
				if t.Description != "" {
					fmt.Println(t.Description)
				}
			})
		},
	}
}

func newTaskListCmd() *cobra.Command {
	var statusFlags []string
	var epicKey, category string
	var includeArchived bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []types.TaskStatus
			for _, s := range statusFlags {
				statuses = append(statuses, types.TaskStatus(s))
			}
			list, err := theApp.tasks.List(cmd.Context(), types.WorkFilter{
				Status: statuses, EpicKey: epicKey, Category: category,
				IncludeArchived: includeArchived, Limit: limit,
			})
			if err != nil {
				return err
			}
			return printResult(list, func() { printTasks(list) })
		},
	}
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "filter by status (open,active,blocked,done,failed,wontdo)")
	cmd.Flags().StringVar(&epicKey, "epic", "", "filter by epic key")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived tasks")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")
	return cmd
}

func newTaskReadyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "list open tasks whose dependencies are all satisfied, ordered by priority then creation time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := theApp.tasks.ReadyQueue(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printResult(list, func() { printTasks(list) })
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")
	return cmd
}

func newTaskTransitionCmd(status types.TaskStatus, use, short string) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "task %s requires a numeric id", use)
			}
			if err := theApp.tasks.Transition(cmd.Context(), id, status, message); err != nil {
				return err
			}
			return printResult(map[string]any{"id": id, "status": status}, func() {
				fmt.Printf("task %d -> %s\n", id, status)
			})
		},
	}
	cmd.Flags().StringVar(&message, "note", "", "note recorded alongside the status transition")
	return cmd
}

func newTaskLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <id> <text>",
		Short: "append a note to a task's log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "task log requires a numeric id")
			}
			if err := theApp.tasks.LogNote(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("logged note on task %d\n", id)
			})
		},
	}
}

func newTaskDependCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depend <id> <depends-on-id>",
		Short: "make id depend on (be blocked by) depends-on-id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, ok1 := resolveDocID(args[0])
			to, ok2 := resolveDocID(args[1])
			if !ok1 || !ok2 {
				return fail(types.ErrKindInvalidInput, "task depend requires two numeric ids")
			}
			if err := theApp.tasks.DependOn(cmd.Context(), from, to); err != nil {
				return err
			}
			return printResult(map[string]any{"from": from, "to": to}, func() {
				fmt.Printf("task %d now depends on task %d\n", from, to)
			})
		},
	}
}

func newTaskUndependCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undepend <id> <depends-on-id>",
		Short: "remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, ok1 := resolveDocID(args[0])
			to, ok2 := resolveDocID(args[1])
			if !ok1 || !ok2 {
				return fail(types.ErrKindInvalidInput, "task undepend requires two numeric ids")
			}
			if err := theApp.tasks.RemoveDependency(cmd.Context(), from, to); err != nil {
				return err
			}
			return printResult(map[string]any{"from": from, "to": to}, func() {
				fmt.Printf("removed dependency: task %d no longer depends on task %d\n", from, to)
			})
		},
	}
}

func newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "task delete requires a numeric id")
			}
			if err := theApp.tasks.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("deleted task %d\n", id)
			})
		},
	}
}
