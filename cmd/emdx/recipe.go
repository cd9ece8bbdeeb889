package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/recipes"
	"github.com/arockwell/emdx/internal/types"
)

func newRecipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "run and inspect prompt-template recipes",
	}
	cmd.AddCommand(newRecipeListCmd(), newRecipeShowCmd(), newRecipeRunCmd())
	return cmd
}

func newRecipeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list available recipes, builtin and user-defined",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := recipes.Names(theApp.cfg.ConfigDir)
			if err != nil {
				return err
			}
			return printResult(names, func() {
				for _, n := range names {
					fmt.Println(n)
				}
			})
		},
	}
}

func newRecipeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "print a recipe's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := recipes.Get(args[0], theApp.cfg.ConfigDir)
			if err != nil {
				return fail(types.ErrKindNotFound, "%v", err)
			}
			return printResult(r, func() {
				fmt.Printf("%s: %s\n", r.Name, r.Description)
				for i, step := range r.Steps {
					fmt.Printf("  %d. %s\n", i+1, step.Prompt)
				}
			})
		},
	}
}

// newRecipeRunCmd executes a recipe's steps in sequence through the
// delegate executor, chaining each step's captured output into the
// next step's prev_stdout variable.
func newRecipeRunCmd() *cobra.Command {
	var varFlags []string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "run a recipe end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := recipes.Get(args[0], theApp.cfg.ConfigDir)
			if err != nil {
				return fail(types.ErrKindNotFound, "%v", err)
			}
			vars := map[string]string{}
			for _, kv := range varFlags {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fail(types.ErrKindInvalidInput, "--var expects key=value, got %q", kv)
				}
				vars[k] = v
			}
			runner := recipes.NewRunner(theApp.exec, repoRootOrEmpty())
			results, err := runner.Run(cmd.Context(), r, vars)
			if err != nil {
				return err
			}
			return printResult(results, func() {
				for i, res := range results {
					fmt.Printf("step %d (%s): %s\n", i+1, res.ExecutionID, res.Execution.Status)
				}
			})
		},
	}
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "key=value substitution for {{key}} placeholders, repeatable")
	return cmd
}
