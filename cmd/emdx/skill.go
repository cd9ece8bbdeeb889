package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/recipes"
	"github.com/arockwell/emdx/internal/types"
)

func newSkillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "list and invoke registered Go skills",
	}
	cmd.AddCommand(newSkillListCmd(), newSkillRunCmd())
	return cmd
}

func newSkillListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered skill names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := recipes.SkillNames()
			return printResult(names, func() {
				for _, n := range names {
					fmt.Println(n)
				}
			})
		},
	}
}

// newSkillRunCmd invokes a registered Skill with a capability Context
// scoped to this process's document store, search index, and delegate
// executor.
func newSkillRunCmd() *cobra.Command {
	var argFlags []string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "run a registered skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, ok := recipes.LookupSkill(args[0])
			if !ok {
				return fail(types.ErrKindNotFound, "no such skill: %s", args[0])
			}
			skillArgs := map[string]string{}
			for _, kv := range argFlags {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fail(types.ErrKindInvalidInput, "--arg expects key=value, got %q", kv)
				}
				skillArgs[k] = v
			}
			sc := recipes.NewContext(cmd.Context(), theApp.docs, theApp.srch, theApp.exec, skillArgs)
			out, err := sk.Run(sc)
			if err != nil {
				return err
			}
			return printResult(map[string]any{"output": out}, func() {
				fmt.Println(out)
			})
		},
	}
	cmd.Flags().StringArrayVar(&argFlags, "arg", nil, "key=value argument for the skill, repeatable")
	return cmd
}
