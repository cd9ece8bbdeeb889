package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "manage document tags",
	}
	cmd.AddCommand(
		newTagAddCmd(), newTagRemoveCmd(), newTagListCmd(), newTagRenameCmd(), newTagMergeCmd(),
	)
	return cmd
}

func newTagAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id|title> <tag>...",
		Short: "attach tags to a document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := theApp.docs.AddTags(cmd.Context(), doc.ID, args[1:]); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID, "tags": args[1:]}, func() {
				fmt.Printf("tagged document %d with %v\n", doc.ID, args[1:])
			})
		},
	}
}

func newTagRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|title> <tag>...",
		Short: "detach tags from a document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := theApp.docs.RemoveTags(cmd.Context(), doc.ID, args[1:]); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID, "tags": args[1:]}, func() {
				fmt.Printf("removed tags %v from document %d\n", args[1:], doc.ID)
			})
		},
	}
}

func newTagListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <id|title>",
		Short: "list a document's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			return printResult(doc.Tags, func() {
				if len(doc.Tags) == 0 {
					fmt.Println("no tags")
					return
				}
				for _, t := range doc.Tags {
					fmt.Println(t)
				}
			})
		},
	}
}

func newTagRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "rename a tag, preserving its usage_count across every tagged document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := theApp.docs.RenameTag(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return printResult(map[string]any{"old": args[0], "new": args[1]}, func() {
				fmt.Printf("renamed tag %q to %q\n", args[0], args[1])
			})
		},
	}
}

func newTagMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <src> <dest>",
		Short: "fold one tag's documents and usage_count into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := theApp.docs.MergeTags(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return printResult(map[string]any{"src": args[0], "dest": args[1]}, func() {
				fmt.Printf("merged tag %q into %q\n", args[0], args[1])
			})
		},
	}
}
