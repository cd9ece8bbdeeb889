package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/types"
)

// resolveDocID reports whether ref parses as a numeric document id;
// non-numeric refs are treated as titles by callers.
func resolveDocID(ref string) (int64, bool) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func getDoc(ctx context.Context, ref string, counting bool) (*types.Document, error) {
	if id, ok := resolveDocID(ref); ok {
		return theApp.docs.Get(ctx, id, counting)
	}
	return theApp.docs.GetByTitle(ctx, ref, counting)
}

func newSaveCmd() *cobra.Command {
	var project string
	var tags []string
	var parentID int64
	var supersede bool

	cmd := &cobra.Command{
		Use:   "save <title> <content>",
		Short: "save a new document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := documents.SaveOptions{Project: project, Tags: tags, Supersede: supersede}
			if parentID != 0 {
				opts.ParentID = &parentID
			}
			id, err := theApp.docs.Save(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("saved document %d: %s\n", id, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project label")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().Int64Var(&parentID, "parent", 0, "parent document id")
	cmd.Flags().BoolVar(&supersede, "supersede", false, "archive any existing document with the same title and link to it")
	return cmd
}

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "view <id|title>",
		Aliases: []string{"get"},
		Short:   "view a document, bumping its access count",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			return printResult(doc, func() {
				fmt.Printf("#%d %s\n", doc.ID, doc.Title)
				if doc.Project != "" {
					fmt.Printf("project: %s\n", doc.Project)
				}
				if len(doc.Tags) > 0 {
					fmt.Printf("tags: %s\n", strings.Join(doc.Tags, ", "))
				}
				fmt.Println()
				fmt.Println(doc.Content)
			})
		},
	}
	return cmd
}

func newEditCmd() *cobra.Command {
	var title, content, project string
	cmd := &cobra.Command{
		Use:   "edit <id|title>",
		Short: "update a document's title, content, or project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			fields := documents.UpdateFields{}
			if cmd.Flags().Changed("title") {
				fields.Title = &title
			}
			if cmd.Flags().Changed("content") {
				fields.Content = &content
			}
			if cmd.Flags().Changed("project") {
				fields.Project = &project
			}
			if err := theApp.docs.Update(cmd.Context(), doc.ID, fields); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID}, func() {
				fmt.Printf("updated document %d\n", doc.ID)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVar(&project, "project", "", "new project")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id|title>",
		Aliases: []string{"trash", "rm"},
		Short:   "soft-delete a document (move to trash)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := theApp.docs.SoftDelete(cmd.Context(), doc.ID); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID}, func() {
				fmt.Printf("moved document %d to trash\n", doc.ID)
			})
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "restore a trashed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "restore requires a numeric document id")
			}
			if err := theApp.docs.Restore(cmd.Context(), id); err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("restored document %d\n", id)
			})
		},
	}
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "permanently remove a trashed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := resolveDocID(args[0])
			if !ok {
				return fail(types.ErrKindInvalidInput, "purge requires a numeric document id")
			}
			if err := theApp.docs.Purge(cmd.Context(), id); err != nil {
				return err
			}
			return printResult(map[string]any{"id": id}, func() {
				fmt.Printf("purged document %d\n", id)
			})
		},
	}
}

func newArchiveCmd() *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "archive <id|title>",
		Short: "hide a document from default listings without trashing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := theApp.docs.Archive(cmd.Context(), doc.ID, cascade); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID}, func() {
				fmt.Printf("archived document %d\n", doc.ID)
			})
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also archive descendant documents")
	return cmd
}

func newUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <id|title>",
		Short: "restore a document to the default listing set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			if err := theApp.docs.Unarchive(cmd.Context(), doc.ID); err != nil {
				return err
			}
			return printResult(map[string]any{"id": doc.ID}, func() {
				fmt.Printf("unarchived document %d\n", doc.ID)
			})
		},
	}
}
