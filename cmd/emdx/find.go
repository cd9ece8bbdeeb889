package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/search"
	"github.com/arockwell/emdx/internal/types"
)

// searchFlags is the common filter flag set shared by find/list/recent,
// since every search mode accepts the same filters. Registering them
// once keeps the flag names identical across commands.
type searchFlags struct {
	project         string
	tags            []string
	matchAll        bool
	includeArchived bool
	limit           int
	createdAfter    string
	createdBefore   string
	modifiedAfter   string
	modifiedBefore  string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", "", "filter by project")
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "filter by tags")
	cmd.Flags().BoolVar(&f.matchAll, "match-all-tags", false, "require every listed tag rather than any")
	cmd.Flags().BoolVar(&f.includeArchived, "include-archived", false, "include archived documents")
	cmd.Flags().IntVar(&f.limit, "limit", 10, "maximum results (<= 10000)")
	cmd.Flags().StringVar(&f.createdAfter, "created-after", "", "RFC3339 timestamp")
	cmd.Flags().StringVar(&f.createdBefore, "created-before", "", "RFC3339 timestamp")
	cmd.Flags().StringVar(&f.modifiedAfter, "modified-after", "", "RFC3339 timestamp")
	cmd.Flags().StringVar(&f.modifiedBefore, "modified-before", "", "RFC3339 timestamp")
}

func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, types.NewError(types.ErrKindInvalidInput, "invalid timestamp %q: %v", s, err)
	}
	return &t, nil
}

func (f *searchFlags) toSearchFilter() (search.Filter, error) {
	ca, err := parseTimeFlag(f.createdAfter)
	if err != nil {
		return search.Filter{}, err
	}
	cb, err := parseTimeFlag(f.createdBefore)
	if err != nil {
		return search.Filter{}, err
	}
	ma, err := parseTimeFlag(f.modifiedAfter)
	if err != nil {
		return search.Filter{}, err
	}
	mb, err := parseTimeFlag(f.modifiedBefore)
	if err != nil {
		return search.Filter{}, err
	}
	return search.Filter{
		Project: f.project, Tags: f.tags, TagsMatchAll: f.matchAll,
		CreatedAfter: ca, CreatedBefore: cb, ModifiedAfter: ma, ModifiedBefore: mb,
		IncludeArchived: f.includeArchived, Limit: f.limit,
	}, nil
}

func (f *searchFlags) toListFilter() (documents.ListFilter, error) {
	sf, err := f.toSearchFilter()
	if err != nil {
		return documents.ListFilter{}, err
	}
	return documents.ListFilter{
		Project: sf.Project, Tags: sf.Tags, TagsMatchAll: sf.TagsMatchAll,
		CreatedAfter: sf.CreatedAfter, CreatedBefore: sf.CreatedBefore,
		ModifiedAfter: sf.ModifiedAfter, ModifiedBefore: sf.ModifiedBefore,
		IncludeArchived: sf.IncludeArchived, Limit: sf.Limit,
	}, nil
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("no matching documents")
		return
	}
	for _, r := range results {
		age := humanize.Time(r.Document.CreatedAt)
		fmt.Printf("#%d %s (%s, rank %.3f)\n", r.Document.ID, r.Document.Title, age, r.Rank)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
}

func newFindCmd() *cobra.Command {
	var flags searchFlags
	var fuzzy, semantic, hybridMode bool
	var alpha float64
	var snippets bool

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "search documents by keyword, fuzzy match, semantic similarity, or hybrid fusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.toSearchFilter()
			if err != nil {
				return err
			}
			var results []search.Result
			switch {
			case fuzzy:
				results, err = theApp.srch.Fuzzy(cmd.Context(), args[0], f)
			case semantic:
				results, err = theApp.srch.Semantic(cmd.Context(), args[0], f)
			case hybridMode:
				results, err = theApp.srch.Hybrid(cmd.Context(), args[0], f, alpha)
			default:
				results, err = theApp.srch.Keyword(cmd.Context(), args[0], f)
			}
			if err != nil {
				return err
			}
			if !snippets {
				for i := range results {
					results[i].Snippet = ""
				}
			}
			return printResult(results, func() { printResults(results) })
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "use trigram fuzzy matching")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "use embedding cosine similarity")
	cmd.Flags().BoolVar(&hybridMode, "hybrid", false, "fuse keyword and semantic results")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "hybrid fusion weight toward semantic results")
	cmd.Flags().BoolVar(&snippets, "snippets", false, "include a match excerpt (keyword mode only)")
	return cmd
}

func newListCmd() *cobra.Command {
	var flags searchFlags
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lf, err := flags.toListFilter()
			if err != nil {
				return err
			}
			lf.IncludeDeleted = includeDeleted
			docs, err := theApp.docs.List(cmd.Context(), lf)
			if err != nil {
				return err
			}
			return printResult(docs, func() {
				if len(docs) == 0 {
					fmt.Println("no documents")
					return
				}
				for _, d := range docs {
					fmt.Printf("#%d %s (%s)\n", d.ID, d.Title, humanize.Time(d.CreatedAt))
				}
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include trashed documents")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "list the most recently created documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := theApp.docs.List(cmd.Context(), documents.ListFilter{Limit: limit})
			if err != nil {
				return err
			}
			return printResult(docs, func() {
				for _, d := range docs {
					fmt.Printf("#%d %s (%s)\n", d.ID, d.Title, humanize.Time(d.CreatedAt))
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newSimilarCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <id|title>",
		Short: "show documents linked to a document via document_links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			links, err := theApp.docs.Related(cmd.Context(), doc.ID, limit)
			if err != nil {
				return err
			}
			return printResult(links, func() {
				if len(links) == 0 {
					fmt.Println("no related documents")
					return
				}
				for _, l := range links {
					other := l.ToID
					if other == doc.ID {
						other = l.FromID
					}
					fmt.Printf("#%d (score %.2f, %s)\n", other, l.SimilarityScore, l.Method)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newAskCmd() *cobra.Command {
	var flags searchFlags
	var alpha float64
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "hybrid search tuned for question-answering prompts (keyword+semantic fusion)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.toSearchFilter()
			if err != nil {
				return err
			}
			results, err := theApp.srch.Hybrid(cmd.Context(), args[0], f, alpha)
			if err != nil {
				return err
			}
			return printResult(results, func() { printResults(results) })
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "hybrid fusion weight toward semantic results")
	return cmd
}

func newContextCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "context <id|title>",
		Short: "assemble a document plus its related documents as delegate-prompt context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := getDoc(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			links, err := theApp.docs.Related(cmd.Context(), doc.ID, limit)
			if err != nil {
				return err
			}
			type contextDoc struct {
				ID      int64  `json:"id"`
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			out := []contextDoc{{ID: doc.ID, Title: doc.Title, Content: doc.Content}}
			for _, l := range links {
				otherID := l.ToID
				if otherID == doc.ID {
					otherID = l.FromID
				}
				related, err := theApp.docs.Get(cmd.Context(), otherID, false)
				if err != nil {
					continue
				}
				out = append(out, contextDoc{ID: related.ID, Title: related.Title, Content: related.Content})
			}
			return printResult(out, func() {
				for _, d := range out {
					fmt.Printf("## %s (#%d)\n%s\n\n", d.Title, d.ID, d.Content)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum related documents to include")
	return cmd
}
