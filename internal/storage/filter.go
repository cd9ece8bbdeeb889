package storage

import "strings"

// FilterBuilder accumulates SQL WHERE fragments and their bound arguments.
// It is the single code path documents, search, and tasks all build their
// dynamic queries through, so a filter added in one place (date ranges,
// status lists, tag membership) behaves identically everywhere it is used.
type FilterBuilder struct {
	clauses []string
	args    []any
}

// NewFilterBuilder returns an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// Add appends a clause with its positional arguments. clause must use `?`
// placeholders matching len(args).
func (b *FilterBuilder) Add(clause string, args ...any) {
	b.clauses = append(b.clauses, clause)
	b.args = append(b.args, args...)
}

// AddIf appends a clause only when cond is true, so call sites don't need
// their own branching around optional filters.
func (b *FilterBuilder) AddIf(cond bool, clause string, args ...any) {
	if cond {
		b.Add(clause, args...)
	}
}

// Build renders "WHERE a AND b AND c" (or "" if no clauses were added) plus
// the matching argument slice in clause order.
func (b *FilterBuilder) Build() (string, []any) {
	if len(b.clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(b.clauses, " AND "), b.args
}

// TagClause builds the ALL-of/ANY-of tag-membership predicate shared by
// the documents and search packages, so tag filtering behaves identically
// on every listing and search path. alias qualifies the document id
// column ("d" for aliased queries, "" for bare documents queries).
func TagClause(alias string, tags []string, matchAll bool) (string, []any) {
	col := "id"
	if alias != "" {
		col = alias + ".id"
	}
	placeholders := make([]string, len(tags))
	args := make([]any, len(tags))
	for i, t := range tags {
		placeholders[i] = "?"
		args[i] = t
	}
	sub := `SELECT dt.document_id FROM document_tags dt JOIN tags t ON t.id = dt.tag_id WHERE t.name IN (` +
		strings.Join(placeholders, ", ") + `)`
	if matchAll {
		sub += ` GROUP BY dt.document_id HAVING COUNT(DISTINCT t.name) = ?`
		args = append(args, len(tags))
	}
	return col + " IN (" + sub + ")", args
}

// Args returns the accumulated arguments without a WHERE prefix, for
// callers that interpolate the clauses into a larger statement themselves.
func (b *FilterBuilder) Args() []any {
	return b.args
}

// Clauses returns the accumulated clause fragments.
func (b *FilterBuilder) Clauses() []string {
	return b.clauses
}
