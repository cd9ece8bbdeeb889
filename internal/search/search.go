// Package search implements keyword, fuzzy, semantic, and hybrid document
// search over the storage engine's FTS mirror and embeddings table. Every
// mode funnels its optional filters through the same buildFilter helper so
// toggling include_archived (or any other filter) behaves identically no
// matter which mode is used — duplicating that logic per mode is exactly
// the defect this package is built to avoid.
package search

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"golang.org/x/sync/errgroup"
)

// Embedder is the pluggable seam for embedding generation. The search
// package never knows how embeddings are produced, only how to compare
// and store them.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// Filter narrows every search mode identically.
type Filter struct {
	Project         string
	Tags            []string
	TagsMatchAll    bool
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	ModifiedAfter   *time.Time
	ModifiedBefore  *time.Time
	IncludeArchived bool
	Limit           int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return 10
	}
	if f.Limit > 10000 {
		return 10000
	}
	return f.Limit
}

// buildFilter is the single filter-application path shared by every mode
// below (§4.3's contract invariant). Date predicates go through
// datetime() on both sides so SQLite's CURRENT_TIMESTAMP form and the
// RFC3339 form compare correctly; tag membership reuses the subquery the
// documents package lists through, so ALL-of/ANY-of behaves identically
// no matter which mode runs.
func buildFilter(f Filter) (string, []any) {
	fb := storage.NewFilterBuilder()
	fb.Add("d.deleted_at IS NULL")
	fb.AddIf(!f.IncludeArchived, "d.archived_at IS NULL")
	fb.AddIf(f.Project != "", "d.project = ?", f.Project)
	fb.AddIf(f.CreatedAfter != nil, "datetime(d.created_at) >= datetime(?)", timeArg(f.CreatedAfter))
	fb.AddIf(f.CreatedBefore != nil, "datetime(d.created_at) <= datetime(?)", timeArg(f.CreatedBefore))
	fb.AddIf(f.ModifiedAfter != nil, "datetime(d.updated_at) >= datetime(?)", timeArg(f.ModifiedAfter))
	fb.AddIf(f.ModifiedBefore != nil, "datetime(d.updated_at) <= datetime(?)", timeArg(f.ModifiedBefore))
	if len(f.Tags) > 0 {
		clause, args := storage.TagClause("d", f.Tags, f.TagsMatchAll)
		fb.Add(clause, args...)
	}
	return fb.Build()
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// Result is a ranked hit. Rank is mode-specific (BM25 for keyword, lower
// is better; cosine similarity for semantic, higher is better; fused score
// for hybrid, higher is better) — callers should not compare Rank across
// modes.
type Result struct {
	Document *types.Document
	Rank     float64
	Snippet  string
}

// Store executes search queries against a storage.DB.
type Store struct {
	db       *storage.DB
	embedder Embedder
}

// New builds a Store. embedder may be nil if semantic/hybrid modes are
// never used.
func New(db *storage.DB, embedder Embedder) *Store {
	return &Store{db: db, embedder: embedder}
}

// Keyword runs a BM25-ranked FTS query. query == "*" lists all live
// documents by created_at desc instead of matching FTS.
func (s *Store) Keyword(ctx context.Context, query string, f Filter) ([]Result, error) {
	where, args := buildFilter(f)

	if strings.TrimSpace(query) == "*" {
		sqlText := `SELECT d.id, d.title, d.content, d.project, d.created_at, d.updated_at
			FROM documents d ` + where + ` ORDER BY d.created_at DESC LIMIT ?`
		args = append(args, f.limit())
		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, storage.WrapDBError("wildcard search", err)
		}
		defer rows.Close()
		return scanPlain(rows)
	}

	sqlText := `SELECT d.id, d.title, d.content, d.project, d.created_at, d.updated_at, fts.rank
		FROM document_fts fts
		JOIN documents d ON d.id = fts.rowid
		` + where + (ifNonEmpty(where, " AND ", " WHERE ")) + `document_fts MATCH ?
		ORDER BY fts.rank ASC, d.created_at DESC
		LIMIT ?`
	args = append(args, query, f.limit())

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, storage.WrapDBError("keyword search", err)
	}
	defer rows.Close()
	return scanRanked(rows, query)
}

func ifNonEmpty(where, ifSet, ifUnset string) string {
	if where != "" {
		return ifSet
	}
	return ifUnset
}

// Fuzzy salvages near-miss queries using trigram overlap over title and a
// content prefix, scored in Go rather than via an extra dependency.
func (s *Store) Fuzzy(ctx context.Context, query string, f Filter) ([]Result, error) {
	where, args := buildFilter(f)
	sqlText := `SELECT d.id, d.title, d.content, d.project, d.created_at, d.updated_at
		FROM documents d ` + where
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, storage.WrapDBError("fuzzy search", err)
	}
	defer rows.Close()

	all, err := scanPlain(rows)
	if err != nil {
		return nil, err
	}

	queryTrigrams := trigrams(query)
	scored := make([]Result, 0, len(all))
	for _, r := range all {
		contentPrefix := r.Document.Content
		if len(contentPrefix) > 500 {
			contentPrefix = contentPrefix[:500]
		}
		score := trigramSimilarity(queryTrigrams, trigrams(r.Document.Title+" "+contentPrefix))
		if score <= 0 {
			continue
		}
		r.Rank = score
		scored = append(scored, r)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Rank > scored[j].Rank })
	if len(scored) > f.limit() {
		scored = scored[:f.limit()]
	}
	return scored, nil
}

// Semantic computes cosine similarity between a query embedding and each
// document's stored embedding for the embedder's current model, returning
// the top-K. Documents without an embedding for that model are skipped.
func (s *Store) Semantic(ctx context.Context, query string, f Filter) ([]Result, error) {
	if s.embedder == nil {
		return nil, types.NewError(types.ErrKindInvalidInput, "semantic search requires an Embedder")
	}
	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.ErrKindIntegrationError, err, "embed query")
	}

	where, args := buildFilter(f)
	sqlText := `SELECT d.id, d.title, d.content, d.project, d.created_at, d.updated_at, e.vector
		FROM documents d
		JOIN embeddings e ON e.document_id = d.id AND e.embedding_model = ?
		` + where
	args = append([]any{s.embedder.ModelID()}, args...)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, storage.WrapDBError("semantic search", err)
	}
	defer rows.Close()

	var scored []Result
	for rows.Next() {
		var (
			id                             int64
			title, content, project        string
			createdAt, updatedAt           string
			raw                            []byte
		)
		if err := rows.Scan(&id, &title, &content, &project, &createdAt, &updatedAt, &raw); err != nil {
			return nil, err
		}
		vec := decodeFloat32s(raw)
		sim := cosineSimilarity(queryVec, vec)
		scored = append(scored, Result{
			Document: &types.Document{ID: id, Title: title, Content: content, Project: project,
				CreatedAt: parseTime(createdAt), UpdatedAt: parseTime(updatedAt)},
			Rank: sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Rank > scored[j].Rank })
	if len(scored) > f.limit() {
		scored = scored[:f.limit()]
	}
	return scored, nil
}

// Hybrid merges keyword and semantic results via reciprocal-rank fusion
// over the top-N of each, weighted by alpha (keyword weight is 1-alpha,
// semantic weight is alpha). Ties are broken by keyword rank.
func (s *Store) Hybrid(ctx context.Context, query string, f Filter, alpha float64) ([]Result, error) {
	if alpha < 0 || alpha > 1 {
		alpha = 0.5
	}
	topN := f
	topN.Limit = max(f.limit(), 50)

	kw, err := s.Keyword(ctx, query, topN)
	if err != nil {
		return nil, err
	}
	var sem []Result
	if s.embedder != nil {
		sem, err = s.Semantic(ctx, query, topN)
		if err != nil {
			return nil, err
		}
	}

	const rrfK = 60.0
	fused := make(map[int64]float64)
	docs := make(map[int64]*types.Document)
	kwRank := make(map[int64]int)
	for i, r := range kw {
		fused[r.Document.ID] += (1 - alpha) * (1.0 / (rrfK + float64(i+1)))
		docs[r.Document.ID] = r.Document
		kwRank[r.Document.ID] = i
	}
	for i, r := range sem {
		fused[r.Document.ID] += alpha * (1.0 / (rrfK + float64(i+1)))
		docs[r.Document.ID] = r.Document
		if _, ok := kwRank[r.Document.ID]; !ok {
			kwRank[r.Document.ID] = len(kw) + i
		}
	}

	results := make([]Result, 0, len(fused))
	for id, score := range fused {
		results = append(results, Result{Document: docs[id], Rank: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		return kwRank[results[i].Document.ID] < kwRank[results[j].Document.ID]
	})
	if len(results) > f.limit() {
		results = results[:f.limit()]
	}
	return results, nil
}

func scanPlain(rows *sql.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			id                       int64
			title, content, project  string
			createdAt, updatedAt     string
		)
		if err := rows.Scan(&id, &title, &content, &project, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		out = append(out, Result{Document: &types.Document{ID: id, Title: title, Content: content, Project: project,
			CreatedAt: parseTime(createdAt), UpdatedAt: parseTime(updatedAt)}})
	}
	return out, rows.Err()
}

func scanRanked(rows *sql.Rows, query string) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			id                      int64
			title, content, project string
			createdAt, updatedAt    string
			rank                    float64
		)
		if err := rows.Scan(&id, &title, &content, &project, &createdAt, &updatedAt, &rank); err != nil {
			return nil, err
		}
		out = append(out, Result{
			Document: &types.Document{ID: id, Title: title, Content: content, Project: project,
				CreatedAt: parseTime(createdAt), UpdatedAt: parseTime(updatedAt)},
			Rank:    rank,
			Snippet: snippet(content, firstTerm(query)),
		})
	}
	return out, rows.Err()
}

// parseTime parses a SQLite-stored timestamp into UTC, tolerating both
// the RFC3339 form written by Go callers and the space-separated form
// SQLite's own CURRENT_TIMESTAMP produces, mirroring
// internal/documents's parseTime.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// firstTerm extracts the leading bare term of an FTS query for snippet
// positioning, stripping quote/prefix operators.
func firstTerm(query string) string {
	fields := strings.Fields(strings.Trim(query, `"*`))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"*`)
}

// snippet extracts a short excerpt around the first match of needle (or
// the document's start, when needle is empty) for display purposes.
func snippet(content, needle string) string {
	const radius = 80
	idx := 0
	if needle != "" {
		if i := strings.Index(strings.ToLower(content), strings.ToLower(needle)); i >= 0 {
			idx = i
		}
	}
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius
	if end > len(content) {
		end = len(content)
	}
	return strings.TrimSpace(content[start:end])
}

func trigrams(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	set := make(map[string]bool)
	if len(s) < 3 {
		if s != "" {
			set[s] = true
		}
		return set
	}
	for i := 0; i+3 <= len(s); i++ {
		set[s[i:i+3]] = true
	}
	return set
}

func trigramSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func decodeFloat32s(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func encodeFloat32s(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		bits := math.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// Reindex computes and stores embeddings for every live document that
// does not yet have one under the embedder's current model — the
// backfill a model upgrade or a fresh semantic-search rollout needs.
// Unlike the Delegate Executor's RunBatch, this is one coherent job: an
// embedder failure partway through aborts the whole run rather than
// silently leaving a patchwork of indexed and unindexed documents, so
// it fans out with errgroup instead of a tolerant semaphore.
func (s *Store) Reindex(ctx context.Context, concurrency int) (int, error) {
	if s.embedder == nil {
		return 0, types.NewError(types.ErrKindInvalidInput, "reindex requires an Embedder")
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content FROM documents d
		LEFT JOIN embeddings e ON e.document_id = d.id AND e.embedding_model = ?
		WHERE d.deleted_at IS NULL AND e.document_id IS NULL`, s.embedder.ModelID())
	if err != nil {
		return 0, storage.WrapDBError("list documents missing embeddings", err)
	}
	type candidate struct {
		id             int64
		title, content string
	}
	var pending []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.title, &c.content); err != nil {
			rows.Close()
			return 0, err
		}
		pending = append(pending, c)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	rows.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	var done int64
	for _, c := range pending {
		c := c
		g.Go(func() error {
			vec, err := s.embedder.EmbedText(gctx, c.title+"\n"+c.content)
			if err != nil {
				return types.WrapError(types.ErrKindIntegrationError, err, "embed document %d", c.id)
			}
			_, err = s.db.ExecContext(gctx, `
				INSERT INTO embeddings (document_id, embedding_model, vector)
				VALUES (?, ?, ?)
				ON CONFLICT (document_id, embedding_model) DO UPDATE SET vector = excluded.vector`,
				c.id, s.embedder.ModelID(), encodeFloat32s(vec))
			if err != nil {
				return storage.WrapDBError("store embedding", err)
			}
			atomic.AddInt64(&done, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(atomic.LoadInt64(&done)), err
	}
	return int(atomic.LoadInt64(&done)), nil
}
