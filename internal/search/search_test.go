package search

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *documents.Store) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), documents.New(db, nil)
}

func TestKeywordSearchRanksExactTermsAboveIncidental(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	_, err := docs.Save(ctx, "Goroutine scheduling", "deep dive into goroutine scheduling and the runtime scheduler", documents.SaveOptions{})
	require.NoError(t, err)
	_, err = docs.Save(ctx, "Unrelated notes", "a passing mention of scheduling in one sentence", documents.SaveOptions{})
	require.NoError(t, err)

	results, err := s.Keyword(ctx, "scheduling", Filter{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "Goroutine scheduling", results[0].Document.Title)
}

func TestKeywordWildcardListsAllLiveDocuments(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	id1, err := docs.Save(ctx, "First", "content long enough to pass validation", documents.SaveOptions{})
	require.NoError(t, err)
	id2, err := docs.Save(ctx, "Second", "content long enough to pass validation", documents.SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, docs.SoftDelete(ctx, id2))

	results, err := s.Keyword(ctx, "*", Filter{Limit: 10})
	require.NoError(t, err)
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Document.ID)
	}
	require.Contains(t, ids, id1)
	require.NotContains(t, ids, id2)
}

func TestFuzzySalvagesNearMissQuery(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	_, err := docs.Save(ctx, "Kubernetes deployment guide", "how to roll out a kubernetes deployment safely", documents.SaveOptions{})
	require.NoError(t, err)

	results, err := s.Fuzzy(ctx, "kubernettes deploymint", Filter{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestArchivedDocumentsExcludedUnlessRequested(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	id, err := docs.Save(ctx, "Archivable entry", "content long enough to pass validation", documents.SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, docs.Archive(ctx, id, false))

	withoutArchived, err := s.Keyword(ctx, "*", Filter{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, withoutArchived)

	withArchived, err := s.Keyword(ctx, "*", Filter{Limit: 10, IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, withArchived, 1)
}

func TestKeywordSearchFiltersByTags(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	_, err := docs.Save(ctx, "Async Patterns", "async programming guide covering futures and executors",
		documents.SaveOptions{Tags: []string{"gameplan"}})
	require.NoError(t, err)

	withTag, err := s.Keyword(ctx, "async", Filter{Limit: 10, Tags: []string{"gameplan"}})
	require.NoError(t, err)
	require.Len(t, withTag, 1)
	require.Equal(t, "Async Patterns", withTag[0].Document.Title)

	withoutMatch, err := s.Keyword(ctx, "async", Filter{Limit: 10, Tags: []string{"missing"}})
	require.NoError(t, err)
	require.Empty(t, withoutMatch)
}

func TestKeywordSearchTagsMatchAllVsAny(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	_, err := docs.Save(ctx, "Both tags", "covers async runtime internals in depth",
		documents.SaveOptions{Tags: []string{"gameplan", "runtime"}})
	require.NoError(t, err)
	_, err = docs.Save(ctx, "One tag", "also covers async runtime internals",
		documents.SaveOptions{Tags: []string{"gameplan"}})
	require.NoError(t, err)

	anyOf, err := s.Keyword(ctx, "async", Filter{Limit: 10, Tags: []string{"gameplan", "runtime"}, TagsMatchAll: false})
	require.NoError(t, err)
	require.Len(t, anyOf, 2)

	allOf, err := s.Keyword(ctx, "async", Filter{Limit: 10, Tags: []string{"gameplan", "runtime"}, TagsMatchAll: true})
	require.NoError(t, err)
	require.Len(t, allOf, 1)
	require.Equal(t, "Both tags", allOf[0].Document.Title)
}

func TestRestoredDocumentIsSearchableAgain(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	id, err := docs.Save(ctx, "Recoverable doc", "a uniquely greppable phrase: xylophone", documents.SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, docs.SoftDelete(ctx, id))
	gone, err := s.Keyword(ctx, "xylophone", Filter{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, gone)

	require.NoError(t, docs.Restore(ctx, id))
	back, err := s.Keyword(ctx, "xylophone", Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, back, 1)
	require.Equal(t, id, back[0].Document.ID)
}

func TestDateFiltersApplyToKeywordPath(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)

	_, err := docs.Save(ctx, "Dated doc", "content long enough to pass validation", documents.SaveOptions{})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	within, err := s.Keyword(ctx, "*", Filter{Limit: 10, CreatedAfter: &past})
	require.NoError(t, err)
	require.Len(t, within, 1)

	beyond, err := s.Keyword(ctx, "*", Filter{Limit: 10, CreatedAfter: &future})
	require.NoError(t, err)
	require.Empty(t, beyond)
}

// fakeEmbedder maps a handful of known words onto fixed axes, so cosine
// ranking in tests is deterministic without a real model.
type fakeEmbedder struct{}

func (fakeEmbedder) ModelID() string { return "fake-test-model" }

func (fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := make([]float32, 3)
	for i, word := range []string{"database", "network", "compiler"} {
		if strings.Contains(text, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func TestSemanticSearchRanksByStoredEmbeddings(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := documents.New(db, nil)
	s := New(db, fakeEmbedder{})

	dbID, err := docs.Save(ctx, "Storage internals", "all about the database write path", documents.SaveOptions{})
	require.NoError(t, err)
	_, err = docs.Save(ctx, "Network notes", "all about the network stack", documents.SaveOptions{})
	require.NoError(t, err)
	noEmbed, err := docs.Save(ctx, "Compiler diary", "all about the compiler backend", documents.SaveOptions{})
	require.NoError(t, err)

	// Backfill embeddings, then drop one so the skip-without-embedding
	// rule is observable.
	n, err := s.Reindex(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = db.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, noEmbed)
	require.NoError(t, err)

	results, err := s.Semantic(ctx, "database", Filter{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, dbID, results[0].Document.ID)
	for _, r := range results {
		require.NotEqual(t, noEmbed, r.Document.ID)
	}
}

func TestCosineSimilarityBoundaries(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
}

func TestHybridMergesKeywordAndFallsBackWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	s, docs := newTestStore(t)
	_, err := docs.Save(ctx, "Hybrid ranking notes", "reciprocal rank fusion combines keyword and semantic signals", documents.SaveOptions{})
	require.NoError(t, err)

	results, err := s.Hybrid(ctx, "ranking", Filter{Limit: 10}, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}
