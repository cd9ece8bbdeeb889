package documents

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Save(ctx, "Async Patterns", "async programming guide for readers", SaveOptions{
		Project: "proj1",
		Tags:    []string{"gameplan"},
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, "Async Patterns", doc.Title)
	require.Equal(t, "async programming guide for readers", doc.Content)
	require.Equal(t, "proj1", doc.Project)
	require.ElementsMatch(t, []string{"gameplan"}, doc.Tags)
}

func TestSaveRejectsEmptyTitleAndShortContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Save(ctx, "  ", "long enough content here", SaveOptions{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	require.Equal(t, types.ErrKindInvalidInput, typedErr.Kind)

	_, err = s.Save(ctx, "Title", "short", SaveOptions{})
	require.Error(t, err)
	require.ErrorAs(t, err, &typedErr)
	require.Equal(t, types.ErrKindInvalidInput, typedErr.Kind)
}

func TestTrashLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Save(ctx, "Trashable", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, id))

	live, err := s.List(ctx, ListFilter{Limit: 100})
	require.NoError(t, err)
	require.NotContains(t, ids(live), id)

	withDeleted, err := s.List(ctx, ListFilter{IncludeDeleted: true, Limit: 100})
	require.NoError(t, err)
	require.Contains(t, ids(withDeleted), id)

	require.NoError(t, s.Restore(ctx, id))
	live, err = s.List(ctx, ListFilter{Limit: 100})
	require.NoError(t, err)
	require.Contains(t, ids(live), id)

	require.NoError(t, s.SoftDelete(ctx, id))
	require.NoError(t, s.Purge(ctx, id))
	_, err = s.Get(ctx, id, false)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPurgeOfLiveDocumentIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Save(ctx, "Live doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)

	err = s.Purge(ctx, id)
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	require.Equal(t, types.ErrKindConflictState, typedErr.Kind)
}

func TestTagMaintenance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.Save(ctx, "Doc one", "content long enough to pass", SaveOptions{Tags: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = s.Save(ctx, "Doc two", "content long enough to pass", SaveOptions{Tags: []string{"a", "b"}})
	require.NoError(t, err)

	usage := tagUsage(t, s, "a")
	require.Equal(t, int64(2), usage)

	require.NoError(t, s.RemoveTags(ctx, id1, []string{"a"}))
	require.Equal(t, int64(1), tagUsage(t, s, "a"))

	require.NoError(t, s.RenameTag(ctx, "a", "alpha"))
	require.Equal(t, int64(1), tagUsage(t, s, "alpha"))

	doc, err := s.Get(ctx, id1, false)
	require.NoError(t, err)
	require.NotContains(t, doc.Tags, "a")
}

func TestAddTagsIsIdempotentUnderDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Save(ctx, "Doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.AddTags(ctx, id, []string{"x", "x", "y"}))
	require.Equal(t, int64(1), tagUsage(t, s, "x"))
	require.Equal(t, int64(1), tagUsage(t, s, "y"))
}

func TestArchiveAlreadyArchivedIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Save(ctx, "Doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Archive(ctx, id, false))
	first, err := s.Get(ctx, id, false)
	require.NoError(t, err)

	require.NoError(t, s.Archive(ctx, id, false))
	second, err := s.Get(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, first.ArchivedAt, second.ArchivedAt)
}

func TestIncludeArchivedTogglesResultSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Save(ctx, "Archived doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Archive(ctx, id, false))

	withoutArchived, err := s.List(ctx, ListFilter{Limit: 100})
	require.NoError(t, err)
	require.NotContains(t, ids(withoutArchived), id)

	withArchived, err := s.List(ctx, ListFilter{IncludeArchived: true, Limit: 100})
	require.NoError(t, err)
	require.Contains(t, ids(withArchived), id)
}

func TestSupersedeArchivesOlderDocumentAndLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	oldID, err := s.Save(ctx, "Deployment Runbook", "version one of the runbook text", SaveOptions{})
	require.NoError(t, err)
	newID, err := s.Save(ctx, "Deployment Runbook", "version two of the runbook text", SaveOptions{Supersede: true})
	require.NoError(t, err)

	older, err := s.Get(ctx, oldID, false)
	require.NoError(t, err)
	require.True(t, older.IsArchived())

	links, err := s.Related(ctx, newID, 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, newID, links[0].FromID)
	require.Equal(t, oldID, links[0].ToID)
	require.Equal(t, types.LinkManual, links[0].Method)
	require.Equal(t, 1.0, links[0].SimilarityScore)
}

func TestSupersedeWithNoExistingTitleSavesNormally(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Save(ctx, "Brand new title", "content long enough to pass", SaveOptions{Supersede: true})
	require.NoError(t, err)

	links, err := s.Related(ctx, id, 10)
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestSaveWithSourceRecordsProvenanceInSameTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Save(ctx, "Delegate output", "captured agent output goes here", SaveOptions{
		Source: &types.DocumentSource{SourceKind: types.SourceExecution, SourceID: "exec-123"},
	})
	require.NoError(t, err)

	var kind, sourceID string
	err = s.db.QueryRowContext(ctx,
		`SELECT source_kind, source_id FROM document_sources WHERE document_id = ?`, id).Scan(&kind, &sourceID)
	require.NoError(t, err)
	require.Equal(t, string(types.SourceExecution), kind)
	require.Equal(t, "exec-123", sourceID)
}

func TestSaveRejectsDeletedParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parent, err := s.Save(ctx, "Parent doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, parent))

	_, err = s.Save(ctx, "Child doc", "content long enough to pass", SaveOptions{ParentID: &parent})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	require.Equal(t, types.ErrKindInvalidInput, typedErr.Kind)
}

func TestListFiltersByTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tagged, err := s.Save(ctx, "Tagged doc", "content long enough to pass", SaveOptions{Tags: []string{"keep"}})
	require.NoError(t, err)
	_, err = s.Save(ctx, "Untagged doc", "content long enough to pass", SaveOptions{})
	require.NoError(t, err)

	docs, err := s.List(ctx, ListFilter{Tags: []string{"keep"}, Limit: 100})
	require.NoError(t, err)
	require.Equal(t, []int64{tagged}, ids(docs))
}

func ids(docs []*types.Document) []int64 {
	out := make([]int64, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func tagUsage(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	var usage int64
	err := s.db.QueryRowContext(context.Background(), `SELECT usage_count FROM tags WHERE name = ?`, name).Scan(&usage)
	require.NoError(t, err)
	return usage
}
