package recipes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/search"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestSummarizeAndSaveSkillIsRegistered(t *testing.T) {
	skill, ok := LookupSkill("summarize-and-save")
	require.True(t, ok)
	require.Equal(t, "summarize-and-save", skill.Name())
}

func TestSummarizeAndSaveSkillSavesDocument(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := documents.New(db, nil)
	searchStore := search.New(db, nil)
	engine := newTestEngine(t)

	sc := NewContext(ctx, docs, searchStore, engine, map[string]string{
		"title":   "weekly notes",
		"content": "line one\nline two",
	})

	skill, ok := LookupSkill("summarize-and-save")
	require.True(t, ok)

	out, err := skill.Run(sc)
	require.NoError(t, err)
	require.Contains(t, out, "saved summary as document")
}

func TestSummarizeAndSaveSkillRequiresArgs(t *testing.T) {
	sc := newTestContext(t)
	skill, ok := LookupSkill("summarize-and-save")
	require.True(t, ok)
	_, err := skill.Run(sc)
	require.Error(t, err)
}
