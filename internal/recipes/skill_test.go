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

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := documents.New(db, nil)
	searchStore := search.New(db, nil)
	return NewContext(ctx, docs, searchStore, nil, map[string]string{"q": "hello"})
}

func TestContextSaveFindAndTagAdd(t *testing.T) {
	sc := newTestContext(t)

	id, err := sc.Save("skill note", "a note written by a skill under test", documents.SaveOptions{})
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, sc.TagAdd(id, []string{"from-skill"}))

	results, err := sc.Find("skill note", search.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestContextShellCapturesOutput(t *testing.T) {
	sc := newTestContext(t)
	out, err := sc.Shell("echo hi-from-shell")
	require.NoError(t, err)
	require.Contains(t, out, "hi-from-shell")
}

func TestContextShellSurfacesNonZeroExit(t *testing.T) {
	sc := newTestContext(t)
	_, err := sc.Shell("exit 5")
	require.Error(t, err)
}

func TestContextArgs(t *testing.T) {
	sc := newTestContext(t)
	require.Equal(t, "hello", sc.Args()["q"])
}

type recordingSkill struct{ ran bool }

func (s *recordingSkill) Name() string { return "recording-skill" }
func (s *recordingSkill) Run(sc *Context) (string, error) {
	s.ran = true
	return "done", nil
}

func TestSkillRegistryRegisterAndLookup(t *testing.T) {
	s := &recordingSkill{}
	RegisterSkill(s)

	got, ok := LookupSkill("recording-skill")
	require.True(t, ok)
	require.Contains(t, SkillNames(), "recording-skill")

	out, err := got.Run(newTestContext(t))
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.True(t, s.ran)
}

func TestLookupSkillMissing(t *testing.T) {
	_, ok := LookupSkill("does-not-exist-skill")
	require.False(t, ok)
}
