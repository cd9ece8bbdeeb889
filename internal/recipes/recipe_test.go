package recipes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBuiltinFindsTriageAndSummarize(t *testing.T) {
	builtin := LoadBuiltin()
	require.Contains(t, builtin, "triage")
	require.Contains(t, builtin, "summarize")
	require.Len(t, builtin["triage"].Steps, 2)
	require.True(t, builtin["triage"].Steps[1].PR)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	out := Render("hello {{name}}, prior output was: {{prev_stdout}}", map[string]string{
		"name":        "world",
		"prev_stdout": "ok",
	})
	require.Equal(t, "hello world, prior output was: ok", out)
}

func TestRenderLeavesUnknownPlaceholdersAlone(t *testing.T) {
	out := Render("{{unknown}}", map[string]string{"name": "world"})
	require.Equal(t, "{{unknown}}", out)
}

func TestGetAllMergesUserRecipesOverBuiltin(t *testing.T) {
	configDir := t.TempDir()
	recipesDir := filepath.Join(configDir, "recipes")
	require.NoError(t, os.MkdirAll(recipesDir, 0o755))

	override := `
[recipe]
name = "summarize"
description = "custom summary override"

[[recipe.steps]]
prompt = "custom {{content}}"
`
	require.NoError(t, os.WriteFile(filepath.Join(recipesDir, "summarize.toml"), []byte(override), 0o644))

	extra := `
[recipe]
name = "standup"
description = "write a standup update"

[[recipe.steps]]
prompt = "summarize today's work: {{notes}}"
`
	require.NoError(t, os.WriteFile(filepath.Join(recipesDir, "standup.toml"), []byte(extra), 0o644))

	all, err := GetAll(configDir)
	require.NoError(t, err)

	require.Equal(t, "custom summary override", all["summarize"].Description)
	require.Contains(t, all, "triage")
	require.Contains(t, all, "standup")

	names, err := Names(configDir)
	require.NoError(t, err)
	require.Contains(t, names, "standup")
	require.Contains(t, names, "summarize")
	require.Contains(t, names, "triage")
}

func TestGetUnknownRecipeErrors(t *testing.T) {
	_, err := Get("does-not-exist", t.TempDir())
	require.Error(t, err)
}

func TestLoadUserToleratesMissingDirectory(t *testing.T) {
	user, err := LoadUser(filepath.Join(t.TempDir(), "no-such-dir"))
	require.NoError(t, err)
	require.Nil(t, user)
}
