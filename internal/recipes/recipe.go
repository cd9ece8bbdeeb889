// Package recipes implements the Skills/Recipes Runtime: prompt-template
// recipes chained through the delegate executor, and declarative Go
// skills with read/write/delegate access to the knowledge base.
// Builtin recipes are compiled into the binary via go:embed;
// user recipes are merged in from TOML, the way internal/config merges
// defaults with an on-disk override, builtin-then-user-overrides.
package recipes

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Step is a single prompt in a recipe, executed by the Delegate Executor.
// {{name}}-style placeholders in Prompt are substituted before the step
// runs; `{{prev_stdout}}` is available from the second step onward and
// holds the previous step's captured output.
type Step struct {
	Prompt         string   `yaml:"prompt" toml:"prompt"`
	PR             bool     `yaml:"pr" toml:"pr"`
	Branch         bool     `yaml:"branch" toml:"branch"`
	Worktree       bool     `yaml:"worktree" toml:"worktree"`
	Model          string   `yaml:"model" toml:"model"`
	ToolAllowlist  []string `yaml:"tool_allowlist" toml:"tool_allowlist"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Recipe is a named, ordered sequence of steps.
type Recipe struct {
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	Steps       []Step `yaml:"steps" toml:"steps"`
}

// userRecipeFile is the shape of a single <config_dir>/recipes/*.toml file.
type userRecipeFile struct {
	Recipe Recipe `toml:"recipe"`
}

// LoadBuiltin parses every embedded builtin/*.yaml file into a
// name -> Recipe map. A malformed builtin file is a programming error,
// not a runtime condition, so this panics rather than threading an
// error through every caller.
func LoadBuiltin() map[string]Recipe {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		panic(fmt.Sprintf("recipes: read embedded builtin dir: %v", err))
	}
	out := make(map[string]Recipe, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := builtinFS.ReadFile(filepath.Join("builtin", entry.Name()))
		if err != nil {
			panic(fmt.Sprintf("recipes: read embedded %s: %v", entry.Name(), err))
		}
		var r Recipe
		if err := yaml.Unmarshal(data, &r); err != nil {
			panic(fmt.Sprintf("recipes: parse embedded %s: %v", entry.Name(), err))
		}
		if r.Name == "" {
			r.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		out[r.Name] = r
	}
	return out
}

// LoadUser reads every <configDir>/recipes/*.toml file. A missing
// directory is not an error — most installs have no user recipes.
func LoadUser(configDir string) (map[string]Recipe, error) {
	dir := filepath.Join(configDir, "recipes")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recipes: read %s: %w", dir, err)
	}

	out := make(map[string]Recipe)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path) // #nosec G304 -- path built from a config dir the operator controls
		if err != nil {
			return nil, fmt.Errorf("recipes: read %s: %w", path, err)
		}
		var f userRecipeFile
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("recipes: parse %s: %w", path, err)
		}
		name := f.Recipe.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".toml")
			f.Recipe.Name = name
		}
		out[name] = f.Recipe
	}
	return out, nil
}

// GetAll returns builtin recipes merged with user recipes from
// <configDir>/recipes/*.toml; a user recipe with the same name as a
// builtin one overrides it entirely.
func GetAll(configDir string) (map[string]Recipe, error) {
	result := LoadBuiltin()
	user, err := LoadUser(configDir)
	if err != nil {
		return nil, err
	}
	for name, r := range user {
		result[name] = r
	}
	return result, nil
}

// Get looks up a single recipe by name.
func Get(name, configDir string) (Recipe, error) {
	all, err := GetAll(configDir)
	if err != nil {
		return Recipe{}, err
	}
	r, ok := all[name]
	if !ok {
		return Recipe{}, fmt.Errorf("recipes: unknown recipe %q", name)
	}
	return r, nil
}

// Names returns every available recipe name, builtin and user, sorted.
func Names(configDir string) ([]string, error) {
	all, err := GetAll(configDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Render substitutes every `{{key}}` placeholder in tmpl with vars[key].
// This is deliberately a fixed strings.Replacer pass, not a
// general-purpose templating engine: a single variable-interpolation
// step is all `{{name}}` substitution requires.
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
