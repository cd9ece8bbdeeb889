package recipes

import (
	"fmt"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/types"
)

func init() {
	RegisterSkill(&summarizeAndSaveSkill{})
}

// summarizeAndSaveSkill delegates the summarize recipe's prompt to an
// agent and saves the result back to the Document Index with
// provenance recorded against the skill.
type summarizeAndSaveSkill struct{}

func (s *summarizeAndSaveSkill) Name() string { return "summarize-and-save" }

func (s *summarizeAndSaveSkill) Run(sc *Context) (string, error) {
	title := sc.Args()["title"]
	content := sc.Args()["content"]
	if title == "" || content == "" {
		return "", fmt.Errorf("summarize-and-save: requires title and content args")
	}

	prompt := Render(LoadBuiltin()["summarize"].Steps[0].Prompt, map[string]string{"content": content})
	_, stdout, err := sc.Delegate(executor.Job{Task: prompt})
	if err != nil {
		return "", fmt.Errorf("summarize-and-save: delegate: %w", err)
	}

	id, err := sc.Save("Summary: "+title, stdout, documents.SaveOptions{
		Source: &types.DocumentSource{SourceKind: types.SourceSkill, SourceID: s.Name()},
	})
	if err != nil {
		return "", fmt.Errorf("summarize-and-save: save: %w", err)
	}
	return fmt.Sprintf("saved summary as document %d", id), nil
}
