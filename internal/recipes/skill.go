package recipes

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/executor"
	"github.com/arockwell/emdx/internal/search"
)

// shellOutputCap bounds how much of a skill's `shell` output is
// returned, mirroring the Delegate Executor's bounded tail buffer.
const shellOutputCap = 64 * 1024

// Context is the capability surface a Skill runs with: KB read/write,
// delegate-invoke, and a raw shell escape hatch, plus the caller's
// arguments.
type Context struct {
	ctx    context.Context
	docs   *documents.Store
	search *search.Store
	engine *executor.Engine
	args   map[string]string
}

// NewContext builds a skill Context. search may be nil if a skill never
// calls Find.
func NewContext(ctx context.Context, docs *documents.Store, searchStore *search.Store, engine *executor.Engine, args map[string]string) *Context {
	return &Context{ctx: ctx, docs: docs, search: searchStore, engine: engine, args: args}
}

// Args returns the skill's invocation arguments.
func (c *Context) Args() map[string]string { return c.args }

// Find runs a keyword search over the knowledge base.
func (c *Context) Find(query string, f search.Filter) ([]search.Result, error) {
	if c.search == nil {
		return nil, fmt.Errorf("skill context: no search store configured")
	}
	return c.search.Keyword(c.ctx, query, f)
}

// Save writes a new document through the Document Index.
func (c *Context) Save(title, content string, opts documents.SaveOptions) (int64, error) {
	return c.docs.Save(c.ctx, title, content, opts)
}

// TagAdd attaches tags to an existing document.
func (c *Context) TagAdd(docID int64, tags []string) error {
	return c.docs.AddTags(c.ctx, docID, tags)
}

// Delegate spawns a job through the Delegate Executor and blocks until
// it reaches a terminal state, returning the captured output.
func (c *Context) Delegate(job executor.Job) (*Context, string, error) {
	id, err := c.engine.Spawn(c.ctx, job)
	if err != nil {
		return c, "", err
	}
	ex, err := c.engine.Wait(c.ctx, id)
	if err != nil {
		return c, "", err
	}
	return c, ex.StdoutTail, nil
}

// Shell runs cmd through /bin/sh -c and returns its combined,
// size-capped output. This is a plain synchronous escape hatch for
// skills that need a local command rather than a delegated agent run —
// it does not go through the Delegate Executor's isolation/heartbeat
// machinery, so it is meant for short, trusted commands only.
func (c *Context) Shell(cmd string) (string, error) {
	out, err := exec.CommandContext(c.ctx, "/bin/sh", "-c", cmd).CombinedOutput()
	if len(out) > shellOutputCap {
		out = out[len(out)-shellOutputCap:]
	}
	if err != nil {
		return string(out), fmt.Errorf("skill shell: %w", err)
	}
	return string(out), nil
}

// Skill is a declarative function over the knowledge base: read, write,
// and delegate capabilities composed on top of the Document Index,
// search, and delegate-executor layers, with no additional invariants
// of its own.
type Skill interface {
	Name() string
	Run(sc *Context) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Skill{}
)

// RegisterSkill adds a skill to the process-wide registry. Intended to
// be called from init() by builtin skill implementations.
func RegisterSkill(s Skill) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Name()] = s
}

// LookupSkill returns a registered skill by name.
func LookupSkill(name string) (Skill, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	return s, ok
}

// SkillNames returns every registered skill's name.
func SkillNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
