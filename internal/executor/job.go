package executor

import (
	"time"

	"github.com/arockwell/emdx/internal/types"
)

// Job describes a single delegate run the caller wants spawned. Spawn
// copies the fields it needs into an executions row; Job itself is never
// persisted.
type Job struct {
	// Task is the prompt text handed to the agent.
	Task string
	// ToolAllowlist is passed through to AgentRunner.Args.
	ToolAllowlist []string
	// Model selects the agent's model, also passed through to Args.
	Model string
	// RepoRoot is the host repository root; required when Worktree is
	// true or Mode is ModePR/ModeBranch.
	RepoRoot string
	// WorkingDir is used verbatim when Worktree is false.
	WorkingDir string
	// Worktree requests filesystem isolation even outside pr/branch mode.
	Worktree bool
	// Mode selects post-completion behavior: synthesize (default), doc,
	// branch, or pr. pr and branch imply Worktree.
	Mode types.ExecutionMode
	// BranchPrefix names the branch namespace ("delegate" by default).
	BranchPrefix string
	// Timeout overrides the configured default execution timeout.
	Timeout time.Duration
	// Cleanup removes the worktree on terminal states when true and the
	// worktree is clean.
	Cleanup bool
}
