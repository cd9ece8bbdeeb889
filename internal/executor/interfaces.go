package executor

import "context"

// AgentRunner is the plugin seam for the external agent binary. The
// executor never hard-codes a specific agent's CLI surface; it asks the
// runner for a binary path and an argument vector built from a Job.
type AgentRunner interface {
	// Binary returns the path or PATH-resolvable name of the agent
	// executable.
	Binary() string
	// Args builds the argument vector for a single job, including
	// whatever flag the tool allowlist and model selection require.
	Args(job Job) []string
}

// VcsHost is the plugin seam for PR/branch post-processing (§4.5 step 9).
// It is never consulted unless a job's Mode is ModePR or ModeBranch.
type VcsHost interface {
	// Push pushes branch from repoDir to the host.
	Push(ctx context.Context, repoDir, branch string) error
	// CreatePR opens a pull request for branch against the repository's
	// default base branch and returns its URL.
	CreatePR(ctx context.Context, repoDir, branch, title, body string) (url string, err error)
}

// Embedder mirrors internal/search.Embedder. Nothing in the executor
// calls it: output kept by captureResult is saved through the Document
// Index, which stores no embeddings; internal/search computes those
// separately.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}
