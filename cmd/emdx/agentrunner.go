package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/arockwell/emdx/internal/executor"
)

// cliAgentRunner is the CLI boundary's AgentRunner: it invokes whatever
// agent binary EMDX_AGENT_BIN names (falling back to "claude", the
// agent this platform was built around), passing the prompt as a
// positional argument and the tool allowlist/model as flags. The
// executor package never hard-codes this shape; this is the one
// concrete binding the CLI boundary supplies.
type cliAgentRunner struct {
	binary string
}

func newCLIAgentRunner() *cliAgentRunner {
	bin := os.Getenv("EMDX_AGENT_BIN")
	if bin == "" {
		bin = "claude"
	}
	return &cliAgentRunner{binary: bin}
}

func (r *cliAgentRunner) Binary() string { return r.binary }

func (r *cliAgentRunner) Args(job executor.Job) []string {
	args := []string{"--print", job.Task}
	if job.Model != "" {
		args = append(args, "--model", job.Model)
	}
	if len(job.ToolAllowlist) > 0 {
		args = append(args, "--allowedTools", strings.Join(job.ToolAllowlist, ","))
	}
	return args
}

// ghVcsHost implements executor.VcsHost over the `gh` CLI, the same
// external-binary idiom internal/git and internal/worktree use for
// `git` rather than a Go API client library.
type ghVcsHost struct {
	token string
}

func newGHVcsHost() *ghVcsHost {
	return &ghVcsHost{token: os.Getenv("EMDX_VCS_TOKEN")}
}

func (h *ghVcsHost) env() []string {
	env := os.Environ()
	if h.token != "" {
		env = append(env, "GH_TOKEN="+h.token)
	}
	return env
}

func (h *ghVcsHost) Push(ctx context.Context, repoDir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "push", "-u", "origin", branch)
	cmd.Env = h.env()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("push %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (h *ghVcsHost) CreatePR(ctx context.Context, repoDir, branch, title, body string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create",
		"--head", branch, "--title", title, "--body", body)
	cmd.Dir = repoDir
	cmd.Env = h.env()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w: %s", err, strings.TrimSpace(string(out)))
	}
	url := strings.TrimSpace(string(out))
	if idx := strings.LastIndexByte(url, '\n'); idx >= 0 {
		url = url[idx+1:]
	}
	return url, nil
}

// hashEmbedder is a deterministic, dependency-free stand-in for the
// Embedder plugin seam: it hashes overlapping word shingles into a
// fixed-width vector (the classic feature-hashing trick), so semantic
// search and Reindex work without a network call or an external
// embedding service. Swap in a real model by providing another Embedder
// at init.
type hashEmbedder struct {
	dims int
}

func newHashEmbedder() *hashEmbedder { return &hashEmbedder{dims: 64} }

func (e *hashEmbedder) ModelID() string { return fmt.Sprintf("hash-shingle-%d", e.dims) }

func (e *hashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec, nil
	}
	for i, w := range words {
		shingle := w
		if i+1 < len(words) {
			shingle = w + " " + words[i+1]
		}
		sum := sha256.Sum256([]byte(shingle))
		idx := binary.BigEndian.Uint64(sum[:8]) % uint64(e.dims)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1) / float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
