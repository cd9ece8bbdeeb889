// Package worktree creates and tears down the filesystem-isolated git
// worktrees the delegate executor gives each concurrent run. Every
// operation shells out to the git binary, the same idiom internal/git
// uses for worktree-aware path lookups.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arockwell/emdx/internal/types"
)

// Handle describes a created worktree.
type Handle struct {
	Path   string
	Branch string
}

// Create adds a new worktree of repoRoot at <baseDir>/<slug>-<shortHash>
// on a new branch named branch. The caller is responsible for generating
// a collision-resistant slug/branch pair (see internal/idgen); Create
// itself only detects the collision and reports it as a
// types.ErrKindWorktreeCollision error so the caller can retry with a
// fresh suffix.
func Create(ctx context.Context, repoRoot, baseDir, slug, shortHash, branch string) (*Handle, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("worktree: create base dir: %w", err)
	}
	path := filepath.Join(baseDir, fmt.Sprintf("%s-%s", slug, shortHash))
	if _, err := os.Stat(path); err == nil {
		return nil, types.NewError(types.ErrKindWorktreeCollision, "worktree path %s already exists", path)
	}

	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "worktree", "add", "-b", branch, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "already exists") || strings.Contains(string(out), "already used by worktree") {
			return nil, types.NewError(types.ErrKindWorktreeCollision, "branch or path collision creating worktree: %s", strings.TrimSpace(string(out)))
		}
		return nil, types.WrapError(types.ErrKindSpawnFailed, err, "git worktree add failed: %s", strings.TrimSpace(string(out)))
	}
	return &Handle{Path: path, Branch: branch}, nil
}

// Remove detaches and deletes a worktree. It refuses to remove a worktree
// with uncommitted changes unless force is true — cleanup is only safe
// once the caller has confirmed the work was captured (pushed, saved as a
// document, or otherwise recorded).
func Remove(ctx context.Context, repoRoot, path string, force bool) error {
	if !force {
		clean, err := IsClean(ctx, path)
		if err != nil {
			return err
		}
		if !clean {
			return types.NewError(types.ErrKindConflictState, "worktree %s has uncommitted changes, refusing to remove", path)
		}
	}
	args := []string{"-C", repoRoot, "worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return types.WrapError(types.ErrKindStorageUnavailable, err, "git worktree remove failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// IsClean reports whether the worktree at path has no uncommitted changes
// (staged, unstaged, or untracked).
func IsClean(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "status", "--porcelain")
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("worktree: git status in %s: %w", path, err)
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

// HasNewCommits reports whether branch has commits not on baseBranch, the
// precondition PR/branch mode checks before invoking the VCS host.
func HasNewCommits(ctx context.Context, repoRoot, baseBranch, branch string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "rev-list", "--count", fmt.Sprintf("%s..%s", baseBranch, branch))
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("worktree: rev-list %s..%s: %w", baseBranch, branch, err)
	}
	count := strings.TrimSpace(string(out))
	return count != "" && count != "0", nil
}

// Push pushes branch to the "origin" remote and sets it as upstream.
func Push(ctx context.Context, repoDir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "push", "-u", "origin", branch)
	if out, err := cmd.CombinedOutput(); err != nil {
		return types.WrapError(types.ErrKindIntegrationError, err, "git push failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
