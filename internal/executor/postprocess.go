package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/types"
	"github.com/arockwell/emdx/internal/worktree"
)

// prURLPattern recognizes the PR URL shapes common VCS hosts return, used
// to tag a captured document with has-pr without depending on a specific
// VcsHost implementation's response format.
var prURLPattern = regexp.MustCompile(`https?://\S+/pull/\d+|https?://\S+/pulls/\d+|https?://\S+/merge_requests/\d+`)

// captureResult decides whether an execution's output is substantial
// enough to become a standalone document and builds the tag set for it.
func (e *Engine) captureResult(ctx context.Context, job Job, ex *types.Execution, output string) (docID *int64, prURL string) {
	output = strings.TrimSpace(output)
	if m := prURLPattern.FindString(output); m != "" {
		prURL = m
	}
	// mode=doc always persists captured output as a document regardless
	// of size, per its delegate-variant contract; every other mode
	// applies the configured substantive-output threshold.
	if job.Mode != types.ModeDoc && len(output) < e.cfg.OutputSaveThresholdBytes {
		return nil, prURL
	}
	if output == "" {
		return nil, prURL
	}

	tags := []string{agentTypeTag(job)}
	if prURL != "" {
		tags = append(tags, "has-pr")
	}

	id, err := e.docs.Save(ctx, resultTitle(job.Task), output, documents.SaveOptions{
		Tags:   tags,
		Source: &types.DocumentSource{SourceKind: types.SourceExecution, SourceID: ex.ID},
	})
	if err != nil {
		e.log.Warnw("failed to save execution result as document", "execution_id", ex.ID, "error", err)
		return nil, prURL
	}
	return &id, prURL
}

func agentTypeTag(job Job) string {
	if job.Model != "" {
		return strings.ToLower(job.Model)
	}
	return "agent"
}

func resultTitle(task string) string {
	task = strings.TrimSpace(task)
	if len(task) > 72 {
		task = task[:72]
	}
	if task == "" {
		task = "delegate result"
	}
	return "Delegate: " + task
}

// runPostprocess implements step 9: PR/branch mode validation and
// invocation, run only for completed executions whose job requested it.
// A validation or host failure converts the execution to failed with a
// failure_reason recording the postprocess sub-kind, never silently
// swallowed.
func (e *Engine) runPostprocess(ctx context.Context, job Job, ex *types.Execution) (prURL string, failureReason string) {
	if job.Mode != types.ModePR && job.Mode != types.ModeBranch {
		return "", ""
	}
	if e.vcs == nil {
		return "", "failed_postprocess: no VcsHost configured"
	}
	if ex.WorktreePath == "" || ex.Branch == "" {
		return "", "failed_postprocess: execution has no worktree/branch to publish"
	}

	clean, err := worktree.IsClean(ctx, ex.WorktreePath)
	if err != nil {
		return "", fmt.Sprintf("failed_postprocess: %v", err)
	}
	if !clean {
		return "", "failed_postprocess: worktree has uncommitted changes"
	}
	hasCommits, err := worktree.HasNewCommits(ctx, job.RepoRoot, defaultBaseBranch, ex.Branch)
	if err != nil {
		return "", fmt.Sprintf("failed_postprocess: %v", err)
	}
	if !hasCommits {
		return "", "failed_postprocess: branch has no new commits"
	}

	if err := e.vcs.Push(ctx, ex.WorktreePath, ex.Branch); err != nil {
		return "", fmt.Sprintf("failed_postprocess: push failed: %v", err)
	}
	if job.Mode == types.ModeBranch {
		return "", ""
	}

	url, err := e.vcs.CreatePR(ctx, ex.WorktreePath, ex.Branch, resultTitle(job.Task), ex.StdoutTail)
	if err != nil {
		return "", fmt.Sprintf("failed_postprocess: create PR failed: %v", err)
	}
	return url, ""
}

const defaultBaseBranch = "main"
