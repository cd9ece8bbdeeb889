// Package executor implements the delegate executor: spawning,
// isolating, tracking, and tailing concurrent external agent
// subprocesses. Spawn returns immediately with a
// pending execution id; the actual launch, heartbeat, log streaming, and
// completion handling run in a background goroutine gated by a bounded
// concurrency semaphore, so callers poll Status or subscribe via Tail.
package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arockwell/emdx/internal/config"
	"github.com/arockwell/emdx/internal/documents"
	"github.com/arockwell/emdx/internal/eventbus"
	"github.com/arockwell/emdx/internal/idgen"
	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"github.com/arockwell/emdx/internal/worktree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine owns the in-flight execution table and the concurrency gate.
type Engine struct {
	db     *storage.DB
	docs   *documents.Store
	cfg    config.Config
	bus    *eventbus.Bus
	runner AgentRunner
	vcs    VcsHost
	log    *zap.SugaredLogger
	slug   *idgen.SemanticIDGenerator

	sem chan struct{}

	mu   sync.Mutex
	runs map[string]*inflight
}

// inflight tracks the live state of one running execution: its log/tail
// plumbing and the cancel function Kill uses.
type inflight struct {
	ring       *ringBuffer
	hub        *subscriberHub
	killCancel context.CancelFunc
	done       chan struct{}
}

// New builds an Engine. runner and vcs may be nil; a nil vcs makes
// pr/branch mode jobs fail with PostprocessFailed instead of panicking.
func New(db *storage.DB, docs *documents.Store, cfg config.Config, bus *eventbus.Bus, runner AgentRunner, vcs VcsHost, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 5
	}
	if max > 10 {
		max = 10
	}
	return &Engine{
		db:     db,
		docs:   docs,
		cfg:    cfg,
		bus:    bus,
		runner: runner,
		vcs:    vcs,
		log:    log,
		slug:   idgen.NewSemanticIDGenerator(),
		sem:    make(chan struct{}, max),
		runs:   make(map[string]*inflight),
	}
}

// ReconcileStartup sweeps rows left `running` by a previous process,
// using the configured stale threshold and liveness window. Callers run
// it once after constructing the Engine.
func (e *Engine) ReconcileStartup(ctx context.Context) (int, error) {
	return Reconcile(ctx, e.db,
		time.Duration(e.cfg.StaleThresholdSeconds)*time.Second,
		time.Duration(e.cfg.LivenessTimeoutSeconds)*time.Second,
		e.log)
}

// preflight validates the environment before any row is written, failing
// fast with an actionable error kind.
func (e *Engine) preflight(job Job) error {
	if e.runner == nil {
		return types.NewError(types.ErrKindEnvironmentInvalid, "no AgentRunner configured")
	}
	if _, err := exec.LookPath(e.runner.Binary()); err != nil {
		return types.WrapError(types.ErrKindEnvironmentInvalid, err, "agent binary %q not found on PATH", e.runner.Binary())
	}
	needsWorktree := job.Worktree || job.Mode == types.ModePR || job.Mode == types.ModeBranch
	if needsWorktree {
		if job.RepoRoot == "" {
			return types.NewError(types.ErrKindEnvironmentInvalid, "repository root not resolvable for worktree isolation")
		}
		if _, err := os.Stat(filepath.Join(job.RepoRoot, ".git")); err != nil {
			return types.WrapError(types.ErrKindEnvironmentInvalid, err, "%s is not a git repository", job.RepoRoot)
		}
	}
	if err := os.MkdirAll(filepath.Join(e.cfg.StateDir, "executions"), 0o755); err != nil {
		return types.WrapError(types.ErrKindEnvironmentInvalid, err, "execution log directory is not writable")
	}
	return nil
}

// Spawn allocates an execution id, writes a pending row, and launches the
// job asynchronously. It returns as soon as the row exists — callers poll
// Status(id) or subscribe via Tail(id) for progress.
func (e *Engine) Spawn(ctx context.Context, job Job) (string, error) {
	if err := e.preflight(job); err != nil {
		return "", err
	}

	id := idgen.GenerateExecutionID(time.Now(), os.Getpid())
	logPath := filepath.Join(e.cfg.StateDir, "executions", id+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return "", types.WrapError(types.ErrKindEnvironmentInvalid, err, "create execution log dir")
	}

	mode := job.Mode
	if mode == "" {
		mode = types.ModeSynthesize
	}
	ex := &types.Execution{
		ID:            id,
		Task:          job.Task,
		ToolAllowlist: job.ToolAllowlist,
		WorkingDir:    job.WorkingDir,
		Model:         job.Model,
		Mode:          mode,
		Status:        types.ExecPending,
		StartedAt:     time.Now().UTC(),
		LogPath:       logPath,
	}
	if err := insertPending(ctx, e.db, ex); err != nil {
		return "", err
	}

	run := &inflight{ring: newRingBuffer(e.cfg.TailBufferBytes), hub: newSubscriberHub(), done: make(chan struct{})}
	e.mu.Lock()
	e.runs[id] = run
	e.mu.Unlock()

	go e.launch(job, ex, run)
	return id, nil
}

// Status returns the current row for an execution.
func (e *Engine) Status(ctx context.Context, id string) (*types.Execution, error) {
	return Get(ctx, e.db, id)
}

// Tail subscribes to an in-flight execution's live output. It returns
// NotFound once the execution is no longer running — callers should read
// LogPath directly for finished executions.
func (e *Engine) Tail(id string) (<-chan []byte, func(), error) {
	e.mu.Lock()
	run, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return nil, nil, types.NewError(types.ErrKindNotFound, "execution %s is not running", id)
	}
	ch, unsub := run.hub.Subscribe()
	return ch, unsub, nil
}

// Bus exposes the execution lifecycle event bus so other components
// (the Skills/Recipes Runtime's step-chaining, in particular) can
// subscribe without the Engine needing to know about them.
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// Kill requests graceful termination of a running execution: SIGTERM to
// its process group, a kill_grace_seconds grace window, then SIGKILL.
// It is asynchronous; poll Status for the
// resulting `killed` state.
func (e *Engine) Kill(id string) error {
	e.mu.Lock()
	run, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrKindNotFound, "execution %s is not running", id)
	}
	if run.killCancel == nil {
		return types.NewError(types.ErrKindConflictState, "execution %s has not started its process yet", id)
	}
	run.killCancel()
	return nil
}

// Wait blocks until id reaches a terminal status or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) (*types.Execution, error) {
	e.mu.Lock()
	run, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return Get(ctx, e.db, id)
}

// BatchResult is one job's outcome from RunBatch.
type BatchResult struct {
	ExecutionID string
	Execution   *types.Execution
	Err         error
}

// RunBatch spawns every job and waits for all to reach a terminal state,
// at most concurrency running at once.
// It deliberately does not use errgroup.WithContext's shared cancellable
// context: jobs are independent, so one job's Spawn/Wait error must never
// cancel its siblings — only the concurrency cap is shared, via
// errgroup.Group.SetLimit. Each job's own timeout/kill path is what
// bounds its lifetime, not this function.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = e.cfg.MaxConcurrent
	}
	results := make([]BatchResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			id, err := e.Spawn(ctx, job)
			if err != nil {
				results[i] = BatchResult{Err: err}
				return nil
			}
			ex, err := e.Wait(ctx, id)
			results[i] = BatchResult{ExecutionID: id, Execution: ex, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// launch carries a single job through isolation, process start, log
// pumping, heartbeat, completion, postprocess, and cleanup. It runs
// in its own goroutine and acquires a concurrency slot before doing
// anything observable to the outside world beyond the pending row
// Spawn already wrote.
func (e *Engine) launch(job Job, ex *types.Execution, run *inflight) {
	defer close(run.done)
	defer func() {
		e.mu.Lock()
		delete(e.runs, ex.ID)
		e.mu.Unlock()
	}()

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	killCtx, killCancel := context.WithCancel(context.Background())
	run.killCancel = killCancel
	defer killCancel()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Duration(e.cfg.ExecutionTimeoutSeconds) * time.Second
	}
	timeoutCtx, timeoutCancel := context.WithTimeout(killCtx, timeout)
	defer timeoutCancel()

	workDir, wtHandle, err := e.resolveWorkDir(timeoutCtx, job, ex)
	if err != nil {
		e.failBeforeLaunch(timeoutCtx, ex, err)
		return
	}

	logFile, err := os.OpenFile(ex.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		e.failBeforeLaunch(timeoutCtx, ex, types.WrapError(types.ErrKindEnvironmentInvalid, err, "open execution log"))
		return
	}
	defer logFile.Close()

	cmd := exec.Command(e.runner.Binary(), e.runner.Args(job)...)
	cmd.Dir = workDir
	cmd.Env = constrainEnv(job)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.failBeforeLaunch(timeoutCtx, ex, types.WrapError(types.ErrKindSpawnFailed, err, "stdout pipe"))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.failBeforeLaunch(timeoutCtx, ex, types.WrapError(types.ErrKindSpawnFailed, err, "stderr pipe"))
		return
	}

	startErr := withTerminalProtection(cmd.Start)
	if startErr != nil {
		e.failBeforeLaunch(timeoutCtx, ex, types.WrapError(types.ErrKindSpawnFailed, startErr, "start agent process"))
		return
	}
	pid := cmd.Process.Pid
	ex.PID = pid
	ex.WorktreePath = ""
	if wtHandle != nil {
		ex.WorktreePath = wtHandle.Path
		ex.Branch = wtHandle.Branch
	}
	if err := markRunning(timeoutCtx, e.db, ex.ID, pid, ex.WorktreePath, ex.Branch); err != nil {
		e.log.Errorw("failed to record execution as running", "execution_id", ex.ID, "error", err)
	}
	ex.Status = types.ExecRunning
	e.publish(eventbus.EventExecutionStarted, ex, "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); pumpReader(stdout, logFile, run) }()
	go func() { defer wg.Done(); pumpReader(stderr, logFile, run) }()

	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	go runHeartbeat(hbCtx, e.db, ex.ID, pid, time.Duration(e.cfg.HeartbeatIntervalSeconds)*time.Second)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	go watchLogIntegrity(watchCtx, e.log, ex.ID, ex.LogPath)

	procDone := make(chan struct{})
	go func() {
		select {
		case <-timeoutCtx.Done():
			terminateProcessGroup(pid, procDone, time.Duration(e.cfg.KillGraceSeconds)*time.Second)
		case <-procDone:
		}
	}()

	// Drain both pipes before Wait: Wait closes them once the process
	// exits, and output not yet read at that point would be lost.
	wg.Wait()
	waitErr := cmd.Wait()
	close(procDone)
	run.hub.Close()

	status, exitCode := classify(killCtx, timeoutCtx, waitErr)
	e.finish(job, ex, wtHandle, status, exitCode, run)
}

// terminateProcessGroup sends SIGTERM to pid's process group, waits up
// to grace for the process to exit on its own (signaled by done being
// closed), then escalates to SIGKILL.
func terminateProcessGroup(pid int, done <-chan struct{}, grace time.Duration) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func classify(killCtx, timeoutCtx context.Context, waitErr error) (types.ExecutionStatus, int) {
	switch {
	case killCtx.Err() != nil:
		return types.ExecKilled, 130
	case timeoutCtx.Err() != nil:
		return types.ExecTimeout, 124
	case waitErr == nil:
		return types.ExecCompleted, 0
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return types.ExecFailed, exitErr.ExitCode()
		}
		return types.ExecFailed, -1
	}
}

// finish handles completion bookkeeping, result capture, PR/branch
// postprocessing, and conditional worktree cleanup.
func (e *Engine) finish(job Job, ex *types.Execution, wtHandle *worktree.Handle, status types.ExecutionStatus, exitCode int, run *inflight) {
	ctx := context.Background()
	output := run.ring.String()
	_ = appendStdoutTail(ctx, e.db, ex.ID, tailSnippet(output, e.cfg.TailBufferBytes))

	var docID *int64
	var prURL string
	var failureReason string

	if status == types.ExecCompleted {
		docID, prURL = e.captureResult(ctx, job, ex, output)
		if wtHandle != nil && ex.Branch != "" {
			ex.WorktreePath = wtHandle.Path
			postURL, reason := e.runPostprocess(ctx, job, ex)
			if reason != "" {
				status = types.ExecFailed
				failureReason = reason
			} else if postURL != "" {
				prURL = postURL
			}
		}
	} else {
		failureReason = string(status)
	}

	if err := markTerminal(ctx, e.db, ex.ID, terminalUpdate{
		Status:        status,
		ExitCode:      &exitCode,
		FailureReason: failureReason,
		DocIDOutput:   docID,
		PRURL:         prURL,
	}); err != nil {
		e.log.Errorw("failed to record execution completion", "execution_id", ex.ID, "error", err)
	}
	ex.Status = status
	ex.ExitCode = &exitCode
	ex.DocIDOutput = docID
	ex.PRURL = prURL
	ex.FailureReason = failureReason

	if wtHandle != nil && job.Cleanup {
		if clean, _ := worktree.IsClean(ctx, wtHandle.Path); clean {
			if err := worktree.Remove(ctx, job.RepoRoot, wtHandle.Path, false); err == nil {
				_ = clearWorktree(ctx, e.db, ex.ID)
			}
		}
	}

	e.publish(eventType(status), ex, failureReason)
}

func eventType(status types.ExecutionStatus) eventbus.EventType {
	switch status {
	case types.ExecCompleted:
		return eventbus.EventExecutionCompleted
	case types.ExecTimeout:
		return eventbus.EventExecutionTimeout
	case types.ExecKilled:
		return eventbus.EventExecutionKilled
	default:
		return eventbus.EventExecutionFailed
	}
}

func (e *Engine) publish(t eventbus.EventType, ex *types.Execution, message string) {
	if err := e.bus.Dispatch(context.Background(), &eventbus.Event{
		Type:        t,
		ExecutionID: ex.ID,
		Status:      string(ex.Status),
		Message:     message,
		OccurredAt:  time.Now().UTC(),
	}); err != nil {
		e.log.Warnw("eventbus dispatch reported subscriber errors", "execution_id", ex.ID, "error", err)
	}
}

func (e *Engine) failBeforeLaunch(ctx context.Context, ex *types.Execution, err error) {
	exitCode := -1
	reason := err.Error()
	if mErr := markTerminal(ctx, e.db, ex.ID, terminalUpdate{
		Status:        types.ExecFailed,
		ExitCode:      &exitCode,
		FailureReason: reason,
	}); mErr != nil {
		e.log.Errorw("failed to record preflight/spawn failure", "execution_id", ex.ID, "error", mErr)
	}
	e.publish(eventbus.EventExecutionFailed, ex, reason)
}

// resolveWorkDir creates a worktree when the job requires isolation,
// retrying the slug/branch pair up to 5 times on collision, or returns
// job.WorkingDir unchanged otherwise.
func (e *Engine) resolveWorkDir(ctx context.Context, job Job, ex *types.Execution) (string, *worktree.Handle, error) {
	needsWorktree := job.Worktree || job.Mode == types.ModePR || job.Mode == types.ModeBranch
	if !needsWorktree {
		return job.WorkingDir, nil, nil
	}

	prefix := job.BranchPrefix
	if prefix == "" {
		prefix = "delegate"
	}
	slug := e.slug.GenerateSlug(job.Task)
	baseDir := filepath.Join(e.cfg.StateDir, "worktrees")

	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		branch, err := e.slug.GenerateBranchName(prefix, job.Task)
		if err != nil {
			return "", nil, types.WrapError(types.ErrKindSpawnFailed, err, "generate branch name")
		}
		shortHash := branch[len(branch)-5:]
		h, err := worktree.Create(ctx, job.RepoRoot, baseDir, slug, shortHash, branch)
		if err == nil {
			return h.Path, h, nil
		}
		lastErr = err
		if execErr, ok := err.(*types.Error); !ok || execErr.Kind != types.ErrKindWorktreeCollision {
			return "", nil, err
		}
	}
	return "", nil, types.WrapError(types.ErrKindWorktreeCollision, lastErr, "exhausted %d attempts allocating a worktree", maxAttempts)
}

// constrainEnv builds the subprocess environment: inherited PATH/HOME
// only, never the full parent environment.
func constrainEnv(job Job) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	if len(job.ToolAllowlist) > 0 {
		env = append(env, "EMDX_TOOL_ALLOWLIST="+strings.Join(job.ToolAllowlist, ","))
	}
	return env
}

func tailSnippet(s string, max int) string {
	if max <= 0 {
		max = 65536
	}
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
