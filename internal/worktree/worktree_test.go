package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestCreateAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	base := t.TempDir()

	h, err := Create(ctx, repo, base, "fix_login", "ab12c", "delegate/fix_login-ab12c")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(h.Path); err != nil {
		t.Fatalf("worktree path missing: %v", err)
	}

	clean, err := IsClean(ctx, h.Path)
	if err != nil {
		t.Fatalf("IsClean: %v", err)
	}
	if !clean {
		t.Error("freshly created worktree should be clean")
	}

	if err := Remove(ctx, repo, h.Path, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(h.Path); !os.IsNotExist(err) {
		t.Errorf("worktree path still exists after Remove: %v", err)
	}
}

func TestCreateCollision(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	base := t.TempDir()

	if _, err := Create(ctx, repo, base, "dup", "ff00a", "delegate/dup-ff00a"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "dup-ff00a"), 0o755); err == nil {
		// Directory already exists from the first Create; attempting a
		// second Create at the same slug/hash must report a collision.
	}
	if _, err := Create(ctx, repo, base, "dup", "ff00a", "delegate/dup-ff00a-2"); err == nil {
		t.Error("expected collision error creating worktree at an already-occupied path")
	}
}

func TestRemoveRefusesDirtyWorktreeWithoutForce(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	base := t.TempDir()

	h, err := Create(ctx, repo, base, "dirty", "12345", "delegate/dirty-12345")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(h.Path, "scratch.txt"), []byte("wip"), 0o644); err != nil {
		t.Fatalf("write scratch file: %v", err)
	}

	if err := Remove(ctx, repo, h.Path, false); err == nil {
		t.Error("expected Remove to refuse a dirty worktree without force")
	}
	if err := Remove(ctx, repo, h.Path, true); err != nil {
		t.Fatalf("Remove with force: %v", err)
	}
}
