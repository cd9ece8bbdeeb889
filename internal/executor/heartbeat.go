package executor

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/arockwell/emdx/internal/storage"
)

// runHeartbeat is the host-side half of the liveness protocol. A
// cooperating sidecar inside the child process would be the natural
// writer, but AgentRunner is a plugin seam over an arbitrary third-party
// binary the host cannot instrument, so the sidecar is modeled here as a
// host-side goroutine that probes the child pid's liveness and, while it
// is alive, writes last_heartbeat at the configured interval. The
// invariant — running implies a recently-touched heartbeat — holds
// without requiring cooperation from the agent binary itself.
func runHeartbeat(ctx context.Context, db *storage.DB, id string, pid int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !processAlive(pid) {
				return
			}
			_ = touchHeartbeat(ctx, db, id)
		}
	}
}

// processAlive reports whether pid refers to a live process, using the
// signal-0 probe (os.Process.Signal with no actual signal delivery).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
