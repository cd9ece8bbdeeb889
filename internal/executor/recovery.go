package executor

import (
	"context"
	"time"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"go.uber.org/zap"
)

// Reconcile transitions every execution row still marked running whose
// owning process is gone, or whose heartbeat is older than maxAge, to
// failed with exit_code=124 and a stale_reconciled note. A dead pid
// alone is not enough: its heartbeat must also have exceeded the
// liveness window, so
// a row whose process exited a moment ago is left for its own engine's
// completion path rather than raced by a concurrent reconciler. It is
// safe to call repeatedly: once a row is terminal it is no longer
// selected.
//
// The host calls this once at startup with the canonical 2h threshold;
// the `maintain cleanup --executions --age` operator command calls it
// on demand with a caller-supplied age — one function parameterized by
// age rather than two hard-coded thresholds.
func Reconcile(ctx context.Context, db *storage.DB, maxAge, liveness time.Duration, log *zap.SugaredLogger) (int, error) {
	running, err := ListRunning(ctx, db)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	now := time.Now().UTC()
	for _, ex := range running {
		heartbeatOlder := func(window time.Duration) bool {
			return ex.LastHeartbeat == nil || now.Sub(*ex.LastHeartbeat) > window
		}
		dead := !processAlive(ex.PID) && heartbeatOlder(liveness)
		if !dead && !heartbeatOlder(maxAge) {
			continue
		}
		exitCode := 124
		reason := "stale_reconciled: pid not alive or heartbeat exceeded reconciliation age"
		if err := markTerminal(ctx, db, ex.ID, terminalUpdate{
			Status:        types.ExecFailed,
			ExitCode:      &exitCode,
			FailureReason: reason,
		}); err != nil {
			return reconciled, err
		}
		if log != nil {
			log.Infow("reconciled orphaned execution", "execution_id", ex.ID, "pid", ex.PID)
		}
		reconciled++
	}
	return reconciled, nil
}
