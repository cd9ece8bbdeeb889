package executor

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchLogIntegrity watches an execution's log file for truncation or
// removal while the execution is in flight. The persisted log is supposed
// to be append-only; this is a best-effort detector, not an
// enforcement mechanism — a misbehaving agent binary can always open the
// fd itself, but accidental external truncation (log rotation tooling,
// an operator's stray `> file`) is caught and logged.
func watchLogIntegrity(ctx context.Context, log *zap.SugaredLogger, executionID, logPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnw("log integrity watch unavailable", "execution_id", executionID, "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(logPath); err != nil {
		log.Warnw("cannot watch log file", "execution_id", executionID, "path", logPath, "error", err)
		return
	}

	var lastSize int64
	if info, err := os.Stat(logPath); err == nil {
		lastSize = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Warnw("execution log file removed or renamed out from under the reader",
					"execution_id", executionID, "path", logPath)
				continue
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}
			info, err := os.Stat(logPath)
			if err != nil {
				continue
			}
			if info.Size() < lastSize {
				log.Warnw("execution log file shrank unexpectedly — truncation is forbidden",
					"execution_id", executionID, "path", logPath, "previous_size", lastSize, "new_size", info.Size())
			}
			lastSize = info.Size()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("log integrity watcher error", "execution_id", executionID, "error", err)
		}
	}
}
