package executor

import (
	"os"

	"golang.org/x/term"
)

// withTerminalProtection snapshots the controlling terminal's attributes
// before fn runs and restores them afterward, regardless of how fn
// returns. Certain ML-library imports pulled in by agent binaries reset
// TTY attributes on load; skipping this step has been observed to freeze
// the host's UI until the terminal is reset by hand. When stdin is not a
// terminal (tests, CI, piped invocations) this
// is a no-op.
func withTerminalProtection(fn func() error) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fn()
	}
	state, err := term.GetState(fd)
	if err != nil {
		return fn()
	}
	defer term.Restore(fd, state)
	return fn()
}
