package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by storage operations. Callers should use
// errors.Is against these rather than matching message text.
var (
	ErrNotFound  = errors.New("storage: not found")
	ErrInvalidID = errors.New("storage: invalid id")
	ErrConflict  = errors.New("storage: conflict")
	ErrCycle     = errors.New("storage: operation would create a cycle")
)

// WrapDBError converts sql.ErrNoRows to ErrNotFound and unique/check
// constraint violations to ErrConflict, and passes through everything
// else wrapped with context, so callers never need to know about
// database/sql sentinel values.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isConflict(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapDBErrorf is WrapDBError with a formatted op string.
func WrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return WrapDBError(fmt.Sprintf(format, args...), err)
}

// isConflict reports whether the SQLite driver reported a unique/check
// constraint violation. modernc.org/sqlite surfaces these as plain string
// errors, so this is a substring match against the known message shapes.
func isConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "CHECK constraint failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
