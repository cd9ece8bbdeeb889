// Package storage owns the SQLite connection, schema migrations, and the
// shared filter-building helpers used by the documents, search, and tasks
// packages. Packages above this one reach SQLite only through the *DB
// this package opens.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/arockwell/emdx/internal/storage/migrations"
	"go.uber.org/zap"
)

// DB wraps a *sql.DB opened against an EMDX database file, with the pragmas
// and migrations already applied.
type DB struct {
	*sql.DB
	log *zap.SugaredLogger
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the required pragmas, and runs any pending migrations.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows only one writer at a time; a single shared connection
	// avoids SQLITE_BUSY storms under the in-process concurrency this
	// module relies on (busy_timeout covers the rest).
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, log: log}
	if err := migrations.Run(ctx, sqlDB, log); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
