package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesParentDirectories(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dirs", "knowledge.db")

	db, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n))
	require.Zero(t, n)
}

// Reopening a migrated database must not re-apply any migration: the
// schema_migrations ledger is the source of truth, and the applied set
// is stable across opens.
func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "knowledge.db")

	db, err := Open(ctx, path, nil)
	require.NoError(t, err)
	var first int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&first))
	require.Positive(t, first)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()
	var second int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&second))
	require.Equal(t, first, second)
}

// A document_fts row exists iff the document's deleted_at IS NULL. The
// sync triggers installed by the migrations must hold that through
// soft-delete, restore, and hard delete.
func TestFTSMirrorTracksDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "knowledge.db")
	db, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := db.ExecContext(ctx,
		`INSERT INTO documents (title, content) VALUES ('FTS lifecycle', 'searchable body text')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	ftsCount := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM document_fts WHERE rowid = ?`, id).Scan(&n))
		return n
	}

	require.Equal(t, 1, ftsCount())

	_, err = db.ExecContext(ctx, `UPDATE documents SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	require.NoError(t, err)
	require.Equal(t, 0, ftsCount())

	_, err = db.ExecContext(ctx, `UPDATE documents SET deleted_at = NULL WHERE id = ?`, id)
	require.NoError(t, err)
	require.Equal(t, 1, ftsCount())

	var matched int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_fts WHERE document_fts MATCH 'searchable'`).Scan(&matched))
	require.Equal(t, 1, matched)

	_, err = db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	require.NoError(t, err)
	require.Equal(t, 0, ftsCount())
}
