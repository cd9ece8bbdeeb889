package migrations

import (
	"context"
	"database/sql"
)

func init() {
	register(Migration{
		Version:     5,
		Description: "document_fts virtual mirror with live-row sync triggers",
		Up:          up0005,
	})
}

// up0005 creates an FTS5 table that stores its own copy of documents(title,
// content) for every live document, and triggers that keep it in sync on
// every write path — no caller writes to document_fts directly, and a
// deleted_at transition removes/restores the mirror row rather than the
// insert/update/delete triggers alone, since soft-delete is an UPDATE.
func up0005(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS document_fts USING fts5(
			title, content
		)`,
		`INSERT INTO document_fts(rowid, title, content)
			SELECT id, title, content FROM documents
			WHERE deleted_at IS NULL
			AND id NOT IN (SELECT rowid FROM document_fts)`,
		`CREATE TRIGGER IF NOT EXISTS document_fts_ai AFTER INSERT ON documents
		WHEN new.deleted_at IS NULL BEGIN
			INSERT INTO document_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
		END`,
		// A mirror row exists only while deleted_at IS NULL, and the table
		// holds its own copy of each row, so even a rowid lookup on
		// document_fts sees live documents only. Deleting a rowid that is
		// already absent (a soft-deleted document) is a no-op.
		`CREATE TRIGGER IF NOT EXISTS document_fts_ad AFTER DELETE ON documents BEGIN
			DELETE FROM document_fts WHERE rowid = old.id;
		END`,
		// UPDATE covers content edits, soft-delete (deleted_at NULL -> set)
		// and restore (deleted_at set -> NULL): drop the old mirror row,
		// reinsert if the new row is live.
		`CREATE TRIGGER IF NOT EXISTS document_fts_au AFTER UPDATE ON documents BEGIN
			DELETE FROM document_fts WHERE rowid = old.id;
			INSERT INTO document_fts(rowid, title, content)
				SELECT new.id, new.title, new.content WHERE new.deleted_at IS NULL;
		END`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
