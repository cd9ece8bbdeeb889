package documents

import (
	"context"
	"database/sql"
	"strings"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// findLiveByNormalizedTitle looks up a live document whose title matches
// the given one case/whitespace-insensitively, for supersede detection on
// save. Returns a NotFound error when none exists.
func findLiveByNormalizedTitle(ctx context.Context, tx *sql.Tx, title string) (int64, error) {
	normalized := strings.ToLower(strings.TrimSpace(title))
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE deleted_at IS NULL AND LOWER(TRIM(title)) = ? ORDER BY created_at DESC LIMIT 1`,
		normalized).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, types.NewError(types.ErrKindNotFound, "no live document titled %q", title)
	}
	if err != nil {
		return 0, storage.WrapDBError("find by title", err)
	}
	return id, nil
}

// scanDocumentRows scans a *sql.Rows positioned at a row selected with
// documentSelectColumns, mirroring scanDocument's *sql.Row variant.
func scanDocumentRows(rows *sql.Rows) (*types.Document, error) {
	var (
		d                              types.Document
		project                        sql.NullString
		parentID                       sql.NullInt64
		createdAt, updatedAt, accessed string
		archivedAt, deletedAt          sql.NullString
	)
	if err := rows.Scan(&d.ID, &d.Title, &d.Content, &project, &parentID,
		&createdAt, &updatedAt, &accessed, &d.AccessCount, &archivedAt, &deletedAt); err != nil {
		return nil, storage.WrapDBError("scan document", err)
	}
	d.Project = project.String
	if parentID.Valid {
		v := parentID.Int64
		d.ParentID = &v
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	d.AccessedAt = parseTime(accessed)
	if archivedAt.Valid {
		t := parseTime(archivedAt.String)
		d.ArchivedAt = &t
	}
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		d.DeletedAt = &t
	}
	return &d, nil
}
