// Package documents implements the document CRUD, tagging, and
// trash/archive lifecycle operations consumed by the external boundary
// layer. Every operation here leaves the document_fts mirror in sync,
// since the triggers installed by the storage migrations do that inside
// the same transaction as the write.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
	"go.uber.org/zap"
)

const minContentLength = 10

// Store provides document operations over a storage.DB.
type Store struct {
	db  *storage.DB
	log *zap.SugaredLogger
}

// New builds a Store over an already-migrated database handle.
func New(db *storage.DB, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{db: db, log: log}
}

// SaveOptions configures Save beyond the required title/content.
type SaveOptions struct {
	Project   string
	Tags      []string
	ParentID  *int64
	Supersede bool
	// Source is set when a document is produced on behalf of an
	// execution/skill/recipe rather than a user; record_source is then
	// part of this same transaction (Testable Property 4).
	Source *types.DocumentSource
}

// Save inserts a new document, links its tags, and (per SaveOptions)
// either records provenance or supersedes an existing same-titled
// document. It returns the new document's id.
func (s *Store) Save(ctx context.Context, title, content string, opts SaveOptions) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, types.NewError(types.ErrKindInvalidInput, "title must not be empty")
	}
	if len(content) < minContentLength {
		return 0, types.NewError(types.ErrKindInvalidInput, "content must be at least %d characters", minContentLength)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var supersededID int64
	if opts.Supersede {
		supersededID, err = findLiveByNormalizedTitle(ctx, tx, title)
		if err != nil && !isNotFoundErr(err) {
			return 0, err
		}
	}

	if opts.ParentID != nil {
		var parentDeleted sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT deleted_at FROM documents WHERE id = ?`, *opts.ParentID).Scan(&parentDeleted)
		if err == sql.ErrNoRows {
			return 0, types.NewError(types.ErrKindInvalidInput, "parent document %d does not exist", *opts.ParentID)
		}
		if err != nil {
			return 0, storage.WrapDBError("check parent", err)
		}
		if parentDeleted.Valid {
			return 0, types.NewError(types.ErrKindInvalidInput, "parent document %d is deleted", *opts.ParentID)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (title, content, project, parent_id) VALUES (?, ?, ?, ?)`,
		title, content, opts.Project, opts.ParentID)
	if err != nil {
		return 0, storage.WrapDBError("save document", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save document: read id: %w", err)
	}

	if err := applyTags(ctx, tx, id, opts.Tags); err != nil {
		return 0, err
	}

	if supersededID != 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_links (from_id, to_id, similarity_score, method) VALUES (?, ?, 1.0, ?)`,
			id, supersededID, types.LinkManual); err != nil {
			return 0, storage.WrapDBError("link superseded document", err)
		}
		if err := archiveTx(ctx, tx, supersededID); err != nil {
			return 0, err
		}
	}

	if opts.Source != nil {
		if err := recordSourceTx(ctx, tx, id, opts.Source.SourceKind, opts.Source.SourceID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Get fetches a document by id. When counting is true (a user-facing
// view), access_count/accessed_at are bumped atomically by a single UPDATE
// before the row is read; internal lookups pass counting=false.
func (s *Store) Get(ctx context.Context, id int64, counting bool) (*types.Document, error) {
	if counting {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE documents SET access_count = access_count + 1, accessed_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
			id); err != nil {
			return nil, storage.WrapDBError("bump access", err)
		}
	}
	return s.scanOne(ctx, id)
}

// GetByTitle fetches the most recently created live document whose title
// matches (case/whitespace-insensitively), for callers that accept
// either an id or a title. counting behaves as in Get.
func (s *Store) GetByTitle(ctx context.Context, title string, counting bool) (*types.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	id, err := findLiveByNormalizedTitle(ctx, tx, title)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, counting)
}

func (s *Store) scanOne(ctx context.Context, id int64) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelectColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, storage.WrapDBErrorf(err, "get document %d", id)
	}
	tags, err := s.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Tags = tags
	return doc, nil
}

const documentSelectColumns = `SELECT id, title, content, project, parent_id, created_at, updated_at, accessed_at, access_count, archived_at, deleted_at`

func scanDocument(row *sql.Row) (*types.Document, error) {
	var (
		d                              types.Document
		project                        sql.NullString
		parentID                       sql.NullInt64
		createdAt, updatedAt, accessed string
		archivedAt, deletedAt          sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &project, &parentID,
		&createdAt, &updatedAt, &accessed, &d.AccessCount, &archivedAt, &deletedAt); err != nil {
		return nil, err
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

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// UpdateFields lists the optional fields Update may change; a nil pointer
// leaves the corresponding column untouched.
type UpdateFields struct {
	Title   *string
	Content *string
	Project *string
}

// Update refreshes the given fields and updated_at, re-syncing FTS (via the
// trigger installed on documents) automatically.
func (s *Store) Update(ctx context.Context, id int64, fields UpdateFields) error {
	set := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any
	if fields.Title != nil {
		title := strings.TrimSpace(*fields.Title)
		if title == "" {
			return types.NewError(types.ErrKindInvalidInput, "title must not be empty")
		}
		set = append(set, "title = ?")
		args = append(args, title)
	}
	if fields.Content != nil {
		if len(*fields.Content) < minContentLength {
			return types.NewError(types.ErrKindInvalidInput, "content must be at least %d characters", minContentLength)
		}
		set = append(set, "content = ?")
		args = append(args, *fields.Content)
	}
	if fields.Project != nil {
		set = append(set, "project = ?")
		args = append(args, *fields.Project)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE documents SET %s WHERE id = ? AND deleted_at IS NULL`, strings.Join(set, ", ")),
		args...)
	if err != nil {
		return storage.WrapDBErrorf(err, "update document %d", id)
	}
	return requireRowsAffected(res, id)
}

// AddTags attaches names to a document, creating missing tags and bumping
// usage_count. Duplicate names in the input collapse to one edit each
// (add_tags([x,x,y]) behaves like add_tags([x,y])).
func (s *Store) AddTags(ctx context.Context, id int64, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := applyTags(ctx, tx, id, names); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveTags detaches names from a document and decrements usage_count for
// each tag that was actually attached.
func (s *Store) RemoveTags(ctx context.Context, id int64, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range dedupe(names) {
		var tagID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return storage.WrapDBError("lookup tag", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM document_tags WHERE document_id = ? AND tag_id = ?`, id, tagID)
		if err != nil {
			return storage.WrapDBError("remove tag", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tags SET usage_count = MAX(usage_count - 1, 0) WHERE id = ?`, tagID); err != nil {
				return storage.WrapDBError("decrement tag usage", err)
			}
		}
	}
	return tx.Commit()
}

// SoftDelete moves a live document to the trash.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return storage.WrapDBErrorf(err, "soft delete %d", id)
	}
	return requireRowsAffected(res, id)
}

// Restore brings a trashed document back to the live set.
func (s *Store) Restore(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return storage.WrapDBErrorf(err, "restore %d", id)
	}
	return requireRowsAffected(res, id)
}

// Purge permanently removes a trashed document. Callers must soft_delete
// first; purging a live document is a ConflictState.
func (s *Store) Purge(ctx context.Context, id int64) error {
	var deletedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT deleted_at FROM documents WHERE id = ?`, id).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return types.NewError(types.ErrKindNotFound, "document %d not found", id)
	}
	if err != nil {
		return storage.WrapDBError("purge lookup", err)
	}
	if !deletedAt.Valid {
		return types.NewError(types.ErrKindConflictState, "document %d is live; soft_delete before purge", id)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return storage.WrapDBErrorf(err, "purge %d", id)
	}
	return nil
}

// Archive hides a live document from default listings without trashing
// it. Archiving an already-archived document is a no-op that does not
// bump updated_at. With cascade=true, every live descendant of id (children,
// their children, and so on via parent_id) is archived too.
func (s *Store) Archive(ctx context.Context, id int64, cascade bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := archiveTx(ctx, tx, id); err != nil {
		return err
	}
	if cascade {
		rows, err := tx.QueryContext(ctx,
			`WITH RECURSIVE descendants(id) AS (
				SELECT id FROM documents WHERE parent_id = ? AND deleted_at IS NULL
				UNION
				SELECT d.id FROM documents d JOIN descendants ds ON d.parent_id = ds.id WHERE d.deleted_at IS NULL
			) SELECT id FROM descendants`, id)
		if err != nil {
			return storage.WrapDBError("list descendants", err)
		}
		var children []int64
		for rows.Next() {
			var cid int64
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return err
			}
			children = append(children, cid)
		}
		rows.Close()
		for _, cid := range children {
			if err := archiveTx(ctx, tx, cid); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func archiveTx(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE documents SET archived_at = CURRENT_TIMESTAMP WHERE id = ? AND archived_at IS NULL`, id)
	if err != nil {
		return storage.WrapDBErrorf(err, "archive %d", id)
	}
	return nil
}

// Unarchive restores a document to the default (unarchived) listing set.
func (s *Store) Unarchive(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET archived_at = NULL WHERE id = ?`, id)
	if err != nil {
		return storage.WrapDBErrorf(err, "unarchive %d", id)
	}
	return nil
}

// ListFilter narrows List/Count. It is built and applied through the
// shared storage.FilterBuilder so every listing/search path honors the
// same date/project/tag/archive predicates.
type ListFilter struct {
	Project         string
	Tags            []string
	TagsMatchAll    bool
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	ModifiedAfter   *time.Time
	ModifiedBefore  *time.Time
	IncludeArchived bool
	IncludeDeleted  bool
	Limit           int
}

// build renders the filter through the shared storage.FilterBuilder.
// Date predicates go through SQLite's datetime() on both sides so the
// space-separated CURRENT_TIMESTAMP form and the RFC3339 form Go callers
// write compare correctly.
func (f ListFilter) build() (string, []any) {
	fb := storage.NewFilterBuilder()
	fb.AddIf(!f.IncludeDeleted, "deleted_at IS NULL")
	fb.AddIf(!f.IncludeArchived, "archived_at IS NULL")
	fb.AddIf(f.Project != "", "project = ?", f.Project)
	fb.AddIf(f.CreatedAfter != nil, "datetime(created_at) >= datetime(?)", timeArg(f.CreatedAfter))
	fb.AddIf(f.CreatedBefore != nil, "datetime(created_at) <= datetime(?)", timeArg(f.CreatedBefore))
	fb.AddIf(f.ModifiedAfter != nil, "datetime(updated_at) >= datetime(?)", timeArg(f.ModifiedAfter))
	fb.AddIf(f.ModifiedBefore != nil, "datetime(updated_at) <= datetime(?)", timeArg(f.ModifiedBefore))
	if len(f.Tags) > 0 {
		clause, args := storage.TagClause("", f.Tags, f.TagsMatchAll)
		fb.Add(clause, args...)
	}
	return fb.Build()
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// List returns documents matching filter, newest first unless overridden.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*types.Document, error) {
	where, args := filter.build()
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query := documentSelectColumns + ` FROM documents `
	if where != "" {
		query += where + " "
	}
	query += `ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapDBError("list documents", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, d := range docs {
		tags, err := s.tagsFor(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		d.Tags = tags
	}
	return docs, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, filter ListFilter) (uint64, error) {
	where, args := filter.build()
	query := `SELECT COUNT(*) FROM documents `
	if where != "" {
		query += where
	}
	var n uint64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, storage.WrapDBError("count documents", err)
	}
	return n, nil
}

// GetAllTitles returns every live document title, for collaborators (e.g.
// a file-browser widget) that need the set without direct SQL access.
func (s *Store) GetAllTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM documents WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, storage.WrapDBError("list titles", err)
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// Related returns up to limit documents linked to id via document_links,
// in either direction, ordered by similarity_score descending. Links are
// written by Save's supersede path and by the Search layer's link-builder;
// this is purely a read over that stored edge set.
func (s *Store) Related(ctx context.Context, id int64, limit int) ([]*types.DocumentLink, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, similarity_score, method FROM document_links
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY similarity_score DESC
		 LIMIT ?`, id, id, limit)
	if err != nil {
		return nil, storage.WrapDBError("related documents", err)
	}
	defer rows.Close()

	var out []*types.DocumentLink
	for rows.Next() {
		var l types.DocumentLink
		if err := rows.Scan(&l.FromID, &l.ToID, &l.SimilarityScore, &l.Method); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// RecordSource persists provenance for a document produced on behalf of an
// execution, skill, or recipe. Skipping this call is the known defect
// class where a delegate-generated document appears as a top-level item;
// Save already calls this inside its own transaction when opts.Source is
// set, so external callers only need this for out-of-band provenance
// corrections.
func (s *Store) RecordSource(ctx context.Context, documentID int64, kind types.DocumentSourceKind, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := recordSourceTx(ctx, tx, documentID, kind, sourceID); err != nil {
		return err
	}
	return tx.Commit()
}

func recordSourceTx(ctx context.Context, tx *sql.Tx, documentID int64, kind types.DocumentSourceKind, sourceID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO document_sources (document_id, source_kind, source_id) VALUES (?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET source_kind = excluded.source_kind, source_id = excluded.source_id`,
		documentID, kind, sourceID)
	if err != nil {
		return storage.WrapDBError("record source", err)
	}
	return nil
}

func requireRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NewError(types.ErrKindNotFound, "document %d not found or not in expected state", id)
	}
	return nil
}

func isNotFoundErr(err error) bool {
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	var typed *types.Error
	return errors.As(err, &typed) && typed.Kind == types.ErrKindNotFound
}
