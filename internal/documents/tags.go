package documents

import (
	"context"
	"database/sql"

	"github.com/arockwell/emdx/internal/storage"
	"github.com/arockwell/emdx/internal/types"
)

// applyTags creates any missing tags, links them to id, and bumps
// usage_count for each distinct name. Duplicate names collapse to a
// single edit, satisfying add_tags([x,x,y]) == add_tags([x,y]).
func applyTags(ctx context.Context, tx *sql.Tx, id int64, names []string) error {
	for _, name := range dedupe(names) {
		tagID, err := getOrCreateTag(ctx, tx, name)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_tags (document_id, tag_id) VALUES (?, ?)`, id, tagID)
		if err != nil {
			return storage.WrapDBError("link tag", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tagID); err != nil {
				return storage.WrapDBError("bump tag usage", err)
			}
		}
	}
	return nil
}

func getOrCreateTag(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, storage.WrapDBError("lookup tag", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, storage.WrapDBError("create tag", err)
	}
	return res.LastInsertId()
}

// RenameTag moves every document_tags edge from the old name's tag row to
// the new name (creating it if necessary), preserving usage_count, and
// removes the old tag row.
func (s *Store) RenameTag(ctx context.Context, oldName, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldID int64
	var usage int64
	err = tx.QueryRowContext(ctx, `SELECT id, usage_count FROM tags WHERE name = ?`, oldName).Scan(&oldID, &usage)
	if err == sql.ErrNoRows {
		return types.NewError(types.ErrKindNotFound, "tag %q not found", oldName)
	}
	if err != nil {
		return storage.WrapDBError("lookup tag for rename", err)
	}

	newID, err := getOrCreateTag(ctx, tx, newName)
	if err != nil {
		return err
	}
	if newID == oldID {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO document_tags (document_id, tag_id) SELECT document_id, ? FROM document_tags WHERE tag_id = ?`,
		newID, oldID); err != nil {
		return storage.WrapDBError("repoint tag edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_tags WHERE tag_id = ?`, oldID); err != nil {
		return storage.WrapDBError("clear old tag edges", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tags SET usage_count = usage_count + ? WHERE id = ?`, usage, newID); err != nil {
		return storage.WrapDBError("merge tag usage", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, oldID); err != nil {
		return storage.WrapDBError("delete old tag", err)
	}
	return tx.Commit()
}

// MergeTags folds src into dest: every document tagged src is retagged
// dest (without duplicating edges), usage_count is summed, and src is
// removed. It is the same operation as RenameTag, which already accepts a
// dest that exists with its own usage.
func (s *Store) MergeTags(ctx context.Context, src, dest string) error {
	return s.RenameTag(ctx, src, dest)
}

func (s *Store) tagsFor(ctx context.Context, documentID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tags t JOIN document_tags dt ON dt.tag_id = t.id WHERE dt.document_id = ? ORDER BY t.name`,
		documentID)
	if err != nil {
		return nil, storage.WrapDBError("list tags", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
