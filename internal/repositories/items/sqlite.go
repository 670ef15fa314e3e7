package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
)

const columns = `id, parent_id, name, item_type, data_path, folder_type, tags, created_at, updated_at, deleted_at, totp_secret`

// SQLiteRepository works on either a *sql.DB or a *sql.Tx. With SQLite's
// single connection, callers holding a transaction must not also use the
// *sql.DB, and each result set is drained before the next query is issued.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var (
		r      Row
		parent sql.NullString
	)
	if err := s.Scan(&r.ID, &parent, &r.Name, &r.ItemType, &r.DataPath, &r.FolderType,
		&r.Tags, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt, &r.TotpSecret); err != nil {
		return nil, err
	}
	if parent.Valid {
		p := parent.String
		r.ParentID = &p
	}
	return &r, nil
}

func (r *SQLiteRepository) query(ctx context.Context, op, q string, args ...any) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item rows: %w", err)
	}
	return out, nil
}

func nullableParent(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func (r *SQLiteRepository) Insert(ctx context.Context, row *Row) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO vault_items (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, nullableParent(row.ParentID), row.Name, row.ItemType, row.DataPath,
		nullableBlob(row.FolderType), nullableBlob(row.Tags), row.CreatedAt, row.UpdatedAt,
		nullableBlob(row.DeletedAt), nullableBlob(row.TotpSecret))
	if err != nil {
		return fmt.Errorf("failed to insert item[%s]: %w", row.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, row *Row) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE vault_items SET parent_id = ?, name = ?, item_type = ?,
		data_path = ?, folder_type = ?, tags = ?, created_at = ?, updated_at = ?, deleted_at = ?,
		totp_secret = ? WHERE id = ?`,
		nullableParent(row.ParentID), row.Name, row.ItemType, row.DataPath,
		nullableBlob(row.FolderType), nullableBlob(row.Tags), row.CreatedAt, row.UpdatedAt,
		nullableBlob(row.DeletedAt), nullableBlob(row.TotpSecret), row.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update item[%s]: %w", row.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update item[%s]: %w", row.ID, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM vault_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item[%s]: %w", id, err)
	}
	return row, nil
}

func (r *SQLiteRepository) ListByParent(ctx context.Context, parentID *string) ([]Row, error) {
	if parentID == nil {
		return r.query(ctx, "list root items", `SELECT `+columns+` FROM vault_items WHERE parent_id IS NULL`)
	}
	return r.query(ctx, "list child items", `SELECT `+columns+` FROM vault_items WHERE parent_id = ?`, *parentID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]Row, error) {
	return r.query(ctx, "list items", `SELECT `+columns+` FROM vault_items`)
}

func (r *SQLiteRepository) ListDeleted(ctx context.Context) ([]Row, error) {
	return r.query(ctx, "list deleted items", `SELECT `+columns+` FROM vault_items WHERE deleted_at IS NOT NULL`)
}

func (r *SQLiteRepository) GetMany(ctx context.Context, ids []string) ([]Row, error) {
	var out []Row
	for _, chunk := range dbx.Chunk(ids, dbx.MaxInParams) {
		rows, err := r.query(ctx, "get items",
			`SELECT `+columns+` FROM vault_items WHERE id IN (`+dbx.Placeholders(len(chunk))+`)`,
			dbx.Args(nil, chunk)...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *SQLiteRepository) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM vault_items WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate child ids: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) SetDeletedAt(ctx context.Context, ids []string, deletedAt []byte) error {
	for _, chunk := range dbx.Chunk(ids, dbx.MaxInParams) {
		q := `UPDATE vault_items SET deleted_at = ? WHERE id IN (` + dbx.Placeholders(len(chunk)) + `)`
		if _, err := r.db.ExecContext(ctx, q, dbx.Args([]any{nullableBlob(deletedAt)}, chunk)...); err != nil {
			return fmt.Errorf("failed to mark items deleted: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Restore(ctx context.Context, id string, toRoot bool) (bool, error) {
	q := `UPDATE vault_items SET deleted_at = NULL WHERE id = ?`
	if toRoot {
		q = `UPDATE vault_items SET deleted_at = NULL, parent_id = NULL WHERE id = ?`
	}
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("failed to restore item[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to restore item[%s]: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, chunk := range dbx.Chunk(ids, dbx.MaxInParams) {
		q := `DELETE FROM vault_items WHERE id IN (` + dbx.Placeholders(len(chunk)) + `)`
		if _, err := r.db.ExecContext(ctx, q, dbx.Args(nil, chunk)...); err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) DetachFromDeletedParents(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE vault_items SET parent_id = NULL
		WHERE deleted_at IS NULL
		AND parent_id IN (SELECT id FROM vault_items WHERE deleted_at IS NOT NULL)`)
	if err != nil {
		return 0, fmt.Errorf("failed to detach items from deleted parents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to detach items from deleted parents: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAllDeleted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vault_items WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted items: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vault_items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	return nil
}
