// Package dbx holds the small database/sql helpers shared by the vault
// repositories: the DBTX handle interface, a transaction runner, and helpers
// for building IN (...) lists that stay under SQLite's variable limit.
package dbx

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is implemented by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back on error or panic; a panic is re-raised after rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM vault_items WHERE id = ?", id)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// MaxInParams bounds the number of bound variables per IN list.
const MaxInParams = 500

// Placeholders returns "?, ?, ?" with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Chunk splits ids into batches of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxInParams
	}
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

// Args converts ids to a variadic argument list, prefixed by head.
func Args(head []any, ids []string) []any {
	out := make([]any, 0, len(head)+len(ids))
	out = append(out, head...)
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
