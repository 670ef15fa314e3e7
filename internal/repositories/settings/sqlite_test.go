package settings

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE vault_meta (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyTheme, []byte("light")))

	v, err := r.Get(ctx, KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, []byte("light"), v)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestSet_NilStoresEmpty(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyLastFailedAttempt, nil))

	v, err := r.Get(ctx, KeyLastFailedAttempt)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Empty(t, v)
}

func TestDelete_IsIdempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", []byte{1}))
	require.NoError(t, r.Delete(ctx, "x"))
	require.NoError(t, r.Delete(ctx, "x"))

	v, err := r.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestListAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte{0xAA}))
	require.NoError(t, r.Set(ctx, "b", []byte{0xBB, 0xCC}))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {0xAA}, "b": {0xBB, 0xCC}}, m)

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestWorksInsideTransaction(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, NewSQLiteRepository(tx).Set(ctx, "k", []byte("v")))
	require.NoError(t, tx.Rollback())

	v, err := NewSQLiteRepository(db).Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v, "rolled back write must not be visible")
}

func newRepoWithMock(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db), mock
}

func TestDriverErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("get", func(t *testing.T) {
		r, mock := newRepoWithMock(t)
		mock.ExpectQuery(`SELECT value FROM vault_meta`).WithArgs("k").WillReturnError(boom)

		_, err := r.Get(ctx, "k")
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to get setting[k]")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set", func(t *testing.T) {
		r, mock := newRepoWithMock(t)
		mock.ExpectExec(`INSERT INTO vault_meta`).WithArgs("k", []byte("v")).WillReturnError(boom)

		err := r.Set(ctx, "k", []byte("v"))
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to set setting[k]")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list scan", func(t *testing.T) {
		r, mock := newRepoWithMock(t)
		rows := sqlmock.NewRows([]string{"key", "value"}).
			AddRow("a", []byte("x")).
			RowError(0, boom)
		mock.ExpectQuery(`SELECT key, value FROM vault_meta`).WillReturnRows(rows)

		_, err := r.List(ctx)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear", func(t *testing.T) {
		r, mock := newRepoWithMock(t)
		mock.ExpectExec(`DELETE FROM vault_meta`).WillReturnError(boom)

		err := r.Clear(ctx)
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
