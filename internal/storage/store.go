// Package storage is the vault's metadata store. It owns the vault
// directory: the SQLite database with the encrypted item table and the
// plaintext settings table, the salt and verify boundary files, and the
// payload directory. Item fields are encrypted through a caller-supplied
// Cipher so the store itself never holds key material.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/migrations"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
	"github.com/dmitrijs2005/gophvault/internal/repositories/payloads"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Store struct {
	dir      string
	db       *sql.DB
	items    *items.SQLiteRepository
	settings *settings.SQLiteRepository
	payloads *payloads.Store
	logger   logging.Logger
	now      func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for deletion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// migrate is swapped in tests.
var migrate = func(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Open prepares dir as a vault directory and opens its database, creating
// both on first use. An interrupted key rotation is completed or rolled
// back before Open returns.
func Open(ctx context.Context, dir string, logger logging.Logger, opts ...Option) (*Store, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, common.StorageError("open vault dir", err)
	}
	dataDir := filepath.Join(dir, common.DataDirName)
	if err := filex.EnsureDir(dataDir); err != nil {
		return nil, common.StorageError("open data dir", err)
	}

	dbPath := filepath.Join(dir, common.DatabaseFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, common.StorageError("open database", err)
	}
	// One connection: transactions and plain queries never interleave.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.StorageError("open database", err)
	}
	if err := os.Chmod(dbPath, filex.FilePerm); err != nil {
		logger.Warn(ctx, "failed to restrict database permissions", "path", dbPath, "error", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, common.StorageError("migrate database", err)
	}

	s := &Store{
		dir:      dir,
		db:       db,
		items:    items.NewSQLiteRepository(db),
		settings: settings.NewSQLiteRepository(db),
		payloads: payloads.NewStore(dataDir, logger),
		logger:   logger.With("component", "storage"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.recoverRotation(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// withTx runs fn with item and settings repositories bound to one
// transaction. Database failures are reported as storage errors; errors
// returned by fn itself pass through untouched.
func (s *Store) withTx(ctx context.Context, op string, fn func(ctx context.Context, it *items.SQLiteRepository, st *settings.SQLiteRepository) error) error {
	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fnErr = fn(ctx, items.NewSQLiteRepository(tx), settings.NewSQLiteRepository(tx))
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return common.StorageError(op, err)
}

func (s *Store) nowUTC() time.Time {
	return s.now().UTC()
}
