package storage

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
)

// Reset returns the vault to the uninitialized state: all rows and settings
// are deleted, payloads are shredded, and the salt and verify files are
// removed. The schema stays in place.
func (s *Store) Reset(ctx context.Context) error {
	err := s.withTx(ctx, "reset", func(ctx context.Context, it *items.SQLiteRepository, st *settings.SQLiteRepository) error {
		if err := it.Clear(ctx); err != nil {
			return common.StorageError("reset", err)
		}
		return common.StorageError("reset", st.Clear(ctx))
	})
	if err != nil {
		return err
	}

	if err := s.payloads.Clear(ctx); err != nil {
		return err
	}
	if err := filex.EnsureDir(s.payloads.Dir()); err != nil {
		return common.StorageError("reset", err)
	}

	for _, name := range []string{common.SaltFileName, common.VerifyFileName} {
		for _, p := range []string{s.path(name), stagedPath(s.path(name))} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return common.StorageError("reset", err)
			}
		}
	}

	s.logger.Info(ctx, "vault reset")
	return nil
}

// Archive writes a zip of the vault directory to w. Entries are stored
// without compression since everything but the settings table is
// ciphertext. Staged and temporary files are skipped.
func (s *Store) Archive(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		base := d.Name()
		if strings.HasSuffix(base, common.StagedSuffix) || strings.HasPrefix(base, ".") ||
			strings.HasSuffix(base, "-journal") {
			return nil
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		return addToZip(zw, p, filepath.ToSlash(rel))
	})
	if err != nil {
		_ = zw.Close()
		return common.StorageError("archive vault", err)
	}
	return common.StorageError("archive vault", zw.Close())
}

func addToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Store

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}
