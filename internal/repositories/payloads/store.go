// Package payloads keeps item payload ciphertext as individual files under
// the vault's data directory and removes them with a best-effort shred.
package payloads

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// ErrPayloadNotFound is returned by Read when the file does not exist.
var ErrPayloadNotFound = errors.New("payload not found")

type Store struct {
	dir    string
	logger logging.Logger
}

func NewStore(dir string, logger logging.Logger) *Store {
	return &Store{dir: dir, logger: logger.With("component", "payloads")}
}

func (s *Store) Dir() string {
	return s.dir
}

// ValidateName accepts a single path element that is not "." or "..".
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		filepath.Base(name) != name {
		return common.NewValidationError("payload", fmt.Sprintf("invalid payload name %q", name))
	}
	return nil
}

func (s *Store) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func stagedName(name string) string {
	return name + common.StagedSuffix
}

// Write stores data under name, replacing any existing payload.
func (s *Store) Write(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(p, data); err != nil {
		return common.StorageError("write payload", err)
	}
	return nil
}

func (s *Store) Read(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.StorageError("read payload", fmt.Errorf("%w: %s", ErrPayloadNotFound, name))
	}
	if err != nil {
		return nil, common.StorageError("read payload", err)
	}
	return data, nil
}

// Remove shreds and unlinks the payload. It never fails: a missing file is a
// no-op and shred or unlink errors are logged.
func (s *Store) Remove(ctx context.Context, name string) {
	p, err := s.path(name)
	if err != nil {
		s.logger.Warn(ctx, "skipping payload with invalid name", "name", name)
		return
	}
	s.removePath(ctx, p)
}

func (s *Store) removePath(ctx context.Context, p string) {
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return
	}

	s.wipe(ctx, p)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error(ctx, "failed to remove payload", "path", p, "error", err)
	}
}

// wipe overwrites p in place, falling back to a zero fill.
func (s *Store) wipe(ctx context.Context, p string) {
	if err := filex.Shred(p); err != nil {
		s.logger.Warn(ctx, "secure overwrite failed, falling back to zero fill", "path", p, "error", err)
		if err := filex.ZeroFill(p); err != nil {
			s.logger.Error(ctx, "zero fill failed", "path", p, "error", err)
		}
	}
}

// Stage writes data next to name for a later Promote.
func (s *Store) Stage(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(filepath.Join(s.dir, stagedName(name)), data); err != nil {
		return common.StorageError("stage payload", err)
	}
	return nil
}

// Promote shreds the live file and renames the staged copy of name over it.
// A missing staged file is not an error, so promotion can be replayed.
func (s *Store) Promote(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	src := filepath.Join(s.dir, stagedName(name))
	dst := filepath.Join(s.dir, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return common.StorageError("promote payload", err)
	}
	if _, err := os.Stat(dst); err == nil {
		s.wipe(ctx, dst)
	}
	if err := os.Rename(src, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.StorageError("promote payload", err)
	}
	return nil
}

// Discard drops the staged copy of name. The staged file holds ciphertext
// under a key that was never committed, so plain removal is enough.
func (s *Store) Discard(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, stagedName(name))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.StorageError("discard payload", err)
	}
	return nil
}

// StagedNames lists payload names that have a staged copy.
func (s *Store) StagedNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, common.StorageError("list staged payloads", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), common.StagedSuffix); ok && ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	return names, nil
}

// Clear shreds every file in the data directory and removes the directory.
func (s *Store) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return common.StorageError("clear payloads", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			s.removePath(ctx, filepath.Join(s.dir, e.Name()))
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return common.StorageError("clear payloads", err)
	}
	return nil
}
