package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
	"github.com/dmitrijs2005/gophvault/internal/repositories/payloads"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
)

// ErrRotationIncomplete means the new key is committed but some staged
// files could not be promoted yet. The next Open finishes the promotion.
var ErrRotationIncomplete = errors.New("key rotation committed but not fully promoted")

// Rotation carries everything needed to re-key the vault.
type Rotation struct {
	Old      Cipher
	New      Cipher
	Salt     []byte
	Strength cryptox.Strength
}

func stagedPath(p string) string {
	return p + common.StagedSuffix
}

// RotateKey re-encrypts every row, payload and the verification token from
// r.Old to r.New and replaces the salt.
//
// Payloads and boundary files are first written as staged copies. The rows,
// the new strength and a pending marker then commit in one transaction, and
// only after that are staged files renamed into place. A failure before the
// commit leaves the vault untouched. committed reports whether the new key
// became authoritative; callers must switch keys whenever it is true, even
// if err is non-nil.
func (s *Store) RotateKey(ctx context.Context, r Rotation) (committed bool, err error) {
	rows, err := s.items.ListAll(ctx)
	if err != nil {
		return false, common.StorageError("rotate key", err)
	}
	all, err := decodeRows(r.Old, rows)
	if err != nil {
		return false, err
	}

	if err := s.stageRotation(ctx, r, all); err != nil {
		s.discardStaged(ctx)
		return false, err
	}

	err = s.withTx(ctx, "rotate key", func(ctx context.Context, it *items.SQLiteRepository, st *settings.SQLiteRepository) error {
		for i := range all {
			row, err := encodeItem(r.New, &all[i])
			if err != nil {
				return err
			}
			if _, err := it.Update(ctx, row); err != nil {
				return common.StorageError("rotate key", err)
			}
		}
		if err := st.Set(ctx, settings.KeyKDFStrength, []byte(r.Strength.String())); err != nil {
			return common.StorageError("rotate key", err)
		}
		return common.StorageError("rotate key", st.Set(ctx, settings.KeyRotationPending, []byte("1")))
	})
	if err != nil {
		s.discardStaged(ctx)
		return false, err
	}

	if err := s.promoteStaged(ctx); err != nil {
		s.logger.Error(ctx, "key rotation committed but promotion failed", "error", err)
		return true, errors.Join(ErrRotationIncomplete, err)
	}
	s.logger.Info(ctx, "master key rotated", "items", len(all), "strength", r.Strength)
	return true, nil
}

func (s *Store) stageRotation(ctx context.Context, r Rotation, all []models.VaultItem) error {
	for i := range all {
		name := all[i].DataPath
		if all[i].IsFolder() || name == "" {
			continue
		}
		data, err := s.payloads.Read(name)
		if errors.Is(err, payloads.ErrPayloadNotFound) {
			s.logger.Warn(ctx, "payload missing during key rotation", "item_id", all[i].ID)
			continue
		}
		if err != nil {
			return err
		}
		pt, err := r.Old.Decrypt(data)
		if err != nil {
			return err
		}
		ct, err := r.New.Encrypt(pt)
		common.WipeByteArray(pt)
		if err != nil {
			return err
		}
		if err := s.payloads.Stage(name, ct); err != nil {
			return err
		}
	}

	token, err := s.VerificationToken()
	if err != nil {
		return err
	}
	marker, err := r.Old.Decrypt(token)
	if err != nil {
		return err
	}
	newToken, err := r.New.Encrypt(marker)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(stagedPath(s.path(common.VerifyFileName)), newToken); err != nil {
		return common.StorageError("stage verify", err)
	}
	if err := filex.WriteFileAtomic(stagedPath(s.path(common.SaltFileName)), r.Salt); err != nil {
		return common.StorageError("stage salt", err)
	}
	return nil
}

// promoteStaged moves every staged file into place and clears the pending
// marker. It is idempotent.
func (s *Store) promoteStaged(ctx context.Context) error {
	names, err := s.payloads.StagedNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := s.payloads.Promote(ctx, n); err != nil {
			return err
		}
	}
	for _, name := range []string{common.VerifyFileName, common.SaltFileName} {
		p := s.path(name)
		if err := os.Rename(stagedPath(p), p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return common.StorageError("promote "+name, err)
		}
	}
	return common.StorageError("clear rotation marker", s.settings.Delete(ctx, settings.KeyRotationPending))
}

// discardStaged removes staged files left by an uncommitted rotation.
func (s *Store) discardStaged(ctx context.Context) {
	names, err := s.payloads.StagedNames()
	if err != nil {
		s.logger.Error(ctx, "failed to list staged payloads", "error", err)
	}
	for _, n := range names {
		if err := s.payloads.Discard(n); err != nil {
			s.logger.Error(ctx, "failed to discard staged payload", "name", n, "error", err)
		}
	}
	for _, name := range []string{common.VerifyFileName, common.SaltFileName} {
		if err := os.Remove(stagedPath(s.path(name))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error(ctx, "failed to discard staged file", "name", name, "error", err)
		}
	}
}

func (s *Store) recoverRotation(ctx context.Context) error {
	_, pending, err := s.getSetting(ctx, settings.KeyRotationPending)
	if err != nil {
		return err
	}
	if pending {
		s.logger.Warn(ctx, "completing interrupted key rotation")
		return s.promoteStaged(ctx)
	}
	s.discardStaged(ctx)
	return nil
}
