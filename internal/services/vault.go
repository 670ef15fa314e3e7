package services

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

func (s *VaultSession) AllTags(ctx context.Context) ([]string, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.store.AllTags(ctx, s.engine)
}

// RenameTag replaces oldTag with newTag on every item and returns the
// number of items changed. Items that already carry newTag keep one copy.
func (s *VaultSession) RenameTag(ctx context.Context, oldTag, newTag string) (int, error) {
	oldTag, err := validateTag("old_tag", oldTag)
	if err != nil {
		return 0, err
	}
	newTag, err = validateTag("new_tag", newTag)
	if err != nil {
		return 0, err
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.store.RenameTagInAllItems(ctx, s.engine, oldTag, newTag)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "tag renamed", "items", n)
	return n, nil
}

// DeleteTag removes tag from every item and returns the number changed.
func (s *VaultSession) DeleteTag(ctx context.Context, tag string) (int, error) {
	tag, err := validateTag("tag", tag)
	if err != nil {
		return 0, err
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.store.RemoveTagFromAllItems(ctx, s.engine, tag)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "tag deleted", "items", n)
	return n, nil
}

// RotateMasterKey re-keys the vault from current to next. An empty strength
// keeps the current profile. On success the session is unlocked under the
// new key.
func (s *VaultSession) RotateMasterKey(ctx context.Context, current, next []byte, strength cryptox.Strength) error {
	if err := validatePassphrase("current", current); err != nil {
		return err
	}
	if err := validatePassphrase("new", next); err != nil {
		return err
	}
	if strength != "" && !strength.Valid() {
		return common.NewValidationError("strength", "unknown key derivation strength")
	}

	release := s.lockBoth()
	defer release()

	oldEngine, err := s.verifyPassphrase(ctx, "key rotation", current)
	if err != nil {
		return err
	}
	defer oldEngine.Lock()

	if strength == "" {
		if strength, err = s.store.KeyDerivationStrength(ctx); err != nil {
			return err
		}
	}
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := cryptox.DeriveKey(next, salt, strength)
	if err != nil {
		return err
	}
	newEngine := cryptox.NewEngine()
	err = newEngine.Unlock(key)
	common.WipeByteArray(key)
	if err != nil {
		return err
	}

	committed, err := s.store.RotateKey(ctx, storage.Rotation{
		Old:      oldEngine,
		New:      newEngine,
		Salt:     salt,
		Strength: strength,
	})
	if !committed {
		newEngine.Lock()
		return err
	}

	s.engine.Lock()
	s.engine = newEngine
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "master key rotated", "strength", strength)
	return nil
}

// ExportDecrypted re-verifies passphrase and returns every item with its
// decrypted payload. It uses a separate engine, so the live session state
// is not changed.
func (s *VaultSession) ExportDecrypted(ctx context.Context, passphrase []byte) ([]models.ExportedItem, error) {
	if err := validatePassphrase("passphrase", passphrase); err != nil {
		return nil, err
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	e, err := s.verifyPassphrase(ctx, "export", passphrase)
	if err != nil {
		return nil, err
	}
	defer e.Lock()

	items, err := s.store.GetAllItemsRecursive(ctx, e)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExportedItem, 0, len(items))
	for _, it := range items {
		ex := models.ExportedItem{Item: it}
		if it.HasPayload() {
			ex.Content, err = s.store.ReadEncryptedFile(e, it.DataPath)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, ex)
	}
	s.logger.Info(ctx, "vault exported", "items", len(out))
	return out, nil
}

// ExportEncrypted writes a zip of the vault directory to w. Everything in
// it is ciphertext except the settings table and the salt.
func (s *VaultSession) ExportEncrypted(ctx context.Context, w io.Writer) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	ok, err := s.store.IsInitialized()
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrVaultNotInitialized
	}
	return s.store.Archive(ctx, w)
}

// ResetVault destroys every item, payload and boundary file after
// re-verifying passphrase, and locks the session.
func (s *VaultSession) ResetVault(ctx context.Context, passphrase []byte) error {
	if err := validatePassphrase("passphrase", passphrase); err != nil {
		return err
	}

	release := s.lockBoth()
	defer release()

	e, err := s.verifyPassphrase(ctx, "reset", passphrase)
	if err != nil {
		if errors.Is(err, common.ErrInvalidMasterKey) {
			s.logger.Warn(ctx, "vault reset refused, wrong passphrase")
		}
		return err
	}
	e.Lock()

	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.engine.Lock()
	s.logger.Warn(ctx, "vault reset")
	return nil
}
