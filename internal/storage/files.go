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
)

// IsInitialized reports whether both boundary files exist.
func (s *Store) IsInitialized() (bool, error) {
	for _, name := range []string{common.SaltFileName, common.VerifyFileName} {
		ok, err := filex.Exists(s.path(name))
		if err != nil {
			return false, common.StorageError("stat "+name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Initialize writes the salt and the default settings. The verification
// token is written separately once the key has been derived.
func (s *Store) Initialize(ctx context.Context, salt []byte, strength cryptox.Strength) error {
	if err := filex.WriteFileAtomic(s.path(common.SaltFileName), salt); err != nil {
		return common.StorageError("write salt", err)
	}
	if err := s.SetKeyDerivationStrength(ctx, strength); err != nil {
		return err
	}
	if err := s.SetBruteForceConfig(ctx, models.DefaultBruteForceConfig()); err != nil {
		return err
	}
	if err := s.SetFailedLoginAttempts(ctx, 0); err != nil {
		return err
	}
	return s.SetLastFailedAttempt(ctx, nil)
}

func (s *Store) readBoundary(name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrVaultNotInitialized
	}
	if err != nil {
		return nil, common.StorageError("read "+name, err)
	}
	return b, nil
}

func (s *Store) Salt() ([]byte, error) {
	return s.readBoundary(common.SaltFileName)
}

// VerificationToken returns the encrypted marker from the verify file.
func (s *Store) VerificationToken() ([]byte, error) {
	return s.readBoundary(common.VerifyFileName)
}

func (s *Store) StoreVerificationToken(ciphertext []byte) error {
	return common.StorageError("write verify", filex.WriteFileAtomic(s.path(common.VerifyFileName), ciphertext))
}

// WriteEncryptedFile stores already-encrypted payload bytes under name.
func (s *Store) WriteEncryptedFile(name string, ciphertext []byte) error {
	return s.payloads.Write(name, ciphertext)
}

// ReadEncryptedFile reads and decrypts the payload stored under name.
func (s *Store) ReadEncryptedFile(c Cipher, name string) ([]byte, error) {
	data, err := s.payloads.Read(name)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(data)
}

// RemovePayload shreds and unlinks one payload file.
func (s *Store) RemovePayload(ctx context.Context, name string) {
	s.payloads.Remove(ctx, name)
}
