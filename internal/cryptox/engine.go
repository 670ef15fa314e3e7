package cryptox

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrNotUnlocked      = errors.New("crypto engine is locked")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// verificationMarker is encrypted into the vault's verify file. Its value is
// not secret; only the ability to authenticate it under a key matters.
const verificationMarker = "gophvault-verification-token-v1"

// VerificationToken returns the fixed plaintext stored in the verify file.
func VerificationToken() []byte {
	return []byte(verificationMarker)
}

// Engine encrypts and decrypts with a single master key. The zero value is
// locked and ready to use.
type Engine struct {
	mu     sync.RWMutex
	key    []byte
	pinned bool
	aead   cipher.AEAD
}

func NewEngine() *Engine {
	return &Engine{}
}

// Unlock installs a copy of key, replacing (and wiping) any previous one.
// The caller keeps ownership of key and may wipe it afterwards.
func (e *Engine) Unlock(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes", ErrKeyDerivation, KeySize)
	}

	owned := make([]byte, KeySize)
	copy(owned, key)

	aead, err := chacha20poly1305.NewX(owned)
	if err != nil {
		common.WipeByteArray(owned)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.wipeLocked()
	e.key = owned
	e.pinned = lockMemory(owned) == nil
	e.aead = aead
	return nil
}

// Lock wipes the key. It is safe to call on a locked engine.
func (e *Engine) Lock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wipeLocked()
}

func (e *Engine) wipeLocked() {
	if e.key == nil {
		return
	}
	common.WipeByteArray(e.key)
	if e.pinned {
		_ = unlockMemory(e.key)
	}
	e.key = nil
	e.pinned = false
	e.aead = nil
}

func (e *Engine) IsUnlocked() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.aead != nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce || ciphertext.
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.aead == nil {
		return nil, ErrNotUnlocked
	}

	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Any authentication failure, including input too
// short to hold a nonce and tag, yields ErrDecryptionFailed.
func (e *Engine) Decrypt(data []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.aead == nil {
		return nil, ErrNotUnlocked
	}

	ns := e.aead.NonceSize()
	if len(data) < ns+e.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := e.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
