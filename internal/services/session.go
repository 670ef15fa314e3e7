// Package services contains the vault session: the single entry point the
// command layer talks to. A session owns one metadata store and one crypto
// engine and serializes every operation over them.
//
// Lock order is always storeMu, then cryptoMu. Input validation happens
// before either lock is taken, so rejected input never touches state.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/ratelimit"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

type VaultSession struct {
	storeMu sync.Mutex
	store   *storage.Store
	limiter *ratelimit.Limiter

	cryptoMu sync.Mutex
	engine   *cryptox.Engine

	logger logging.Logger
	now    func() time.Time
}

type Option func(*VaultSession)

// WithClock overrides the time source for item timestamps and lockouts.
func WithClock(now func() time.Time) Option {
	return func(s *VaultSession) { s.now = now }
}

// NewVaultSession wraps an opened store. The session starts locked.
func NewVaultSession(store *storage.Store, logger logging.Logger, opts ...Option) *VaultSession {
	s := &VaultSession{
		store:  store,
		engine: cryptox.NewEngine(),
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.limiter = ratelimit.New(store, logger, s.now)
	return s
}

// Close wipes the key and closes the store.
func (s *VaultSession) Close() error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	s.cryptoMu.Lock()
	s.engine.Lock()
	s.cryptoMu.Unlock()
	return s.store.Close()
}

func (s *VaultSession) nowUTC() time.Time {
	return s.now().UTC()
}

// lockBoth acquires both locks in order and returns the release function.
func (s *VaultSession) lockBoth() func() {
	s.storeMu.Lock()
	s.cryptoMu.Lock()
	return func() {
		s.cryptoMu.Unlock()
		s.storeMu.Unlock()
	}
}

// lockUnlocked acquires both locks and fails with ErrVaultLocked when no key
// is loaded. On error the locks are already released.
func (s *VaultSession) lockUnlocked() (func(), error) {
	release := s.lockBoth()
	if !s.engine.IsUnlocked() {
		release()
		return nil, common.ErrVaultLocked
	}
	return release, nil
}

func (s *VaultSession) Status(ctx context.Context) (models.VaultStatus, error) {
	release := s.lockBoth()
	defer release()

	ok, err := s.store.IsInitialized()
	if err != nil {
		return models.VaultStatus{}, err
	}
	st := models.VaultStatus{Initialized: ok, Unlocked: s.engine.IsUnlocked()}
	if ok {
		strength, err := s.store.KeyDerivationStrength(ctx)
		if err != nil {
			return models.VaultStatus{}, err
		}
		st.Strength = strength.String()
	}
	return st, nil
}

func (s *VaultSession) IsInitialized() (bool, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.IsInitialized()
}

func (s *VaultSession) IsUnlocked() bool {
	s.cryptoMu.Lock()
	defer s.cryptoMu.Unlock()
	return s.engine.IsUnlocked()
}

// Initialize creates the vault under passphrase and leaves the session
// unlocked. An empty strength selects the recommended profile.
func (s *VaultSession) Initialize(ctx context.Context, passphrase []byte, strength cryptox.Strength) error {
	if err := validatePassphrase("passphrase", passphrase); err != nil {
		return err
	}
	if strength == "" {
		strength = cryptox.Recommended
	}
	if !strength.Valid() {
		return common.NewValidationError("strength", "unknown key derivation strength")
	}

	release := s.lockBoth()
	defer release()

	ok, err := s.store.IsInitialized()
	if err != nil {
		return err
	}
	if ok {
		return common.ErrVaultAlreadyInitialized
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := cryptox.DeriveKey(passphrase, salt, strength)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if err := s.store.Initialize(ctx, salt, strength); err != nil {
		return err
	}
	if err := s.engine.Unlock(key); err != nil {
		return err
	}
	token, err := s.engine.Encrypt(cryptox.VerificationToken())
	if err != nil {
		return err
	}
	if err := s.store.StoreVerificationToken(token); err != nil {
		return err
	}
	s.logger.Info(ctx, "vault initialized", "strength", strength)
	return nil
}

// Unlock checks the lockout first, then derives the key and verifies it
// against the stored token. A wrong passphrase counts as a failed attempt.
func (s *VaultSession) Unlock(ctx context.Context, passphrase []byte) error {
	if err := validatePassphrase("passphrase", passphrase); err != nil {
		return err
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	ok, err := s.store.IsInitialized()
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrVaultNotInitialized
	}

	if err := s.checkLockout(ctx, "unlock"); err != nil {
		return err
	}

	s.cryptoMu.Lock()
	defer s.cryptoMu.Unlock()

	key, err := s.deriveCurrentKey(ctx, passphrase)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if err := s.engine.Unlock(key); err != nil {
		return err
	}
	err = s.checkToken(s.engine)
	switch {
	case err == nil:
		s.logger.Info(ctx, "vault unlocked")
		return s.limiter.ResetAttempts(ctx)
	case errors.Is(err, common.ErrInvalidMasterKey):
		s.engine.Lock()
		if err := s.limiter.RecordFailedAttempt(ctx); err != nil {
			return err
		}
		return common.ErrInvalidMasterKey
	default:
		s.engine.Lock()
		return err
	}
}

// Lock wipes the key. It always succeeds.
func (s *VaultSession) Lock(ctx context.Context) {
	s.cryptoMu.Lock()
	defer s.cryptoMu.Unlock()
	if s.engine.IsUnlocked() {
		s.logger.Info(ctx, "vault locked")
	}
	s.engine.Lock()
}

func (s *VaultSession) LockoutStatus(ctx context.Context) (models.LockoutStatus, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.limiter.Check(ctx)
}

func (s *VaultSession) BruteForceConfig(ctx context.Context) (models.BruteForceConfig, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.BruteForceConfig(ctx)
}

// SetBruteForceConfig persists cfg. Disabling the limiter also clears the
// failed-attempt counter.
func (s *VaultSession) SetBruteForceConfig(ctx context.Context, cfg models.BruteForceConfig) error {
	if cfg.Enabled {
		if cfg.MaxAttempts == 0 {
			return common.NewValidationError("max_attempts", "must be at least 1")
		}
		if cfg.LockoutDurationMinutes == 0 {
			return common.NewValidationError("lockout_duration_minutes", "must be at least 1")
		}
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if err := s.store.SetBruteForceConfig(ctx, cfg); err != nil {
		return err
	}
	if !cfg.Enabled {
		return s.limiter.ResetAttempts(ctx)
	}
	return nil
}

func (s *VaultSession) ResetFailedAttempts(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.limiter.ResetAttempts(ctx)
}

func (s *VaultSession) KeyDerivationStrength(ctx context.Context) (cryptox.Strength, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.KeyDerivationStrength(ctx)
}

func (s *VaultSession) Theme(ctx context.Context) (string, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.Theme(ctx)
}

func (s *VaultSession) SetTheme(ctx context.Context, theme string) error {
	theme, err := validateTheme(theme)
	if err != nil {
		return err
	}
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	return s.store.SetTheme(ctx, theme)
}

// deriveCurrentKey derives a candidate key with the stored salt and
// strength. The caller holds storeMu.
func (s *VaultSession) deriveCurrentKey(ctx context.Context, passphrase []byte) ([]byte, error) {
	salt, err := s.store.Salt()
	if err != nil {
		return nil, err
	}
	strength, err := s.store.KeyDerivationStrength(ctx)
	if err != nil {
		return nil, err
	}
	return cryptox.DeriveKey(passphrase, salt, strength)
}

// checkToken decrypts the stored verification token with e. A failed
// decryption or a wrong marker is reported as ErrInvalidMasterKey.
func (s *VaultSession) checkToken(e *cryptox.Engine) error {
	token, err := s.store.VerificationToken()
	if err != nil {
		return err
	}
	marker, err := e.Decrypt(token)
	if errors.Is(err, cryptox.ErrDecryptionFailed) {
		return common.ErrInvalidMasterKey
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(marker, cryptox.VerificationToken()) == 0 {
		return common.ErrInvalidMasterKey
	}
	return nil
}

// checkLockout returns a *common.LockoutError while the limiter is engaged.
// The caller holds storeMu.
func (s *VaultSession) checkLockout(ctx context.Context, op string) error {
	status, err := s.limiter.Check(ctx)
	if err != nil {
		return err
	}
	if status.IsLockedOut {
		s.logger.Warn(ctx, op+" refused, locked out", "remaining_seconds", status.RemainingSeconds)
		return &common.LockoutError{RemainingSeconds: status.RemainingSeconds, FailedAttempts: status.FailedAttempts}
	}
	return nil
}

// verifyPassphrase returns a separate engine unlocked with the key derived
// from passphrase, leaving the live engine alone. It is subject to the same
// lockout as Unlock and a wrong passphrase counts as a failed attempt. The
// caller must Lock the returned engine. The caller holds storeMu.
func (s *VaultSession) verifyPassphrase(ctx context.Context, op string, passphrase []byte) (*cryptox.Engine, error) {
	ok, err := s.store.IsInitialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrVaultNotInitialized
	}
	if err := s.checkLockout(ctx, op); err != nil {
		return nil, err
	}
	key, err := s.deriveCurrentKey(ctx, passphrase)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	e := cryptox.NewEngine()
	if err := e.Unlock(key); err != nil {
		return nil, err
	}
	if err := s.checkToken(e); err != nil {
		e.Lock()
		if errors.Is(err, common.ErrInvalidMasterKey) {
			if rerr := s.limiter.RecordFailedAttempt(ctx); rerr != nil {
				return nil, rerr
			}
		}
		return nil, err
	}
	if err := s.limiter.ResetAttempts(ctx); err != nil {
		e.Lock()
		return nil, err
	}
	return e, nil
}
