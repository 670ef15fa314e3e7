package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
)

func (s *Store) getSetting(ctx context.Context, key string) (string, bool, error) {
	v, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", false, common.StorageError("read setting", err)
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	return common.StorageError("write setting", s.settings.Set(ctx, key, []byte(value)))
}

// KeyDerivationStrength returns the stored profile; missing or unknown
// values read as Recommended.
func (s *Store) KeyDerivationStrength(ctx context.Context) (cryptox.Strength, error) {
	v, _, err := s.getSetting(ctx, settings.KeyKDFStrength)
	if err != nil {
		return "", err
	}
	return cryptox.StrengthOrDefault(v), nil
}

func (s *Store) SetKeyDerivationStrength(ctx context.Context, strength cryptox.Strength) error {
	return s.setSetting(ctx, settings.KeyKDFStrength, strength.String())
}

// BruteForceConfig returns the stored config, or the default when missing
// or unreadable.
func (s *Store) BruteForceConfig(ctx context.Context) (models.BruteForceConfig, error) {
	v, ok, err := s.getSetting(ctx, settings.KeyBruteForceConfig)
	if err != nil {
		return models.BruteForceConfig{}, err
	}
	cfg := models.DefaultBruteForceConfig()
	if !ok {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(v), &cfg); err != nil {
		s.logger.Warn(ctx, "unreadable brute force config, using defaults", "error", err)
		return models.DefaultBruteForceConfig(), nil
	}
	return cfg, nil
}

func (s *Store) SetBruteForceConfig(ctx context.Context, cfg models.BruteForceConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.setSetting(ctx, settings.KeyBruteForceConfig, string(b))
}

// FailedLoginAttempts returns the stored counter. An unreadable counter
// reads as the configured maximum so a pending lockout stays in force.
func (s *Store) FailedLoginAttempts(ctx context.Context) (uint32, error) {
	v, ok, err := s.getSetting(ctx, settings.KeyFailedAttempts)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		cfg, cfgErr := s.BruteForceConfig(ctx)
		if cfgErr != nil {
			return 0, cfgErr
		}
		s.logger.Warn(ctx, "unreadable failed attempt counter, assuming limit reached", "error", err)
		return cfg.MaxAttempts, nil
	}
	return uint32(n), nil
}

func (s *Store) SetFailedLoginAttempts(ctx context.Context, n uint32) error {
	return s.setSetting(ctx, settings.KeyFailedAttempts, strconv.FormatUint(uint64(n), 10))
}

// LastFailedAttempt returns nil when no failure is recorded. An unreadable
// timestamp is replaced with the current time, which restarts the lockout
// window instead of lifting it.
func (s *Store) LastFailedAttempt(ctx context.Context) (*time.Time, error) {
	v, ok, err := s.getSetting(ctx, settings.KeyLastFailedAttempt)
	if err != nil || !ok || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		s.logger.Warn(ctx, "unreadable last failed attempt, restarting lockout window", "error", err)
		now := s.nowUTC().Truncate(time.Second)
		if err := s.SetLastFailedAttempt(ctx, &now); err != nil {
			return nil, err
		}
		return &now, nil
	}
	t = t.UTC()
	return &t, nil
}

// SetLastFailedAttempt stores t, or clears the value when t is nil.
func (s *Store) SetLastFailedAttempt(ctx context.Context, t *time.Time) error {
	v := ""
	if t != nil {
		v = t.UTC().Format(time.RFC3339)
	}
	return s.setSetting(ctx, settings.KeyLastFailedAttempt, v)
}

func (s *Store) Theme(ctx context.Context) (string, error) {
	v, ok, err := s.getSetting(ctx, settings.KeyTheme)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return models.DefaultTheme, nil
	}
	return v, nil
}

func (s *Store) SetTheme(ctx context.Context, theme string) error {
	return s.setSetting(ctx, settings.KeyTheme, theme)
}
