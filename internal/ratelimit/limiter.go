// Package ratelimit implements the persistent unlock lockout. All state is
// kept in the vault settings, so a lockout survives restarts.
package ratelimit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// SettingsStore is the subset of the metadata store the limiter needs.
type SettingsStore interface {
	BruteForceConfig(ctx context.Context) (models.BruteForceConfig, error)
	FailedLoginAttempts(ctx context.Context) (uint32, error)
	SetFailedLoginAttempts(ctx context.Context, n uint32) error
	LastFailedAttempt(ctx context.Context) (*time.Time, error)
	SetLastFailedAttempt(ctx context.Context, t *time.Time) error
}

type Limiter struct {
	store  SettingsStore
	now    func() time.Time
	logger logging.Logger
}

func New(store SettingsStore, logger logging.Logger, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, now: now, logger: logger.With("component", "ratelimit")}
}

// Check reports the lockout status. Inside an active window it never
// changes state; once the window has passed it clears the counter and the
// timestamp before reporting.
func (l *Limiter) Check(ctx context.Context) (models.LockoutStatus, error) {
	cfg, err := l.store.BruteForceConfig(ctx)
	if err != nil {
		return models.LockoutStatus{}, err
	}
	status := models.LockoutStatus{
		MaxAttempts:            cfg.MaxAttempts,
		LockoutDurationMinutes: cfg.LockoutDurationMinutes,
	}

	failed, err := l.store.FailedLoginAttempts(ctx)
	if err != nil {
		return models.LockoutStatus{}, err
	}
	status.FailedAttempts = failed

	if !cfg.Enabled || failed < cfg.MaxAttempts {
		return status, nil
	}

	last, err := l.store.LastFailedAttempt(ctx)
	if err != nil {
		return models.LockoutStatus{}, err
	}
	if last == nil {
		return status, nil
	}

	end := last.Add(time.Duration(cfg.LockoutDurationMinutes) * time.Minute)
	now := l.now().UTC()
	if now.Before(end) {
		status.IsLockedOut = true
		status.RemainingSeconds = max(0, int64(end.Sub(now)/time.Second))
		return status, nil
	}

	if err := l.ResetAttempts(ctx); err != nil {
		return models.LockoutStatus{}, err
	}
	l.logger.Info(ctx, "lockout window elapsed, attempts cleared")
	status.FailedAttempts = 0
	return status, nil
}

// RecordFailedAttempt increments the counter and stamps the current time.
func (l *Limiter) RecordFailedAttempt(ctx context.Context) error {
	n, err := l.store.FailedLoginAttempts(ctx)
	if err != nil {
		return err
	}
	n++
	if err := l.store.SetFailedLoginAttempts(ctx, n); err != nil {
		return err
	}
	now := l.now().UTC()
	if err := l.store.SetLastFailedAttempt(ctx, &now); err != nil {
		return err
	}
	l.logger.Warn(ctx, "failed unlock attempt recorded", "attempts", n)
	return nil
}

// ResetAttempts zeroes the counter and clears the timestamp.
func (l *Limiter) ResetAttempts(ctx context.Context) error {
	if err := l.store.SetFailedLoginAttempts(ctx, 0); err != nil {
		return err
	}
	return l.store.SetLastFailedAttempt(ctx, nil)
}
