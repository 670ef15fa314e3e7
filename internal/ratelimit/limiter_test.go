package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	cfg    models.BruteForceConfig
	failed uint32
	last   *time.Time
	cfgErr error
	setErr error
	writes int
}

func (m *memStore) BruteForceConfig(context.Context) (models.BruteForceConfig, error) {
	return m.cfg, m.cfgErr
}

func (m *memStore) FailedLoginAttempts(context.Context) (uint32, error) { return m.failed, nil }

func (m *memStore) SetFailedLoginAttempts(_ context.Context, n uint32) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.writes++
	m.failed = n
	return nil
}

func (m *memStore) LastFailedAttempt(context.Context) (*time.Time, error) { return m.last, nil }

func (m *memStore) SetLastFailedAttempt(_ context.Context, t *time.Time) error {
	m.writes++
	m.last = t
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(cfg models.BruteForceConfig) (*Limiter, *memStore, *clock) {
	st := &memStore{cfg: cfg}
	clk := &clock{t: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	return New(st, logging.NewNop(), clk.now), st, clk
}

func TestCheck_NotLockedBelowThreshold(t *testing.T) {
	l, _, _ := newLimiter(models.BruteForceConfig{Enabled: true, MaxAttempts: 3, LockoutDurationMinutes: 5})
	ctx := context.Background()

	require.NoError(t, l.RecordFailedAttempt(ctx))
	require.NoError(t, l.RecordFailedAttempt(ctx))

	st, err := l.Check(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsLockedOut)
	assert.EqualValues(t, 2, st.FailedAttempts)
	assert.EqualValues(t, 3, st.MaxAttempts)
}

func TestCheck_LockoutWindowAndSelfHeal(t *testing.T) {
	l, st, clk := newLimiter(models.BruteForceConfig{Enabled: true, MaxAttempts: 3, LockoutDurationMinutes: 5})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailedAttempt(ctx))
	}

	clk.t = clk.t.Add(90 * time.Second)
	writes := st.writes
	status, err := l.Check(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsLockedOut)
	assert.EqualValues(t, 210, status.RemainingSeconds)
	assert.EqualValues(t, 3, status.FailedAttempts)
	assert.Equal(t, writes, st.writes, "check inside the window must not mutate state")

	clk.t = clk.t.Add(210 * time.Second)
	status, err = l.Check(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsLockedOut)
	assert.Zero(t, status.FailedAttempts)
	assert.Zero(t, st.failed)
	assert.Nil(t, st.last)
}

func TestCheck_Disabled(t *testing.T) {
	l, st, _ := newLimiter(models.BruteForceConfig{Enabled: false, MaxAttempts: 1, LockoutDurationMinutes: 5})
	ctx := context.Background()

	require.NoError(t, l.RecordFailedAttempt(ctx))
	require.NoError(t, l.RecordFailedAttempt(ctx))

	status, err := l.Check(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsLockedOut)
	assert.EqualValues(t, 2, status.FailedAttempts, "counter still surfaced for display")
	assert.EqualValues(t, 2, st.failed)
}

func TestCheck_ThresholdWithoutTimestamp(t *testing.T) {
	l, st, _ := newLimiter(models.DefaultBruteForceConfig())
	st.failed = 10

	status, err := l.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, status.IsLockedOut)
}

func TestResetAttempts(t *testing.T) {
	l, st, _ := newLimiter(models.DefaultBruteForceConfig())
	ctx := context.Background()

	require.NoError(t, l.RecordFailedAttempt(ctx))
	require.NotNil(t, st.last)

	require.NoError(t, l.ResetAttempts(ctx))
	assert.Zero(t, st.failed)
	assert.Nil(t, st.last)
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	l, st, _ := newLimiter(models.DefaultBruteForceConfig())
	ctx := context.Background()

	st.cfgErr = boom
	_, err := l.Check(ctx)
	require.ErrorIs(t, err, boom)

	st.cfgErr = nil
	st.setErr = boom
	require.ErrorIs(t, l.RecordFailedAttempt(ctx), boom)
	require.ErrorIs(t, l.ResetAttempts(ctx), boom)
}
