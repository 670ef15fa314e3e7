package models

// BruteForceConfig controls unlock lockout. It is persisted as JSON in the
// settings table.
type BruteForceConfig struct {
	Enabled                bool   `json:"enabled"`
	MaxAttempts            uint32 `json:"max_attempts"`
	LockoutDurationMinutes uint32 `json:"lockout_duration_minutes"`
}

func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{Enabled: true, MaxAttempts: 5, LockoutDurationMinutes: 5}
}

// LockoutStatus is a snapshot of the limiter state.
type LockoutStatus struct {
	IsLockedOut            bool   `json:"is_locked_out"`
	RemainingSeconds       int64  `json:"remaining_seconds"`
	FailedAttempts         uint32 `json:"failed_attempts"`
	MaxAttempts            uint32 `json:"max_attempts"`
	LockoutDurationMinutes uint32 `json:"lockout_duration_minutes"`
}

// VaultStatus summarises the session for the command layer.
type VaultStatus struct {
	Initialized bool   `json:"initialized"`
	Unlocked    bool   `json:"unlocked"`
	Strength    string `json:"strength,omitempty"`
}

const (
	DefaultTheme = "dark"
)
