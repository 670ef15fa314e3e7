// Package settings stores plaintext vault configuration in the vault_meta
// key/value table. Nothing secret may be written here.
package settings

import "context"

// Keys used in vault_meta.
const (
	KeyKDFStrength       = "kdf_strength"
	KeyBruteForceConfig  = "brute_force_config"
	KeyFailedAttempts    = "failed_login_attempts"
	KeyLastFailedAttempt = "last_failed_attempt_timestamp"
	KeyTheme             = "theme"
	KeyRotationPending   = "rotation_pending"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
