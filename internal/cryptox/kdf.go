package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 32
	KeySize  = 32
)

var ErrKeyDerivation = errors.New("key derivation failed")

// Strength names an Argon2id cost profile.
type Strength string

const (
	Fast        Strength = "Fast"
	Recommended Strength = "Recommended"
	Paranoid    Strength = "Paranoid"
)

type kdfParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
}

var profiles = map[Strength]kdfParams{
	Fast:        {time: 1, memory: 19 * 1024, threads: 1},
	Recommended: {time: 3, memory: 64 * 1024, threads: 4},
	Paranoid:    {time: 4, memory: 256 * 1024, threads: 4},
}

func (s Strength) String() string { return string(s) }

// Valid reports whether s names a known profile.
func (s Strength) Valid() bool {
	_, ok := profiles[s]
	return ok
}

// ParseStrength matches a profile name case-insensitively.
func ParseStrength(v string) (Strength, error) {
	for s := range profiles {
		if strings.EqualFold(strings.TrimSpace(v), string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown strength %q", ErrKeyDerivation, v)
}

// StrengthOrDefault parses a persisted value, falling back to Recommended.
func StrengthOrDefault(v string) Strength {
	s, err := ParseStrength(v)
	if err != nil {
		return Recommended
	}
	return s
}

// GenerateSalt returns SaltSize bytes from the system CSPRNG.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	return salt, nil
}

// DeriveKey stretches passphrase with Argon2id using the profile for s.
// The result is always KeySize bytes and is deterministic for equal inputs.
func DeriveKey(passphrase, salt []byte, s Strength) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrKeyDerivation)
	}
	p, ok := profiles[s]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strength %q", ErrKeyDerivation, s)
	}
	return argon2.IDKey(passphrase, salt, p.time, p.memory, p.threads, KeySize), nil
}
