// Package common defines shared constants and sentinel errors used across
// the vault layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Session-level errors.
	ErrVaultLocked             = errors.New("vault is locked")
	ErrVaultAlreadyInitialized = errors.New("vault already initialized")
	ErrVaultNotInitialized     = errors.New("vault not initialized")
	ErrInvalidMasterKey        = errors.New("invalid master key")
	ErrLockedOut               = errors.New("too many failed attempts")

	// Validation errors.
	ErrInvalidInput = errors.New("invalid input")

	// Repository-level errors.
	ErrItemNotFound = errors.New("item not found")
	ErrStorage      = errors.New("storage error")

	// Anything unexpected.
	ErrInternal = errors.New("internal error")
)

// ItemNotFoundError reports a missing vault item by id.
type ItemNotFoundError struct {
	ID string
}

func NewItemNotFoundError(id string) *ItemNotFoundError {
	return &ItemNotFoundError{ID: id}
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.ID)
}

func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// ValidationError describes rejected user input. It matches ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// LockoutError is returned by unlock attempts made while the brute-force
// lockout window is active. It matches ErrLockedOut.
type LockoutError struct {
	RemainingSeconds int64
	FailedAttempts   uint32
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %d minute(s)", e.RemainingMinutes())
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrLockedOut
}

// RemainingMinutes rounds the remaining wait up to whole minutes.
func (e *LockoutError) RemainingMinutes() int64 {
	return (e.RemainingSeconds + 59) / 60
}

// StorageError wraps a database or filesystem failure so that it matches
// ErrStorage while keeping the cause reachable through errors.Unwrap.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
