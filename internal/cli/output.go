package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/fatih/color"
)

var (
	errorText   = color.New(color.FgRed).SprintFunc()
	successText = color.New(color.FgGreen).SprintFunc()
	warnText    = color.New(color.FgYellow).SprintFunc()
	dimText     = color.New(color.Faint).SprintFunc()
)

// usageError is returned by handlers called with the wrong arguments.
type usageError struct {
	usage string
}

func (e *usageError) Error() string {
	return "usage: " + e.usage
}

func usage(u string) error {
	return &usageError{usage: u}
}

// describeError turns session errors into messages for the terminal.
func describeError(err error) string {
	var (
		lockout *common.LockoutError
		ue      *usageError
	)
	switch {
	case errors.As(err, &ue):
		return "Usage: " + ue.usage
	case errors.As(err, &lockout):
		return fmt.Sprintf("Too many failed attempts. Please wait %d minute(s) before trying again.", lockout.RemainingMinutes())
	case errors.Is(err, common.ErrInvalidMasterKey):
		return "Invalid passphrase."
	case errors.Is(err, common.ErrVaultLocked):
		return "Vault is locked. Use 'unlock' first."
	case errors.Is(err, common.ErrVaultNotInitialized):
		return "Vault is not initialized. Use 'init' first."
	case errors.Is(err, cryptox.ErrDecryptionFailed):
		return "Decryption failed: data is corrupted or was written with another key."
	}
	return err.Error()
}

// withSpinner runs fn while a spinner is shown on w. The spinner draws
// nothing when w is not a terminal.
func withSpinner(ctx context.Context, w io.Writer, msg string, fn func(context.Context) error) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg
	s.Start()
	defer s.Stop()
	return fn(ctx)
}
