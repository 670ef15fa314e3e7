package cli

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

func (a *App) password(prompt string) ([]byte, error) {
	return GetPassword(prompt, a.out)
}

// newPassphrase asks for a passphrase twice. The caller wipes the result.
func (a *App) newPassphrase(prompt string) ([]byte, error) {
	p1, err := a.password(prompt)
	if err != nil {
		return nil, err
	}
	p2, err := a.password("Repeat " + prompt)
	if err != nil {
		common.WipeByteArray(p1)
		return nil, err
	}
	defer common.WipeByteArray(p2)
	if !bytes.Equal(p1, p2) {
		common.WipeByteArray(p1)
		return nil, common.NewValidationError("passphrase", "passphrases do not match")
	}
	return p1, nil
}

func (a *App) strengthArg(args []string, fallback string) (cryptox.Strength, error) {
	v := fallback
	if len(args) > 0 {
		v = args[0]
	}
	if v == "" {
		return cryptox.Recommended, nil
	}
	s, err := cryptox.ParseStrength(v)
	if err != nil {
		return "", common.NewValidationError("strength", "expected Fast, Recommended or Paranoid")
	}
	return s, nil
}

func (a *App) Init(ctx context.Context, args []string) error {
	strength, err := a.strengthArg(args, a.config.DefaultStrength)
	if err != nil {
		return err
	}
	pass, err := a.newPassphrase("Master passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	err = withSpinner(ctx, a.out, "Deriving key...", func(ctx context.Context) error {
		return a.vault.Initialize(ctx, pass, strength)
	})
	if err != nil {
		return err
	}
	a.ok("Vault created (%s key derivation) and unlocked.", strength)
	return nil
}

func (a *App) Unlock(ctx context.Context, args []string) error {
	if a.vault.IsUnlocked() {
		fmt.Fprintln(a.out, "Vault is already unlocked.")
		return nil
	}
	// Report an active lockout before asking for the passphrase.
	st, err := a.vault.LockoutStatus(ctx)
	if err != nil {
		return err
	}
	if st.IsLockedOut {
		return &common.LockoutError{RemainingSeconds: st.RemainingSeconds, FailedAttempts: st.FailedAttempts}
	}

	pass, err := a.password("Master passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	err = withSpinner(ctx, a.out, "Unlocking...", func(ctx context.Context) error {
		return a.vault.Unlock(ctx, pass)
	})
	if err != nil {
		return err
	}
	a.ok("Vault unlocked.")
	return nil
}

func (a *App) Lock(ctx context.Context, args []string) error {
	a.vault.Lock(ctx)
	a.ok("Vault locked.")
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	st, err := a.vault.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Vault directory:", a.config.VaultDir)
	if !st.Initialized {
		fmt.Fprintln(a.out, "State:           not initialized")
		return nil
	}
	state := "locked"
	if st.Unlocked {
		state = "unlocked"
	}
	fmt.Fprintln(a.out, "State:          ", state)
	fmt.Fprintln(a.out, "Key derivation: ", st.Strength)

	ls, err := a.vault.LockoutStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Failed attempts: %d/%d\n", ls.FailedAttempts, ls.MaxAttempts)
	if ls.IsLockedOut {
		fmt.Fprintln(a.out, warnText(fmt.Sprintf("Locked out for %d more second(s).", ls.RemainingSeconds)))
	}
	return nil
}

func (a *App) ChangePassphrase(ctx context.Context, args []string) error {
	if !a.vault.IsUnlocked() {
		return common.ErrVaultLocked
	}
	// No argument keeps the vault's current profile.
	var strength cryptox.Strength
	if len(args) > 0 {
		s, err := a.strengthArg(args, "")
		if err != nil {
			return err
		}
		strength = s
	}
	current, err := a.password("Current passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)
	next, err := a.newPassphrase("New passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	err = withSpinner(ctx, a.out, "Re-encrypting vault...", func(ctx context.Context) error {
		return a.vault.RotateMasterKey(ctx, current, next, strength)
	})
	if err != nil {
		return err
	}
	a.ok("Master passphrase changed.")
	return nil
}

// Lockout shows or changes brute-force protection:
//
//	lockout                      show settings and state
//	lockout on <max> <minutes>   enable
//	lockout off                  disable and clear the counter
//	lockout reset                clear the counter
func (a *App) Lockout(ctx context.Context, args []string) error {
	const u = "lockout [on <max> <minutes> | off | reset]"
	if len(args) == 0 {
		cfg, err := a.vault.BruteForceConfig(ctx)
		if err != nil {
			return err
		}
		st, err := a.vault.LockoutStatus(ctx)
		if err != nil {
			return err
		}
		if !cfg.Enabled {
			fmt.Fprintln(a.out, "Brute-force protection is off.")
			return nil
		}
		fmt.Fprintf(a.out, "Brute-force protection is on: %d attempts, %d minute lockout.\n",
			cfg.MaxAttempts, cfg.LockoutDurationMinutes)
		fmt.Fprintf(a.out, "Failed attempts: %d\n", st.FailedAttempts)
		return nil
	}

	switch args[0] {
	case "on":
		if len(args) != 3 {
			return usage(u)
		}
		maxAttempts, err1 := strconv.ParseUint(args[1], 10, 32)
		minutes, err2 := strconv.ParseUint(args[2], 10, 32)
		if err1 != nil || err2 != nil {
			return usage(u)
		}
		cfg := models.BruteForceConfig{
			Enabled:                true,
			MaxAttempts:            uint32(maxAttempts),
			LockoutDurationMinutes: uint32(minutes),
		}
		if err := a.vault.SetBruteForceConfig(ctx, cfg); err != nil {
			return err
		}
		a.ok("Brute-force protection enabled.")
	case "off":
		cfg, err := a.vault.BruteForceConfig(ctx)
		if err != nil {
			return err
		}
		cfg.Enabled = false
		if err := a.vault.SetBruteForceConfig(ctx, cfg); err != nil {
			return err
		}
		a.ok("Brute-force protection disabled.")
	case "reset":
		if err := a.vault.ResetFailedAttempts(ctx); err != nil {
			return err
		}
		a.ok("Failed attempts cleared.")
	default:
		return usage(u)
	}
	return nil
}

func (a *App) Theme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		t, err := a.vault.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Theme:", t)
		return nil
	}
	if err := a.vault.SetTheme(ctx, args[0]); err != nil {
		return err
	}
	a.ok("Theme set to %s.", args[0])
	return nil
}

func (a *App) Reset(ctx context.Context, args []string) error {
	fmt.Fprintln(a.out, warnText("This deletes every item and the master key. It cannot be undone."))
	yes, err := Confirm(a.reader, "Reset the vault?", a.out)
	if err != nil || !yes {
		return err
	}
	pass, err := a.password("Master passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	if err := a.vault.ResetVault(ctx, pass); err != nil {
		return err
	}
	a.ok("Vault reset. Use 'init' to create a new one.")
	return nil
}
