package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/backup"
	"github.com/dmitrijs2005/gophvault/internal/config"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/services"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

var _ Vault = (*services.VaultSession)(nil)

type App struct {
	config *config.Config
	vault  Vault
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time

	// lastActivity is the unix-nano time of the last REPL command.
	lastActivity atomic.Int64
	// sinks builds the backup destinations; swapped in tests.
	sinks func(ctx context.Context) ([]backup.Sink, error)
}

// NewApp opens the vault directory from c and wraps it in a session.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	st, err := storage.Open(ctx, c.VaultDir, logger)
	if err != nil {
		return nil, fmt.Errorf("error opening vault: %w", err)
	}
	session := services.NewVaultSession(st, logger)
	return newApp(c, session, logger, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, v Vault, logger logging.Logger, in io.Reader, out io.Writer) *App {
	a := &App{
		config: c,
		vault:  v,
		logger: logger,
		reader: bufio.NewReader(in),
		out:    out,
		now:    time.Now,
	}
	a.sinks = a.configuredSinks
	a.touch()
	return a
}

// Run greets the user, unlocks or creates the vault, starts the auto-lock
// watcher and runs the REPL until exit. The vault is closed on return.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.vault.Close(); err != nil {
			a.logger.Error(ctx, "error closing vault", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to gophvault (type 'help' for commands)")

	st, err := a.vault.Status(ctx)
	if err != nil {
		return err
	}
	if st.Initialized {
		a.report(a.Unlock(ctx, nil))
	} else {
		fmt.Fprintln(a.out, "No vault found at", a.config.VaultDir)
		a.report(a.Init(ctx, nil))
	}

	go a.StartAutoLockWatcher(ctx, a.config.AutoLockInterval)

	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) isUnlocked() bool {
	return a.vault.IsUnlocked()
}

func (a *App) touch() {
	a.lastActivity.Store(a.now().UnixNano())
}

func (a *App) status() string {
	if a.vault.IsUnlocked() {
		return "unlocked"
	}
	return "locked"
}

// report prints err for the user; nil prints nothing.
func (a *App) report(err error) {
	if err != nil {
		fmt.Fprintln(a.out, errorText("error:"), describeError(err))
	}
}

func (a *App) ok(format string, args ...any) {
	fmt.Fprintln(a.out, successText("✓"), fmt.Sprintf(format, args...))
}

func (a *App) configuredSinks(ctx context.Context) ([]backup.Sink, error) {
	var sinks []backup.Sink
	if a.config.BackupDir != "" {
		sinks = append(sinks, backup.NewDirSink(a.config.BackupDir))
	}
	if a.config.S3Enabled() {
		s3, err := backup.NewS3Sink(ctx, backup.S3Options{
			Bucket:       a.config.S3Bucket,
			Region:       a.config.S3Region,
			BaseEndpoint: a.config.S3BaseEndpoint,
			AccessKey:    a.config.S3AccessKey,
			SecretKey:    a.config.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

// StartAutoLockWatcher locks the vault once no command has run for idle.
// It returns when ctx is done. A non-positive idle disables it.
func (a *App) StartAutoLockWatcher(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(watchPeriod(idle))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.lockIfIdle(ctx, idle)
		case <-ctx.Done():
			return
		}
	}
}

func watchPeriod(idle time.Duration) time.Duration {
	p := idle / 4
	if p < 100*time.Millisecond {
		p = 100 * time.Millisecond
	}
	if p > 15*time.Second {
		p = 15 * time.Second
	}
	return p
}

// lockIfIdle reports whether it locked the vault.
func (a *App) lockIfIdle(ctx context.Context, idle time.Duration) bool {
	if !a.vault.IsUnlocked() {
		return false
	}
	last := time.Unix(0, a.lastActivity.Load())
	if a.now().Sub(last) < idle {
		return false
	}
	a.vault.Lock(ctx)
	a.logger.Info(ctx, "vault auto-locked", "idle", idle)
	printlnFn()
	printlnFn(warnText("Vault locked after inactivity."))
	return true
}
