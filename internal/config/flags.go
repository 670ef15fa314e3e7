package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

var knownFlags = []string{"-d", "-l", "-f", "-s", "-t", "-b", "-bucket", "-region", "-endpoint"}

func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("gophvault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.VaultDir, "d", cfg.VaultDir, "vault directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text or json)")
	fs.StringVar(&cfg.DefaultStrength, "s", cfg.DefaultStrength, "key derivation strength for new vaults")
	autoLock := fs.Int("t", int(cfg.AutoLockInterval.Seconds()), "auto-lock interval in seconds (0 disables)")
	fs.StringVar(&cfg.BackupDir, "b", cfg.BackupDir, "backup directory")
	fs.StringVar(&cfg.S3Bucket, "bucket", cfg.S3Bucket, "S3 bucket for backups")
	fs.StringVar(&cfg.S3Region, "region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "endpoint", cfg.S3BaseEndpoint, "S3-compatible endpoint")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *autoLock < 0 {
		return fmt.Errorf("parse flags: negative auto-lock interval %d", *autoLock)
	}

	cfg.AutoLockInterval = time.Duration(*autoLock) * time.Second
	return nil
}
