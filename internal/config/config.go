package config

import (
	"os"
	"path/filepath"
	"time"
)

const appDirName = "gophvault"

// Config holds runtime settings for the gophvault CLI.
type Config struct {
	VaultDir         string
	LogLevel         string
	LogFormat        string
	DefaultStrength  string
	AutoLockInterval time.Duration

	BackupDir      string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
}

// DefaultVaultDir is the per-user config directory, or ./.gophvault when the
// platform does not report one.
func DefaultVaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "." + appDirName
	}
	return filepath.Join(base, appDirName)
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.VaultDir = DefaultVaultDir()
	c.LogLevel = "warn"
	c.LogFormat = "text"
	c.DefaultStrength = "Recommended"
	c.AutoLockInterval = 5 * time.Minute
	c.S3Region = "us-east-1"
}

// S3Enabled reports whether enough is configured to upload backups to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig applies defaults, then the JSON file (if any), then flags.
// args are the command-line arguments without the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
