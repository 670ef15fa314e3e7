// Package config loads runtime configuration for the gophvault CLI.
//
// Sources, later ones overriding earlier ones:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Flags
//
//	-d string   vault directory
//	-l string   log level (debug, info, warn, error)
//	-f string   log format (text, json)
//	-s string   key derivation strength for new vaults (Fast, Recommended, Paranoid)
//	-t int      auto-lock after this many idle seconds (0 disables)
//	-b string   directory for encrypted backups
//	-bucket     S3 bucket for encrypted backups
//	-region     S3 region
//	-endpoint   S3-compatible endpoint URL
//
// # JSON schema
//
// Intervals use timex.Duration, so "5m" and integer nanoseconds both work:
//
//	{
//	  "vault_dir": "/home/me/.config/gophvault",
//	  "log_level": "info",
//	  "log_format": "text",
//	  "default_strength": "Recommended",
//	  "auto_lock_interval": "5m",
//	  "backup_dir": "/mnt/backup",
//	  "s3_bucket": "vault-backups",
//	  "s3_region": "eu-central-1",
//	  "s3_base_endpoint": "http://127.0.0.1:9000",
//	  "s3_access_key": "...",
//	  "s3_secret_key": "..."
//	}
//
// S3 credentials are only read from the JSON file; when absent the AWS
// default credential chain is used.
package config
