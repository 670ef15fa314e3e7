// Package cli provides the interactive gophvault command-line client.
//
// It opens the vault directory, prompts for the passphrase (or for a new
// one on first use), starts a background auto-lock watcher and runs a
// read-eval-print loop over the vault session.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartAutoLockWatcher and runREPL for details.
package cli
