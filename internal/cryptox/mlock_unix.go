//go:build linux || darwin

package cryptox

import "golang.org/x/sys/unix"

// lockMemory keeps b out of swap. Failure (for example RLIMIT_MEMLOCK) is
// tolerated by callers.
func lockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func unlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
