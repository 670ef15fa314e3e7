//go:build !linux && !darwin

package cryptox

func lockMemory(b []byte) error   { return nil }
func unlockMemory(b []byte) error { return nil }
