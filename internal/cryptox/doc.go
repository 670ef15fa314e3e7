// Package cryptox holds the vault's cryptographic primitives: Argon2id key
// derivation with named strength profiles and an authenticated cipher engine
// that owns the session's master key.
//
// Ciphertext layout produced by Engine.Encrypt:
//
//	nonce (24 bytes) || XChaCha20-Poly1305 ciphertext || tag (16 bytes)
package cryptox
