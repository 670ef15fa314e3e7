package common

// File and directory names that make up a vault on disk.
const (
	DatabaseFileName = "vault.db"
	DataDirName      = "data"
	SaltFileName     = "salt"
	VerifyFileName   = "verify"
)

// StagedSuffix marks files written during a master key rotation that have not
// been promoted yet.
const StagedSuffix = ".staged"

// Input limits enforced before any vault operation takes a lock.
const (
	MaxNameLength    = 255
	MaxTagLength     = 50
	MaxTagsPerItem   = 20
	MaxContentLength = 10 * 1024 * 1024
)
