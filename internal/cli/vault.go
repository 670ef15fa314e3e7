package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Vault is the session surface the CLI drives. *services.VaultSession
// satisfies it.
type Vault interface {
	Status(ctx context.Context) (models.VaultStatus, error)
	IsUnlocked() bool
	Initialize(ctx context.Context, passphrase []byte, strength cryptox.Strength) error
	Unlock(ctx context.Context, passphrase []byte) error
	Lock(ctx context.Context)
	LockoutStatus(ctx context.Context) (models.LockoutStatus, error)
	BruteForceConfig(ctx context.Context) (models.BruteForceConfig, error)
	SetBruteForceConfig(ctx context.Context, cfg models.BruteForceConfig) error
	ResetFailedAttempts(ctx context.Context) error

	AddTextItem(ctx context.Context, in models.NewTextItem) (*models.VaultItem, error)
	AddFileItem(ctx context.Context, in models.NewFileItem) (*models.VaultItem, error)
	AddFolder(ctx context.Context, in models.NewFolder) (*models.VaultItem, error)
	UpdateItem(ctx context.Context, in models.ItemUpdate) (*models.VaultItem, error)
	GetItem(ctx context.Context, id string) (*models.VaultItem, error)
	ItemContent(ctx context.Context, id string) ([]byte, error)
	DeleteItem(ctx context.Context, id string) error
	PermanentlyDeleteItem(ctx context.Context, id string) error
	PermanentlyDeleteAll(ctx context.Context) (int64, error)
	RestoreItem(ctx context.Context, id string, toRoot bool) error
	ListItems(ctx context.Context, q models.ListQuery) ([]models.VaultItem, error)
	ListAllItems(ctx context.Context) ([]models.VaultItem, error)
	ListDeletedItems(ctx context.Context) ([]models.VaultItem, error)
	ImportItems(ctx context.Context, parentID *string, in []models.NewTextItem) (int, error)

	AllTags(ctx context.Context) ([]string, error)
	RenameTag(ctx context.Context, oldTag, newTag string) (int, error)
	DeleteTag(ctx context.Context, tag string) (int, error)

	RotateMasterKey(ctx context.Context, current, next []byte, strength cryptox.Strength) error
	ExportDecrypted(ctx context.Context, passphrase []byte) ([]models.ExportedItem, error)
	ExportEncrypted(ctx context.Context, w io.Writer) error
	ResetVault(ctx context.Context, passphrase []byte) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error

	Close() error
}
