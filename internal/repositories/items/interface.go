// Package items persists encrypted vault item rows. Apart from id and
// parent_id every column holds ciphertext produced by the caller; the
// repository never sees plaintext.
package items

import "context"

// Row is one vault_items record. Nil byte slices map to SQL NULL for the
// nullable columns (FolderType, Tags, DeletedAt, TotpSecret).
type Row struct {
	ID         string
	ParentID   *string
	Name       []byte
	ItemType   []byte
	DataPath   []byte
	FolderType []byte
	Tags       []byte
	CreatedAt  []byte
	UpdatedAt  []byte
	DeletedAt  []byte
	TotpSecret []byte
}

type Repository interface {
	Insert(ctx context.Context, row *Row) error
	// Update rewrites every column of an existing row and reports whether it
	// existed.
	Update(ctx context.Context, row *Row) (bool, error)
	// Get returns (nil, nil) when the id is unknown.
	Get(ctx context.Context, id string) (*Row, error)
	// ListByParent returns direct children; a nil parent selects root items.
	ListByParent(ctx context.Context, parentID *string) ([]Row, error)
	ListAll(ctx context.Context) ([]Row, error)
	ListDeleted(ctx context.Context) ([]Row, error)
	ChildIDs(ctx context.Context, parentID string) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]Row, error)
	SetDeletedAt(ctx context.Context, ids []string, deletedAt []byte) error
	// Restore clears deleted_at (and parent_id when toRoot) and reports
	// whether a row changed.
	Restore(ctx context.Context, id string, toRoot bool) (bool, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	// DetachFromDeletedParents moves live rows whose parent is deleted to
	// the root and returns how many moved.
	DetachFromDeletedParents(ctx context.Context) (int64, error)
	DeleteAllDeleted(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}
