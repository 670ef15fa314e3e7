package models

// NewTextItem creates a text or key item. ItemType defaults to text/plain.
type NewTextItem struct {
	ParentID   *string
	Name       string
	ItemType   string
	Content    []byte
	Tags       []string
	TotpSecret *string
}

// NewFileItem imports a local file. Name defaults to the file's base name;
// the item type is guessed from the extension.
type NewFileItem struct {
	ParentID   *string
	Name       string
	SourcePath string
	Tags       []string
}

type NewFolder struct {
	ParentID   *string
	Name       string
	FolderType *string
	Tags       []string
}

// ItemUpdate replaces an item's mutable fields. DataPath, FolderType,
// CreatedAt and DeletedAt are kept from the stored item. A nil TotpSecret
// keeps the stored secret; nil Content keeps the payload.
type ItemUpdate struct {
	ID         string
	ParentID   *string
	Name       string
	ItemType   string
	Tags       []string
	Content    []byte
	TotpSecret *string
}

// ListQuery selects one level of the tree. A nil ParentID means the root.
type ListQuery struct {
	ParentID       *string
	TypeFilter     string
	Sort           SortOrder
	IncludeDeleted bool
}

// ExportedItem pairs an item with its decrypted payload.
type ExportedItem struct {
	Item    VaultItem
	Content []byte
}
