// Package models defines the vault's domain types: items, listing options,
// brute-force settings, and the inputs accepted by the vault session.
package models

import (
	"slices"
	"strings"
	"time"
)

// Well-known item types. Any other MIME type is accepted for file items.
const (
	ItemTypeFolder = "folder"
	ItemTypeText   = "text/plain"
	ItemTypeKey    = "key"

	itemTypeTextAlias = "text"
)

// VaultItem is the decrypted view of one row of the item table. DataPath names
// the payload file under the vault's data directory and is empty for folders.
type VaultItem struct {
	ID         string     `json:"id"`
	ParentID   *string    `json:"parent_id"`
	Name       string     `json:"name"`
	DataPath   string     `json:"data_path"`
	ItemType   string     `json:"type"`
	FolderType *string    `json:"folder_type,omitempty"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	TotpSecret *string    `json:"totp_secret,omitempty"`
}

func (v *VaultItem) IsFolder() bool {
	return v.ItemType == ItemTypeFolder
}

func (v *VaultItem) IsDeleted() bool {
	return v.DeletedAt != nil
}

// HasPayload reports whether a payload file is expected for the item.
func (v *VaultItem) HasPayload() bool {
	return !v.IsFolder() && v.DataPath != ""
}

// HasTag matches a tag exactly.
func (v *VaultItem) HasTag(tag string) bool {
	return slices.Contains(v.Tags, tag)
}

// NormalizeItemType maps the "text" shorthand to text/plain.
func NormalizeItemType(t string) string {
	if t == itemTypeTextAlias {
		return ItemTypeText
	}
	return t
}

// IsTextType reports whether items of type t carry editable text content.
func IsTextType(t string) bool {
	switch t {
	case itemTypeTextAlias, ItemTypeText, ItemTypeKey:
		return true
	}
	return strings.HasPrefix(t, "text/")
}

// StrPtr returns a pointer to a copy of s.
func StrPtr(s string) *string {
	return &s
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
