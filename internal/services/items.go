package services

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/google/uuid"
)

const defaultMimeType = "application/octet-stream"

// AddTextItem stores a text or key item and returns it. The payload is
// written before the row; if the row insert fails the payload is removed.
func (s *VaultSession) AddTextItem(ctx context.Context, in models.NewTextItem) (*models.VaultItem, error) {
	name, err := validateName(in.Name, false)
	if err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	tags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}
	itemType := models.NormalizeItemType(in.ItemType)
	if itemType == "" {
		itemType = models.ItemTypeText
	}
	if itemType == models.ItemTypeFolder {
		return nil, common.NewValidationError("type", "use AddFolder for folders")
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkParent(ctx, in.ParentID); err != nil {
		return nil, err
	}

	now := s.nowUTC()
	item := &models.VaultItem{
		ID:         uuid.NewString(),
		ParentID:   in.ParentID,
		Name:       name,
		DataPath:   uuid.NewString(),
		ItemType:   itemType,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
		TotpSecret: in.TotpSecret,
	}
	if err := s.storeWithPayload(ctx, item, in.Content); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "item added", "item_id", item.ID, "type", item.ItemType)
	return item, nil
}

// AddFileItem imports the file at in.SourcePath. The type is guessed from
// the file extension.
func (s *VaultSession) AddFileItem(ctx context.Context, in models.NewFileItem) (*models.VaultItem, error) {
	if err := validateSourcePath(in.SourcePath); err != nil {
		return nil, err
	}
	src, err := filepath.Abs(in.SourcePath)
	if err == nil {
		src, err = filepath.EvalSymlinks(src)
	}
	if err != nil {
		return nil, common.NewValidationError("path", "invalid file path or file does not exist")
	}
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return nil, common.NewValidationError("path", "not a regular file")
	}

	rawName := in.Name
	if rawName == "" {
		rawName = filepath.Base(src)
	}
	name, err := validateName(rawName, false)
	if err != nil {
		return nil, err
	}
	tags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, common.NewValidationError("path", "file is not readable")
		}
		return nil, common.StorageError("read source file", err)
	}
	defer common.WipeByteArray(content)

	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkParent(ctx, in.ParentID); err != nil {
		return nil, err
	}

	now := s.nowUTC()
	item := &models.VaultItem{
		ID:        uuid.NewString(),
		ParentID:  in.ParentID,
		Name:      name,
		DataPath:  uuid.NewString(),
		ItemType:  guessMimeType(src),
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storeWithPayload(ctx, item, content); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "file item added", "item_id", item.ID, "type", item.ItemType, "size", len(content))
	return item, nil
}

func guessMimeType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return defaultMimeType
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

func (s *VaultSession) AddFolder(ctx context.Context, in models.NewFolder) (*models.VaultItem, error) {
	name, err := validateName(in.Name, true)
	if err != nil {
		return nil, err
	}
	tags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkParent(ctx, in.ParentID); err != nil {
		return nil, err
	}

	now := s.nowUTC()
	item := &models.VaultItem{
		ID:         uuid.NewString(),
		ParentID:   in.ParentID,
		Name:       name,
		ItemType:   models.ItemTypeFolder,
		FolderType: in.FolderType,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.AddItem(ctx, s.engine, item); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "folder added", "item_id", item.ID)
	return item, nil
}

// UpdateItem rewrites an item's metadata and, for text items with new
// content, its payload. New content goes to a fresh payload file and the
// old one is shredded once the row points at the new file.
func (s *VaultSession) UpdateItem(ctx context.Context, in models.ItemUpdate) (*models.VaultItem, error) {
	if in.ID == "" {
		return nil, common.NewValidationError("id", "cannot be empty")
	}
	name, err := validateName(in.Name, false)
	if err != nil {
		return nil, err
	}
	tags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}
	if in.Content != nil {
		if err := validateContent(in.Content); err != nil {
			return nil, err
		}
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.store.GetItem(ctx, s.engine, in.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, common.NewItemNotFoundError(in.ID)
	}

	if existing.IsFolder() {
		if _, err := validateName(name, true); err != nil {
			return nil, err
		}
	}
	if err := s.checkParent(ctx, in.ParentID); err != nil {
		return nil, err
	}
	if err := s.checkNoCycle(ctx, existing.ID, in.ParentID); err != nil {
		return nil, err
	}

	itemType := models.NormalizeItemType(in.ItemType)
	switch {
	case existing.IsFolder():
		itemType = models.ItemTypeFolder
	case itemType == "":
		itemType = existing.ItemType
	case itemType == models.ItemTypeFolder:
		return nil, common.NewValidationError("type", "item cannot become a folder")
	}

	item := *existing
	item.ParentID = in.ParentID
	item.Name = name
	item.ItemType = itemType
	item.Tags = tags
	item.UpdatedAt = s.nowUTC()
	if in.TotpSecret != nil {
		if *in.TotpSecret == "" {
			item.TotpSecret = nil
		} else {
			item.TotpSecret = in.TotpSecret
		}
	}

	if in.Content == nil || !models.IsTextType(itemType) || item.IsFolder() {
		if err := s.store.UpdateItemFields(ctx, s.engine, &item); err != nil {
			return nil, err
		}
		return &item, nil
	}

	item.DataPath = uuid.NewString()
	ct, err := s.engine.Encrypt(in.Content)
	if err != nil {
		return nil, err
	}
	if err := s.store.WriteEncryptedFile(item.DataPath, ct); err != nil {
		return nil, err
	}
	if err := s.store.UpdateItemFields(ctx, s.engine, &item); err != nil {
		s.store.RemovePayload(ctx, item.DataPath)
		return nil, err
	}
	if existing.DataPath != "" {
		s.store.RemovePayload(ctx, existing.DataPath)
	}
	s.logger.Info(ctx, "item updated", "item_id", item.ID)
	return &item, nil
}

func (s *VaultSession) GetItem(ctx context.Context, id string) (*models.VaultItem, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.getItem(ctx, id)
}

// ItemContent decrypts and returns the payload of id.
func (s *VaultSession) ItemContent(ctx context.Context, id string) ([]byte, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.HasPayload() {
		return nil, common.NewValidationError("id", "item has no content")
	}
	return s.store.ReadEncryptedFile(s.engine, item.DataPath)
}

// DeleteItem moves id and its subtree to the trash.
func (s *VaultSession) DeleteItem(ctx context.Context, id string) error {
	release, err := s.lockUnlocked()
	if err != nil {
		return err
	}
	defer release()

	if err := s.requireItem(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteItemAndDescendants(ctx, s.engine, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "item moved to trash", "item_id", id)
	return nil
}

// PermanentlyDeleteItem removes id and its subtree and shreds their payloads.
func (s *VaultSession) PermanentlyDeleteItem(ctx context.Context, id string) error {
	release, err := s.lockUnlocked()
	if err != nil {
		return err
	}
	defer release()

	if err := s.requireItem(ctx, id); err != nil {
		return err
	}
	if err := s.store.PermanentlyDeleteItemAndDescendants(ctx, s.engine, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "item permanently deleted", "item_id", id)
	return nil
}

// PermanentlyDeleteAll empties the trash.
func (s *VaultSession) PermanentlyDeleteAll(ctx context.Context) (int64, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.store.PermanentlyDeleteAllDeletedItems(ctx, s.engine)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "trash emptied", "items", n)
	return n, nil
}

// RestoreItem clears the tombstone of id only. Descendants stay in the
// trash. With toRoot the item is also detached from its parent.
func (s *VaultSession) RestoreItem(ctx context.Context, id string, toRoot bool) error {
	release, err := s.lockUnlocked()
	if err != nil {
		return err
	}
	defer release()

	var ok bool
	if toRoot {
		ok, err = s.store.RestoreItemToRoot(ctx, id)
	} else {
		ok, err = s.store.RestoreItem(ctx, id)
	}
	if err != nil {
		return err
	}
	if !ok {
		return common.NewItemNotFoundError(id)
	}
	s.logger.Info(ctx, "item restored", "item_id", id, "to_root", toRoot)
	return nil
}

// ListItems lists one level of the tree. Items in the trash are left out
// unless q.IncludeDeleted is set.
func (s *VaultSession) ListItems(ctx context.Context, q models.ListQuery) ([]models.VaultItem, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()

	items, err := s.store.GetItems(ctx, s.engine, q.ParentID, q.TypeFilter, q.Sort)
	if err != nil {
		return nil, err
	}
	if q.IncludeDeleted {
		return items, nil
	}
	live := items[:0]
	for _, it := range items {
		if !it.IsDeleted() {
			live = append(live, it)
		}
	}
	return live, nil
}

// ListAllItems returns every item, trashed ones included.
func (s *VaultSession) ListAllItems(ctx context.Context) ([]models.VaultItem, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.store.GetAllItemsRecursive(ctx, s.engine)
}

func (s *VaultSession) ListDeletedItems(ctx context.Context) ([]models.VaultItem, error) {
	release, err := s.lockUnlocked()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.store.GetDeletedItems(ctx, s.engine)
}

// ImportItems adds a batch of text items under parentID and returns how
// many were stored. The whole batch is validated before anything is
// written; a storage failure stops the import part way.
func (s *VaultSession) ImportItems(ctx context.Context, parentID *string, in []models.NewTextItem) (int, error) {
	items := make([]*models.VaultItem, 0, len(in))
	for i := range in {
		name, err := validateName(in[i].Name, false)
		if err != nil {
			return 0, err
		}
		if err := validateContent(in[i].Content); err != nil {
			return 0, err
		}
		tags, err := validateTags(in[i].Tags)
		if err != nil {
			return 0, err
		}
		itemType := models.NormalizeItemType(in[i].ItemType)
		if itemType == "" || itemType == models.ItemTypeFolder {
			itemType = models.ItemTypeKey
		}
		items = append(items, &models.VaultItem{
			ParentID:   parentID,
			Name:       name,
			ItemType:   itemType,
			Tags:       tags,
			TotpSecret: in[i].TotpSecret,
		})
	}

	release, err := s.lockUnlocked()
	if err != nil {
		return 0, err
	}
	defer release()

	if err := s.checkParent(ctx, parentID); err != nil {
		return 0, err
	}

	for i, item := range items {
		now := s.nowUTC()
		item.ID = uuid.NewString()
		item.DataPath = uuid.NewString()
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := s.storeWithPayload(ctx, item, in[i].Content); err != nil {
			return i, err
		}
	}
	s.logger.Info(ctx, "items imported", "items", len(items))
	return len(items), nil
}

// storeWithPayload encrypts content into item.DataPath and inserts the row.
func (s *VaultSession) storeWithPayload(ctx context.Context, item *models.VaultItem, content []byte) error {
	ct, err := s.engine.Encrypt(content)
	if err != nil {
		return err
	}
	if err := s.store.WriteEncryptedFile(item.DataPath, ct); err != nil {
		return err
	}
	if err := s.store.AddItem(ctx, s.engine, item); err != nil {
		s.store.RemovePayload(ctx, item.DataPath)
		return err
	}
	return nil
}

func (s *VaultSession) getItem(ctx context.Context, id string) (*models.VaultItem, error) {
	item, err := s.store.GetItem(ctx, s.engine, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, common.NewItemNotFoundError(id)
	}
	return item, nil
}

func (s *VaultSession) requireItem(ctx context.Context, id string) error {
	ok, err := s.store.ItemExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewItemNotFoundError(id)
	}
	return nil
}

// checkParent accepts nil (root) or the id of an existing folder.
func (s *VaultSession) checkParent(ctx context.Context, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.store.GetItem(ctx, s.engine, *parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return common.NewItemNotFoundError(*parentID)
	}
	if !parent.IsFolder() {
		return common.NewValidationError("parent_id", "parent is not a folder")
	}
	return nil
}

// checkNoCycle rejects moving id below itself or one of its descendants.
func (s *VaultSession) checkNoCycle(ctx context.Context, id string, parentID *string) error {
	seen := map[string]struct{}{}
	for cur := parentID; cur != nil; {
		if *cur == id {
			return common.NewValidationError("parent_id", "item cannot be moved into itself")
		}
		if _, ok := seen[*cur]; ok {
			return nil
		}
		seen[*cur] = struct{}{}
		parent, err := s.store.GetItem(ctx, s.engine, *cur)
		if err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		cur = parent.ParentID
	}
	return nil
}
