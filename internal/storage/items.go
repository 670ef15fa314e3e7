package storage

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
)

func (s *Store) AddItem(ctx context.Context, c Cipher, item *models.VaultItem) error {
	row, err := encodeItem(c, item)
	if err != nil {
		return err
	}
	return common.StorageError("add item", s.items.Insert(ctx, row))
}

// UpdateItemFields overwrites every stored field of item.
func (s *Store) UpdateItemFields(ctx context.Context, c Cipher, item *models.VaultItem) error {
	row, err := encodeItem(c, item)
	if err != nil {
		return err
	}
	ok, err := s.items.Update(ctx, row)
	if err != nil {
		return common.StorageError("update item", err)
	}
	if !ok {
		return common.NewItemNotFoundError(item.ID)
	}
	return nil
}

// GetItem returns (nil, nil) when id does not exist.
func (s *Store) GetItem(ctx context.Context, c Cipher, id string) (*models.VaultItem, error) {
	row, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, common.StorageError("get item", err)
	}
	if row == nil {
		return nil, nil
	}
	return decodeItem(c, row)
}

// GetItems lists the direct children of parentID (root when nil), deleted
// ones included, sorted folders-first by order and filtered by type.
func (s *Store) GetItems(ctx context.Context, c Cipher, parentID *string, filter string, order models.SortOrder) ([]models.VaultItem, error) {
	rows, err := s.items.ListByParent(ctx, parentID)
	if err != nil {
		return nil, common.StorageError("list items", err)
	}
	out, err := decodeRows(c, rows)
	if err != nil {
		return nil, err
	}
	models.SortItems(out, order)
	return models.FilterItems(out, filter), nil
}

// GetAllItemsRecursive returns every item regardless of parent or deletion
// state, folders first then by name.
func (s *Store) GetAllItemsRecursive(ctx context.Context, c Cipher) ([]models.VaultItem, error) {
	rows, err := s.items.ListAll(ctx)
	if err != nil {
		return nil, common.StorageError("list all items", err)
	}
	out, err := decodeRows(c, rows)
	if err != nil {
		return nil, err
	}
	models.SortItemsRecursive(out)
	return out, nil
}

// GetDeletedItems returns tombstoned items in whole-vault listing order.
func (s *Store) GetDeletedItems(ctx context.Context, c Cipher) ([]models.VaultItem, error) {
	rows, err := s.items.ListDeleted(ctx)
	if err != nil {
		return nil, common.StorageError("list deleted items", err)
	}
	out, err := decodeRows(c, rows)
	if err != nil {
		return nil, err
	}
	models.SortItemsRecursive(out)
	return out, nil
}

// DeleteItemAndDescendants tombstones id and its whole subtree with one
// shared timestamp. Descendants that were already deleted get the new
// timestamp too.
func (s *Store) DeleteItemAndDescendants(ctx context.Context, c Cipher, id string) error {
	deletedAt, err := encryptTime(c, s.nowUTC())
	if err != nil {
		return err
	}
	return s.withTx(ctx, "delete item", func(ctx context.Context, it *items.SQLiteRepository, _ *settings.SQLiteRepository) error {
		ids, err := items.CollectSubtree(ctx, it, id)
		if err != nil {
			return common.StorageError("delete item", err)
		}
		return common.StorageError("delete item", it.SetDeletedAt(ctx, ids, deletedAt))
	})
}

// RestoreItem clears the tombstone of id only; descendants stay deleted.
func (s *Store) RestoreItem(ctx context.Context, id string) (bool, error) {
	ok, err := s.items.Restore(ctx, id, false)
	return ok, common.StorageError("restore item", err)
}

// RestoreItemToRoot clears the tombstone of id and detaches it from its
// parent.
func (s *Store) RestoreItemToRoot(ctx context.Context, id string) (bool, error) {
	ok, err := s.items.Restore(ctx, id, true)
	return ok, common.StorageError("restore item", err)
}

// RestoreItemAndDescendants clears the tombstones of the whole subtree.
func (s *Store) RestoreItemAndDescendants(ctx context.Context, id string) error {
	return s.withTx(ctx, "restore subtree", func(ctx context.Context, it *items.SQLiteRepository, _ *settings.SQLiteRepository) error {
		ids, err := items.CollectSubtree(ctx, it, id)
		if err != nil {
			return common.StorageError("restore subtree", err)
		}
		return common.StorageError("restore subtree", it.SetDeletedAt(ctx, ids, nil))
	})
}

// PermanentlyDeleteItemAndDescendants removes the subtree rows in one
// transaction and then shreds their payloads. Shred failures are logged.
func (s *Store) PermanentlyDeleteItemAndDescendants(ctx context.Context, c Cipher, id string) error {
	var paths []string
	err := s.withTx(ctx, "purge item", func(ctx context.Context, it *items.SQLiteRepository, _ *settings.SQLiteRepository) error {
		ids, err := items.CollectSubtree(ctx, it, id)
		if err != nil {
			return common.StorageError("purge item", err)
		}
		rows, err := it.GetMany(ctx, ids)
		if err != nil {
			return common.StorageError("purge item", err)
		}
		if paths, err = payloadNames(c, rows); err != nil {
			return err
		}
		return common.StorageError("purge item", it.DeleteByIDs(ctx, ids))
	})
	if err != nil {
		return err
	}
	s.removePayloads(ctx, paths)
	return nil
}

// PermanentlyDeleteAllDeletedItems empties the trash and returns how many
// rows were removed. Live items restored out of a deleted folder are moved
// to the root first, so no live row is left pointing at a purged parent.
func (s *Store) PermanentlyDeleteAllDeletedItems(ctx context.Context, c Cipher) (int64, error) {
	var (
		paths    []string
		n        int64
		detached int64
	)
	err := s.withTx(ctx, "empty trash", func(ctx context.Context, it *items.SQLiteRepository, _ *settings.SQLiteRepository) error {
		rows, err := it.ListDeleted(ctx)
		if err != nil {
			return common.StorageError("empty trash", err)
		}
		if paths, err = payloadNames(c, rows); err != nil {
			return err
		}
		if detached, err = it.DetachFromDeletedParents(ctx); err != nil {
			return common.StorageError("empty trash", err)
		}
		n, err = it.DeleteAllDeleted(ctx)
		return common.StorageError("empty trash", err)
	})
	if err != nil {
		return 0, err
	}
	if detached > 0 {
		s.logger.Info(ctx, "moved restored items to root", "count", detached)
	}
	s.removePayloads(ctx, paths)
	return n, nil
}

func payloadNames(c Cipher, rows []items.Row) ([]string, error) {
	var names []string
	for i := range rows {
		name, err := decryptString(c, rows[i].DataPath)
		if err != nil {
			return nil, err
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) removePayloads(ctx context.Context, names []string) {
	for _, n := range names {
		s.payloads.Remove(ctx, n)
	}
}

// ItemExists reports whether a row with id exists, without decrypting it.
func (s *Store) ItemExists(ctx context.Context, id string) (bool, error) {
	row, err := s.items.Get(ctx, id)
	if err != nil {
		return false, common.StorageError("get item", err)
	}
	return row != nil, nil
}
