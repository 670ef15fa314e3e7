package storage

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/repositories/items"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
)

// renameTags replaces oldTag with newTag, keeping the first position at
// which either appears and dropping later duplicates.
func renameTags(tags []string, oldTag, newTag string) []string {
	out := make([]string, 0, len(tags))
	placed := false
	for _, t := range tags {
		if t == oldTag || t == newTag {
			if !placed {
				out = append(out, newTag)
				placed = true
			}
			continue
		}
		out = append(out, t)
	}
	return out
}

func removeTag(tags []string, tag string) []string {
	return slices.DeleteFunc(slices.Clone(tags), func(t string) bool { return t == tag })
}

// RenameTagInAllItems rewrites the tag lists of every item carrying oldTag.
// Items whose list actually changes get a fresh updated_at. It returns the
// number of items changed.
func (s *Store) RenameTagInAllItems(ctx context.Context, c Cipher, oldTag, newTag string) (int, error) {
	return s.rewriteTags(ctx, c, "rename tag", func(tags []string) []string {
		if !slices.Contains(tags, oldTag) {
			return tags
		}
		return renameTags(tags, oldTag, newTag)
	})
}

// RemoveTagFromAllItems drops tag from every item carrying it.
func (s *Store) RemoveTagFromAllItems(ctx context.Context, c Cipher, tag string) (int, error) {
	return s.rewriteTags(ctx, c, "remove tag", func(tags []string) []string {
		return removeTag(tags, tag)
	})
}

func (s *Store) rewriteTags(ctx context.Context, c Cipher, op string, rewrite func([]string) []string) (int, error) {
	changed := 0
	now := s.nowUTC()

	err := s.withTx(ctx, op, func(ctx context.Context, it *items.SQLiteRepository, _ *settings.SQLiteRepository) error {
		rows, err := it.ListAll(ctx)
		if err != nil {
			return common.StorageError(op, err)
		}
		all, err := decodeRows(c, rows)
		if err != nil {
			return err
		}

		for i := range all {
			item := &all[i]
			next := rewrite(item.Tags)
			if slices.Equal(next, item.Tags) {
				continue
			}
			item.Tags = next
			item.UpdatedAt = now

			row, err := encodeItem(c, item)
			if err != nil {
				return err
			}
			if _, err := it.Update(ctx, row); err != nil {
				return common.StorageError(op, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "tags rewritten", "op", op, "items", changed)
	return changed, nil
}

// AllTags returns the sorted set of tags used by any item.
func (s *Store) AllTags(ctx context.Context, c Cipher) ([]string, error) {
	all, err := s.GetAllItemsRecursive(ctx, c)
	if err != nil {
		return nil, err
	}
	var tags []string
	for i := range all {
		tags = append(tags, all[i].Tags...)
	}
	slices.Sort(tags)
	return slices.Compact(tags), nil
}
