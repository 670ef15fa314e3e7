package models

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortOrder selects the secondary ordering of a listing. Folders always come
// first regardless of the order.
type SortOrder string

const (
	CreatedAtDesc SortOrder = "created_at_desc"
	CreatedAtAsc  SortOrder = "created_at_asc"
	NameAsc       SortOrder = "name_asc"
	NameDesc      SortOrder = "name_desc"
	UpdatedAtDesc SortOrder = "updated_at_desc"
	UpdatedAtAsc  SortOrder = "updated_at_asc"

	DefaultSortOrder = CreatedAtDesc
)

var sortOrders = []SortOrder{CreatedAtDesc, CreatedAtAsc, NameAsc, NameDesc, UpdatedAtDesc, UpdatedAtAsc}

// ParseSortOrder accepts the constant values; "" yields the default.
func ParseSortOrder(s string) (SortOrder, error) {
	if s == "" {
		return DefaultSortOrder, nil
	}
	for _, o := range sortOrders {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// CleanNameForSorting drops a leading URL scheme and "www." and lower-cases
// the rest, so URL-like names order by host.
func CleanNameForSorting(name string) string {
	n := strings.ToLower(name)
	if s, ok := strings.CutPrefix(n, "https://"); ok {
		n = s
	} else {
		n = strings.TrimPrefix(n, "http://")
	}
	return strings.TrimPrefix(n, "www.")
}

func folderFirst(a, b *VaultItem) int {
	switch af, bf := a.IsFolder(), b.IsFolder(); {
	case af && !bf:
		return -1
	case !af && bf:
		return 1
	}
	return 0
}

func byName(a, b *VaultItem) int {
	return cmp.Compare(CleanNameForSorting(a.Name), CleanNameForSorting(b.Name))
}

// SortItems orders items in place: folders first, then by order.
func SortItems(items []VaultItem, order SortOrder) {
	slices.SortStableFunc(items, func(a, b VaultItem) int {
		if c := folderFirst(&a, &b); c != 0 {
			return c
		}
		switch order {
		case CreatedAtAsc:
			return a.CreatedAt.Compare(b.CreatedAt)
		case NameAsc:
			return byName(&a, &b)
		case NameDesc:
			return byName(&b, &a)
		case UpdatedAtDesc:
			return b.UpdatedAt.Compare(a.UpdatedAt)
		case UpdatedAtAsc:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	})
}

// SortItemsRecursive is the fixed order of whole-vault listings: folders
// first, then cleaned name ascending.
func SortItemsRecursive(items []VaultItem) {
	slices.SortStableFunc(items, func(a, b VaultItem) int {
		if c := folderFirst(&a, &b); c != 0 {
			return c
		}
		return byName(&a, &b)
	})
}

// MatchesTypeFilter reports whether item passes filter. Folders match on
// folder type equality, other items on an item type prefix. An empty filter
// matches everything.
func MatchesTypeFilter(item *VaultItem, filter string) bool {
	if filter == "" {
		return true
	}
	if item.IsFolder() {
		return item.FolderType != nil && *item.FolderType == filter
	}
	return strings.HasPrefix(item.ItemType, filter)
}

// FilterItems returns the items matching filter, preserving order.
func FilterItems(items []VaultItem, filter string) []VaultItem {
	if filter == "" {
		return items
	}
	out := make([]VaultItem, 0, len(items))
	for i := range items {
		if MatchesTypeFilter(&items[i], filter) {
			out = append(out, items[i])
		}
	}
	return out
}
