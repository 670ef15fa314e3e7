package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(items []models.VaultItem) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].Name
	}
	return out
}

func TestAddTextItem_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	it, err := f.s.AddTextItem(ctx, models.NewTextItem{
		Name:       "  github  ",
		ItemType:   "text",
		Content:    []byte("token"),
		Tags:       []string{"dev", " dev ", "work"},
		TotpSecret: models.StrPtr("JBSWY3DPEHPK3PXP"),
	})
	require.NoError(t, err)
	assert.Equal(t, "github", it.Name)
	assert.Equal(t, models.ItemTypeText, it.ItemType)
	assert.Equal(t, []string{"dev", "work"}, it.Tags)
	assert.NotEqual(t, it.ID, it.DataPath, "payload names are independent of item ids")

	got, err := f.s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(it, got); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}

	content, err := f.s.ItemContent(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "token", string(content))

	raw, err := os.ReadFile(filepath.Join(f.dir, common.DataDirName, it.DataPath))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "token")
}

func TestAddTextItem_Validation(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	tooManyTags := make([]string, common.MaxTagsPerItem+1)
	for i := range tooManyTags {
		tooManyTags[i] = strings.Repeat("t", i+1)
	}

	cases := []struct {
		name string
		in   models.NewTextItem
	}{
		{"empty name", models.NewTextItem{Name: " ", Content: []byte("x")}},
		{"long name", models.NewTextItem{Name: strings.Repeat("n", common.MaxNameLength+1), Content: []byte("x")}},
		{"control char", models.NewTextItem{Name: "a\x00b", Content: []byte("x")}},
		{"empty content", models.NewTextItem{Name: "n"}},
		{"huge content", models.NewTextItem{Name: "n", Content: make([]byte, common.MaxContentLength+1)}},
		{"long tag", models.NewTextItem{Name: "n", Content: []byte("x"), Tags: []string{strings.Repeat("t", common.MaxTagLength+1)}}},
		{"newline tag", models.NewTextItem{Name: "n", Content: []byte("x"), Tags: []string{"a\nb"}}},
		{"too many tags", models.NewTextItem{Name: "n", Content: []byte("x"), Tags: tooManyTags}},
		{"folder type", models.NewTextItem{Name: "n", Content: []byte("x"), ItemType: models.ItemTypeFolder}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.s.AddTextItem(ctx, tc.in)
			require.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
	assert.Zero(t, f.payloadCount(t))
}

func TestAddItem_ParentChecks(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)
	note := addText(t, f.s, nil, "note", "x")

	_, err := f.s.AddFolder(ctx, models.NewFolder{ParentID: models.StrPtr("missing"), Name: "f"})
	require.ErrorIs(t, err, common.ErrItemNotFound)

	_, err = f.s.AddTextItem(ctx, models.NewTextItem{ParentID: &note.ID, Name: "child", Content: []byte("x")})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.s.AddFolder(ctx, models.NewFolder{Name: "a/b"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAddFileItem(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	src := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"a":1}`), 0o600))

	it, err := f.s.AddFileItem(ctx, models.NewFileItem{SourcePath: src, Tags: []string{"docs"}})
	require.NoError(t, err)
	assert.Equal(t, "report.json", it.Name)
	assert.Equal(t, "application/json", it.ItemType)

	content, err := f.s.ItemContent(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(content))

	_, err = f.s.AddFileItem(ctx, models.NewFileItem{SourcePath: filepath.Dir(src) + "/../x"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.s.AddFileItem(ctx, models.NewFileItem{SourcePath: "~/secret"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.s.AddFileItem(ctx, models.NewFileItem{SourcePath: filepath.Join(t.TempDir(), "missing.bin")})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.s.AddFileItem(ctx, models.NewFileItem{SourcePath: t.TempDir()})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "text/html", guessMimeType("/tmp/a.html"))
	assert.Equal(t, "image/png", guessMimeType("/tmp/a.PNG"))
	assert.Equal(t, defaultMimeType, guessMimeType("/tmp/a.unknownext"))
	assert.Equal(t, defaultMimeType, guessMimeType("/tmp/noext"))
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	folder := addFolder(t, f.s, nil, "Folder")
	note := addText(t, f.s, nil, "note", "v1", "a")

	f.clock.Advance(time.Minute)
	updated, err := f.s.UpdateItem(ctx, models.ItemUpdate{
		ID:       note.ID,
		ParentID: &folder.ID,
		Name:     "renamed",
		Tags:     []string{"b"},
		Content:  []byte("v2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, models.ItemTypeText, updated.ItemType, "empty type keeps the stored one")
	assert.True(t, updated.UpdatedAt.After(note.UpdatedAt))
	assert.Equal(t, note.CreatedAt, updated.CreatedAt)
	assert.NotEqual(t, note.DataPath, updated.DataPath)
	assert.Equal(t, 1, f.payloadCount(t), "old payload is shredded")

	content, err := f.s.ItemContent(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	// nil content keeps the payload
	updated, err = f.s.UpdateItem(ctx, models.ItemUpdate{ID: note.ID, ParentID: &folder.ID, Name: "again", TotpSecret: models.StrPtr("S")})
	require.NoError(t, err)
	content, err = f.s.ItemContent(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
	assert.Equal(t, "S", models.Deref(updated.TotpSecret))

	_, err = f.s.UpdateItem(ctx, models.ItemUpdate{ID: "missing", Name: "x"})
	require.ErrorIs(t, err, common.ErrItemNotFound)
	_, err = f.s.UpdateItem(ctx, models.ItemUpdate{ID: note.ID, Name: ""})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUpdateItem_RejectsCycles(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	a := addFolder(t, f.s, nil, "A")
	b := addFolder(t, f.s, &a.ID, "B")

	_, err := f.s.UpdateItem(ctx, models.ItemUpdate{ID: a.ID, ParentID: &b.ID, Name: "A"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.s.UpdateItem(ctx, models.ItemUpdate{ID: a.ID, ParentID: &a.ID, Name: "A"})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	folder, err := f.s.UpdateItem(ctx, models.ItemUpdate{ID: b.ID, Name: "B2", ItemType: "text"})
	require.NoError(t, err)
	assert.True(t, folder.IsFolder(), "folders keep their type")
	assert.Nil(t, folder.ParentID)
}

func TestItemContent_Folder(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)
	folder := addFolder(t, f.s, nil, "F")

	_, err := f.s.ItemContent(ctx, folder.ID)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.s.ItemContent(ctx, "missing")
	require.ErrorIs(t, err, common.ErrItemNotFound)
}

func TestDeleteCascadeAndRestoreAsymmetry(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	a := addFolder(t, f.s, nil, "A")
	b := addFolder(t, f.s, &a.ID, "B")
	c := addText(t, f.s, &b.ID, "C", "payload")

	require.NoError(t, f.s.DeleteItem(ctx, a.ID))
	for _, id := range []string{a.ID, b.ID, c.ID} {
		it, err := f.s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.True(t, it.IsDeleted(), id)
	}

	root, err := f.s.ListItems(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, root)
	root, err = f.s.ListItems(ctx, models.ListQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, root, 1)

	deleted, err := f.s.ListDeletedItems(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, names(deleted))

	require.NoError(t, f.s.RestoreItem(ctx, b.ID, false))
	gotA, _ := f.s.GetItem(ctx, a.ID)
	gotB, _ := f.s.GetItem(ctx, b.ID)
	gotC, _ := f.s.GetItem(ctx, c.ID)
	assert.True(t, gotA.IsDeleted())
	assert.False(t, gotB.IsDeleted())
	assert.Equal(t, a.ID, *gotB.ParentID)
	assert.True(t, gotC.IsDeleted())

	require.NoError(t, f.s.RestoreItem(ctx, c.ID, true))
	gotC, _ = f.s.GetItem(ctx, c.ID)
	assert.False(t, gotC.IsDeleted())
	assert.Nil(t, gotC.ParentID)

	require.ErrorIs(t, f.s.RestoreItem(ctx, "missing", false), common.ErrItemNotFound)
	require.ErrorIs(t, f.s.DeleteItem(ctx, "missing"), common.ErrItemNotFound)
}

func TestPermanentDelete(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	a := addFolder(t, f.s, nil, "A")
	b := addText(t, f.s, &a.ID, "B", "one")
	addText(t, f.s, &a.ID, "C", "two")
	keep := addText(t, f.s, nil, "keep", "three")
	require.Equal(t, 3, f.payloadCount(t))

	require.NoError(t, f.s.PermanentlyDeleteItem(ctx, a.ID))
	_, err := f.s.GetItem(ctx, b.ID)
	require.ErrorIs(t, err, common.ErrItemNotFound)
	assert.Equal(t, 1, f.payloadCount(t))

	require.NoError(t, f.s.DeleteItem(ctx, keep.ID))
	n, err := f.s.PermanentlyDeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, f.payloadCount(t))

	require.ErrorIs(t, f.s.PermanentlyDeleteItem(ctx, a.ID), common.ErrItemNotFound)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	it := addText(t, f.s, nil, "one", "x", "work", "old")
	other := addText(t, f.s, nil, "two", "y", "home")

	f.clock.Advance(time.Hour)
	n, err := f.s.RenameTag(ctx, "old", "work")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, got.Tags)
	assert.True(t, got.UpdatedAt.After(it.UpdatedAt))

	untouched, err := f.s.GetItem(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.UpdatedAt, untouched.UpdatedAt)

	tags, err := f.s.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "work"}, tags)

	n, err = f.s.DeleteTag(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tags, err = f.s.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, tags)

	_, err = f.s.RenameTag(ctx, "work", " ")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestListItems_Order(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)

	addText(t, f.s, nil, "https://zeta.com", "z")
	f.clock.Advance(time.Second)
	addText(t, f.s, nil, "alpha", "a")
	f.clock.Advance(time.Second)
	addFolder(t, f.s, nil, "zz folder")

	got, err := f.s.ListItems(ctx, models.ListQuery{Sort: models.NameAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"zz folder", "alpha", "https://zeta.com"}, names(got))

	got, err = f.s.ListItems(ctx, models.ListQuery{Sort: models.CreatedAtAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"zz folder", "https://zeta.com", "alpha"}, names(got))

	got, err = f.s.ListItems(ctx, models.ListQuery{TypeFilter: "text"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestImportItems(t *testing.T) {
	ctx := context.Background()
	f := newUnlockedSession(t)
	folder := addFolder(t, f.s, nil, "Imported")

	n, err := f.s.ImportItems(ctx, &folder.ID, []models.NewTextItem{
		{Name: "site", Content: []byte("Username: u\n\nPassword: p"), Tags: []string{"csv"}},
		{Name: "other", Content: []byte("Password: q")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.s.ListItems(ctx, models.ListQuery{ParentID: &folder.ID, Sort: models.NameAsc})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ItemTypeKey, got[0].ItemType)

	_, err = f.s.ImportItems(ctx, nil, []models.NewTextItem{{Name: "ok", Content: []byte("x")}, {Name: ""}})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	all, err := f.s.ListAllItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3, "a rejected batch writes nothing")
}
