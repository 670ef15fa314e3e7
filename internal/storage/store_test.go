package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/repositories/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, b byte) *cryptox.Engine {
	t.Helper()
	e := cryptox.NewEngine()
	require.NoError(t, e.Unlock(bytes.Repeat([]byte{b}, cryptox.KeySize)))
	t.Cleanup(e.Lock)
	return e
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(context.Background(), dir, logging.NewNop(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestStore(t *testing.T) (*Store, *cryptox.Engine) {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "vault")), newEngine(t, 1)
}

func addItem(t *testing.T, s *Store, c Cipher, id string, parent *string, typ string, tags ...string) *models.VaultItem {
	t.Helper()
	it := &models.VaultItem{
		ID:        id,
		ParentID:  parent,
		Name:      "item " + id,
		ItemType:  typ,
		Tags:      tags,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if typ != models.ItemTypeFolder {
		it.DataPath = id
		ct, err := c.Encrypt([]byte("content of " + id))
		require.NoError(t, err)
		require.NoError(t, s.WriteEncryptedFile(id, ct))
	}
	require.NoError(t, s.AddItem(context.Background(), c, it))
	return it
}

func mustGet(t *testing.T, s *Store, c Cipher, id string) *models.VaultItem {
	t.Helper()
	it, err := s.GetItem(context.Background(), c, id)
	require.NoError(t, err)
	require.NotNil(t, it, id)
	return it
}

func TestOpen_CreatesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	s := openStore(t, dir)

	for _, p := range []string{dir, filepath.Join(dir, common.DataDirName), filepath.Join(dir, common.DatabaseFileName)} {
		fi, err := os.Stat(p)
		require.NoError(t, err, p)
		if runtime.GOOS != "windows" {
			if fi.IsDir() {
				assert.Equal(t, os.FileMode(0o700), fi.Mode().Perm(), p)
			} else {
				assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), p)
			}
		}
	}

	ok, err := s.IsInitialized()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, dir, s.Dir())
}

func TestOpen_MigrationFailure(t *testing.T) {
	orig := migrate
	t.Cleanup(func() { migrate = orig })
	boom := errors.New("boom")
	migrate = func(context.Context, *sql.DB) error { return boom }

	_, err := Open(context.Background(), t.TempDir(), logging.NewNop())
	require.ErrorIs(t, err, common.ErrStorage)
	require.ErrorIs(t, err, boom)
}

func TestInitializeAndBoundaryFiles(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	_, err := s.Salt()
	require.ErrorIs(t, err, common.ErrVaultNotInitialized)

	require.NoError(t, s.Initialize(ctx, []byte("salt-bytes"), cryptox.Paranoid))
	ok, err := s.IsInitialized()
	require.NoError(t, err)
	assert.False(t, ok, "verify file still missing")

	tok, err := c.Encrypt(cryptox.VerificationToken())
	require.NoError(t, err)
	require.NoError(t, s.StoreVerificationToken(tok))

	ok, err = s.IsInitialized()
	require.NoError(t, err)
	assert.True(t, ok)

	salt, err := s.Salt()
	require.NoError(t, err)
	assert.Equal(t, []byte("salt-bytes"), salt)

	strength, err := s.KeyDerivationStrength(ctx)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Paranoid, strength)

	cfg, err := s.BruteForceConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBruteForceConfig(), cfg)

	n, err := s.FailedLoginAttempts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	last, err := s.LastFailedAttempt(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSettingsAccessors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	strength, err := s.KeyDerivationStrength(ctx)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Recommended, strength, "missing strength reads as Recommended")

	require.NoError(t, s.settings.Set(ctx, settings.KeyKDFStrength, []byte("Ludicrous")))
	strength, err = s.KeyDerivationStrength(ctx)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Recommended, strength)

	cfg := models.BruteForceConfig{Enabled: false, MaxAttempts: 3, LockoutDurationMinutes: 10}
	require.NoError(t, s.SetBruteForceConfig(ctx, cfg))
	got, err := s.BruteForceConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.NoError(t, s.settings.Set(ctx, settings.KeyBruteForceConfig, []byte("{not json")))
	got, err = s.BruteForceConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBruteForceConfig(), got)

	require.NoError(t, s.SetFailedLoginAttempts(ctx, 4))
	n, err := s.FailedLoginAttempts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SetLastFailedAttempt(ctx, &ts))
	last, err := s.LastFailedAttempt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, ts.Equal(*last))
	require.NoError(t, s.SetLastFailedAttempt(ctx, nil))
	last, err = s.LastFailedAttempt(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	theme, err := s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
	require.NoError(t, s.SetTheme(ctx, "light"))
	theme, err = s.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "light", theme)
}

func TestLockoutSettings_UnreadableValuesKeepLockout(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	cfg := models.BruteForceConfig{Enabled: true, MaxAttempts: 7, LockoutDurationMinutes: 5}
	require.NoError(t, s.SetBruteForceConfig(ctx, cfg))

	require.NoError(t, s.settings.Set(ctx, settings.KeyFailedAttempts, []byte("many")))
	n, err := s.FailedLoginAttempts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	require.NoError(t, s.settings.Set(ctx, settings.KeyLastFailedAttempt, []byte("yesterday-ish")))
	last, err := s.LastFailedAttempt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, testNow.Equal(*last))

	raw, err := s.settings.Get(ctx, settings.KeyLastFailedAttempt)
	require.NoError(t, err)
	assert.Equal(t, testNow.Format(time.RFC3339), string(raw), "repaired value is persisted")
}

func TestItemRoundTripIsEncryptedAtRest(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	in := &models.VaultItem{
		ID:         "id-1",
		ParentID:   models.StrPtr("folder-1"),
		Name:       "very secret name",
		DataPath:   "id-1",
		ItemType:   models.ItemTypeKey,
		Tags:       []string{"work", "mail"},
		CreatedAt:  testNow,
		UpdatedAt:  testNow.Add(time.Minute),
		TotpSecret: models.StrPtr("JBSWY3DPEHPK3PXP"),
	}
	require.NoError(t, s.AddItem(ctx, c, in))

	got := mustGet(t, s, c, "id-1")
	assert.Equal(t, in, got)

	var name []byte
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT name FROM vault_items WHERE id = ?`, "id-1").Scan(&name))
	assert.False(t, bytes.Contains(name, []byte("secret")))

	missing, err := s.GetItem(ctx, c, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.GetItem(ctx, newEngine(t, 2), "id-1")
	require.ErrorIs(t, err, cryptox.ErrDecryptionFailed)
}

func TestUpdateItemFields(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	it := addItem(t, s, c, "a", nil, models.ItemTypeText)
	it.Name = "renamed"
	it.Tags = nil
	require.NoError(t, s.UpdateItemFields(ctx, c, it))

	got := mustGet(t, s, c, "a")
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, []string{}, got.Tags)

	err := s.UpdateItemFields(ctx, c, &models.VaultItem{ID: "ghost", CreatedAt: testNow, UpdatedAt: testNow})
	require.ErrorIs(t, err, common.ErrItemNotFound)
}

func TestGetItems_OrderingAndFilter(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	z := addItem(t, s, c, "z", nil, models.ItemTypeText)
	z.Name = "https://zeta.com"
	require.NoError(t, s.UpdateItemFields(ctx, c, z))
	a := addItem(t, s, c, "a", nil, models.ItemTypeText)
	a.Name = "alpha"
	require.NoError(t, s.UpdateItemFields(ctx, c, a))
	f := addItem(t, s, c, "f", nil, models.ItemTypeFolder)
	f.Name = "zzz folder"
	f.FolderType = models.StrPtr("logins")
	require.NoError(t, s.UpdateItemFields(ctx, c, f))
	addItem(t, s, c, "child", models.StrPtr("f"), "image/png")

	got, err := s.GetItems(ctx, c, nil, "", models.NameAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "a", "z"}, itemIDs(got))

	got, err = s.GetItems(ctx, c, nil, "text", models.NameAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z"}, itemIDs(got))

	got, err = s.GetItems(ctx, c, nil, "logins", models.NameAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, itemIDs(got))

	got, err = s.GetItems(ctx, c, models.StrPtr("f"), "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, itemIDs(got))

	all, err := s.GetAllItemsRecursive(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "a", "child", "z"}, itemIDs(all))
}

func TestDeleteCascadeAndRestoreAsymmetry(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	// F -> {X, G -> Y}
	addItem(t, s, c, "F", nil, models.ItemTypeFolder)
	addItem(t, s, c, "X", models.StrPtr("F"), models.ItemTypeText)
	addItem(t, s, c, "G", models.StrPtr("F"), models.ItemTypeFolder)
	addItem(t, s, c, "Y", models.StrPtr("G"), models.ItemTypeText)
	addItem(t, s, c, "other", nil, models.ItemTypeText)

	require.NoError(t, s.DeleteItemAndDescendants(ctx, c, "F"))

	for _, id := range []string{"F", "X", "G", "Y"} {
		it := mustGet(t, s, c, id)
		require.NotNil(t, it.DeletedAt, id)
		assert.True(t, testNow.Equal(*it.DeletedAt), id)
	}
	assert.Nil(t, mustGet(t, s, c, "other").DeletedAt)

	deleted, err := s.GetDeletedItems(ctx, c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"F", "X", "G", "Y"}, itemIDs(deleted))

	ok, err := s.RestoreItem(ctx, "F")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, mustGet(t, s, c, "F").DeletedAt)
	for _, id := range []string{"X", "G", "Y"} {
		assert.NotNil(t, mustGet(t, s, c, id).DeletedAt, "restore must not cascade: %s", id)
	}

	ok, err = s.RestoreItemToRoot(ctx, "Y")
	require.NoError(t, err)
	assert.True(t, ok)
	y := mustGet(t, s, c, "Y")
	assert.Nil(t, y.DeletedAt)
	assert.Nil(t, y.ParentID)

	require.NoError(t, s.RestoreItemAndDescendants(ctx, "F"))
	for _, id := range []string{"X", "G"} {
		assert.Nil(t, mustGet(t, s, c, id).DeletedAt, id)
	}

	ok, err = s.RestoreItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermanentDeleteShredsPayloads(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	addItem(t, s, c, "F", nil, models.ItemTypeFolder)
	addItem(t, s, c, "X", models.StrPtr("F"), models.ItemTypeText)
	addItem(t, s, c, "keep", nil, models.ItemTypeText)

	require.NoError(t, s.PermanentlyDeleteItemAndDescendants(ctx, c, "F"))

	for _, id := range []string{"F", "X"} {
		it, err := s.GetItem(ctx, c, id)
		require.NoError(t, err)
		assert.Nil(t, it, id)
	}
	_, err := os.Stat(filepath.Join(s.Dir(), common.DataDirName, "X"))
	assert.True(t, os.IsNotExist(err))

	pt, err := s.ReadEncryptedFile(c, "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("content of keep"), pt)
}

func TestPermanentlyDeleteAllDeletedItems(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	addItem(t, s, c, "a", nil, models.ItemTypeText)
	addItem(t, s, c, "b", nil, models.ItemTypeText)
	require.NoError(t, s.DeleteItemAndDescendants(ctx, c, "a"))

	n, err := s.PermanentlyDeleteAllDeletedItems(ctx, c)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := s.GetAllItemsRecursive(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, itemIDs(all))

	_, err = s.ReadEncryptedFile(c, "a")
	require.ErrorIs(t, err, common.ErrStorage)

	n, err = s.PermanentlyDeleteAllDeletedItems(ctx, c)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPermanentlyDeleteAllDeletedItems_MovesRestoredChildrenToRoot(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	// A -> {B, C}
	addItem(t, s, c, "A", nil, models.ItemTypeFolder)
	addItem(t, s, c, "B", models.StrPtr("A"), models.ItemTypeText)
	addItem(t, s, c, "C", models.StrPtr("A"), models.ItemTypeText)
	require.NoError(t, s.DeleteItemAndDescendants(ctx, c, "A"))

	ok, err := s.RestoreItem(ctx, "B")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", *mustGet(t, s, c, "B").ParentID)

	n, err := s.PermanentlyDeleteAllDeletedItems(ctx, c)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	b := mustGet(t, s, c, "B")
	assert.Nil(t, b.ParentID)
	assert.Nil(t, b.DeletedAt)

	roots, err := s.GetItems(ctx, c, nil, "", models.NameAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, itemIDs(roots))

	pt, err := s.ReadEncryptedFile(c, "B")
	require.NoError(t, err)
	assert.Equal(t, []byte("content of B"), pt)
}

func TestPermanentlyDeleteItemAndDescendants_TakesLiveDescendants(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	addItem(t, s, c, "A", nil, models.ItemTypeFolder)
	addItem(t, s, c, "B", models.StrPtr("A"), models.ItemTypeText)
	require.NoError(t, s.DeleteItemAndDescendants(ctx, c, "A"))
	_, err := s.RestoreItem(ctx, "B")
	require.NoError(t, err)

	require.NoError(t, s.PermanentlyDeleteItemAndDescendants(ctx, c, "A"))

	all, err := s.GetAllItemsRecursive(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRenameTag(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	addItem(t, s, c, "both", nil, models.ItemTypeText, "a", "b")
	addItem(t, s, c, "old", nil, models.ItemTypeText, "x", "a")
	addItem(t, s, c, "none", nil, models.ItemTypeText, "x")

	later := testNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	n, err := s.RenameTagInAllItems(ctx, c, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	both := mustGet(t, s, c, "both")
	assert.Equal(t, []string{"b"}, both.Tags, "rename into an existing tag must not duplicate")
	assert.True(t, later.Equal(both.UpdatedAt))

	assert.Equal(t, []string{"x", "b"}, mustGet(t, s, c, "old").Tags)

	none := mustGet(t, s, c, "none")
	assert.Equal(t, []string{"x"}, none.Tags)
	assert.True(t, testNow.Equal(none.UpdatedAt), "untouched items keep updated_at")

	tags, err := s.AllTags(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "x"}, tags)
}

func TestRemoveTag(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	addItem(t, s, c, "1", nil, models.ItemTypeText, "a", "b", "a")
	addItem(t, s, c, "2", nil, models.ItemTypeText, "b")

	n, err := s.RemoveTagFromAllItems(ctx, c, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b"}, mustGet(t, s, c, "1").Tags)

	n, err = s.RemoveTagFromAllItems(ctx, c, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRenameTagsHelper(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, renameTags([]string{"a", "c", "b"}, "a", "b"))
	assert.Equal(t, []string{"c", "n"}, renameTags([]string{"c", "o"}, "o", "n"))
	assert.Equal(t, []string{"n"}, renameTags([]string{"o", "o"}, "o", "n"))
}

func TestReset(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, []byte("salt"), cryptox.Fast))
	tok, err := c.Encrypt(cryptox.VerificationToken())
	require.NoError(t, err)
	require.NoError(t, s.StoreVerificationToken(tok))
	addItem(t, s, c, "a", nil, models.ItemTypeText)

	require.NoError(t, s.Reset(ctx))

	ok, err := s.IsInitialized()
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.GetAllItemsRecursive(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, all)

	entries, err := os.ReadDir(filepath.Join(s.Dir(), common.DataDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)

	m, err := s.settings.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)

	// the schema survives: the store is usable again
	addItem(t, s, c, "b", nil, models.ItemTypeText)
}

func TestArchive(t *testing.T) {
	s, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, []byte("salt"), cryptox.Fast))
	tok, err := c.Encrypt(cryptox.VerificationToken())
	require.NoError(t, err)
	require.NoError(t, s.StoreVerificationToken(tok))
	addItem(t, s, c, "a", nil, models.ItemTypeText)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "salt.staged"), []byte("x"), 0o600))

	var buf bytes.Buffer
	require.NoError(t, s.Archive(ctx, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		assert.Equal(t, zip.Store, f.Method)
	}
	assert.True(t, names["vault.db"])
	assert.True(t, names["salt"])
	assert.True(t, names["verify"])
	assert.True(t, names["data/a"])
	assert.False(t, names["salt.staged"])
}

func itemIDs(items []models.VaultItem) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}
