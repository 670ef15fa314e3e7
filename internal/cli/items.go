package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

const (
	shortIDLen = 8
	rootRef    = "/"
)

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// resolveID expands an id prefix to the full id of exactly one item.
func (a *App) resolveID(ctx context.Context, ref string) (string, error) {
	items, err := a.vault.ListAllItems(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, it := range items {
		if it.ID == ref {
			return it.ID, nil
		}
		if strings.HasPrefix(it.ID, ref) {
			matches = append(matches, it.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", common.NewItemNotFoundError(ref)
	case 1:
		return matches[0], nil
	}
	return "", common.NewValidationError("id", fmt.Sprintf("prefix %q matches %d items", ref, len(matches)))
}

// resolveParent maps "" and "/" to the root.
func (a *App) resolveParent(ctx context.Context, ref string) (*string, error) {
	if ref == "" || ref == rootRef {
		return nil, nil
	}
	id, err := a.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (a *App) printItems(items []models.VaultItem, depth map[string]int) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTAGS\tUPDATED")
	for _, it := range items {
		name := it.Name
		if depth != nil {
			name = strings.Repeat("  ", depth[it.ID]) + name
		}
		if it.IsFolder() {
			name += "/"
		}
		if it.IsDeleted() {
			name += " " + dimText("(deleted)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(it.ID), name, it.ItemType,
			strings.Join(it.Tags, ","), it.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	fmt.Fprintf(a.out, "%d item(s)\n", len(items))
}

func (a *App) List(ctx context.Context, args []string) error {
	const u = "ls [-type T] [-sort S] [-deleted] [folder]"
	var (
		typeFilter, sortBy string
		deleted            bool
	)
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&typeFilter, "type", "", "item type prefix or folder type")
	fs.StringVar(&sortBy, "sort", "", "sort order")
	fs.BoolVar(&deleted, "deleted", false, "include deleted items")
	if err := fs.Parse(args); err != nil || fs.NArg() > 1 {
		return usage(u)
	}
	order, err := models.ParseSortOrder(sortBy)
	if err != nil {
		return common.NewValidationError("sort", err.Error())
	}
	parent, err := a.resolveParent(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	items, err := a.vault.ListItems(ctx, models.ListQuery{
		ParentID:       parent,
		TypeFilter:     typeFilter,
		Sort:           order,
		IncludeDeleted: deleted,
	})
	if err != nil {
		return err
	}
	a.printItems(items, nil)
	return nil
}

// Tree prints live items indented under their folders.
func (a *App) Tree(ctx context.Context, args []string) error {
	all, err := a.vault.ListAllItems(ctx)
	if err != nil {
		return err
	}
	children := make(map[string][]models.VaultItem)
	for _, it := range all {
		if it.IsDeleted() {
			continue
		}
		children[models.Deref(it.ParentID)] = append(children[models.Deref(it.ParentID)], it)
	}

	var (
		ordered []models.VaultItem
		depth   = make(map[string]int)
		walk    func(parent string, d int)
	)
	walk = func(parent string, d int) {
		for _, it := range children[parent] {
			if _, seen := depth[it.ID]; seen {
				continue
			}
			depth[it.ID] = d
			ordered = append(ordered, it)
			walk(it.ID, d+1)
		}
	}
	walk("", 0)
	a.printItems(ordered, depth)
	return nil
}

func (a *App) Trash(ctx context.Context, args []string) error {
	items, err := a.vault.ListDeletedItems(ctx)
	if err != nil {
		return err
	}
	a.printItems(items, nil)
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("show <id>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	it, err := a.vault.GetItem(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "ID:     ", it.ID)
	fmt.Fprintln(a.out, "Name:   ", it.Name)
	fmt.Fprintln(a.out, "Type:   ", it.ItemType)
	if len(it.Tags) > 0 {
		fmt.Fprintln(a.out, "Tags:   ", strings.Join(it.Tags, ", "))
	}
	fmt.Fprintln(a.out, "Created:", it.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(a.out, "Updated:", it.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if it.IsDeleted() {
		fmt.Fprintln(a.out, "Deleted:", it.DeletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if it.TotpSecret != nil {
		fmt.Fprintln(a.out, "TOTP:    configured")
	}
	if it.IsFolder() {
		return nil
	}

	content, err := a.vault.ItemContent(ctx, id)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(content)
	if !models.IsTextType(it.ItemType) || !utf8.Valid(content) {
		fmt.Fprintf(a.out, "Content: %d bytes (use 'save' to write it to a file)\n", len(content))
		return nil
	}
	fmt.Fprintln(a.out, "--")
	fmt.Fprintln(a.out, string(content))
	return nil
}

func (a *App) Save(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("save <id> <path>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	content, err := a.vault.ItemContent(ctx, id)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(content)
	if err := filex.WriteFileAtomic(args[1], content); err != nil {
		return err
	}
	a.ok("Saved %d bytes to %s.", len(content), args[1])
	return nil
}

func (a *App) readNameAndTags() (string, []string, error) {
	name, err := GetSimpleText(a.reader, "Name", a.out)
	if err != nil {
		return "", nil, err
	}
	tags, err := GetTags(a.reader, a.out)
	if err != nil {
		return "", nil, err
	}
	return name, tags, nil
}

func (a *App) AddNote(ctx context.Context, args []string) error {
	parent, err := a.resolveParent(ctx, argAt(args, 0))
	if err != nil {
		return err
	}
	name, tags, err := a.readNameAndTags()
	if err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Content", a.out)
	if err != nil {
		return err
	}
	it, err := a.vault.AddTextItem(ctx, models.NewTextItem{
		ParentID: parent,
		Name:     name,
		ItemType: models.ItemTypeText,
		Content:  []byte(text),
		Tags:     tags,
	})
	if err != nil {
		return err
	}
	a.ok("Note %s added.", shortID(it.ID))
	return nil
}

func (a *App) AddKey(ctx context.Context, args []string) error {
	parent, err := a.resolveParent(ctx, argAt(args, 0))
	if err != nil {
		return err
	}
	name, tags, err := a.readNameAndTags()
	if err != nil {
		return err
	}
	secret, err := a.password("Secret")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	in := models.NewTextItem{
		ParentID: parent,
		Name:     name,
		ItemType: models.ItemTypeKey,
		Content:  secret,
		Tags:     tags,
	}
	totp, err := GetSimpleText(a.reader, "TOTP secret (empty for none)", a.out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if totp != "" {
		in.TotpSecret = &totp
	}
	it, err := a.vault.AddTextItem(ctx, in)
	if err != nil {
		return err
	}
	a.ok("Key %s added.", shortID(it.ID))
	return nil
}

func (a *App) AddFile(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("addfile <path> [folder]")
	}
	parent, err := a.resolveParent(ctx, argAt(args, 1))
	if err != nil {
		return err
	}
	name, err := GetSimpleText(a.reader, "Name (empty for the file name)", a.out)
	if err != nil {
		return err
	}
	tags, err := GetTags(a.reader, a.out)
	if err != nil {
		return err
	}
	it, err := a.vault.AddFileItem(ctx, models.NewFileItem{
		ParentID:   parent,
		Name:       name,
		SourcePath: args[0],
		Tags:       tags,
	})
	if err != nil {
		return err
	}
	a.ok("File %s added as %s (%s).", it.Name, shortID(it.ID), it.ItemType)
	return nil
}

func (a *App) Mkdir(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("mkdir <name> [parent]")
	}
	parent, err := a.resolveParent(ctx, argAt(args, 1))
	if err != nil {
		return err
	}
	it, err := a.vault.AddFolder(ctx, models.NewFolder{ParentID: parent, Name: args[0]})
	if err != nil {
		return err
	}
	a.ok("Folder %s created.", shortID(it.ID))
	return nil
}

// Edit prompts for each field; an empty answer keeps the current value and
// "-" clears the tags.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("edit <id>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	it, err := a.vault.GetItem(ctx, id)
	if err != nil {
		return err
	}

	upd := models.ItemUpdate{
		ID:       it.ID,
		ParentID: it.ParentID,
		Name:     it.Name,
		ItemType: it.ItemType,
		Tags:     it.Tags,
	}

	name, err := GetSimpleText(a.reader, fmt.Sprintf("Name [%s]", it.Name), a.out)
	if err != nil {
		return err
	}
	if name != "" {
		upd.Name = name
	}

	tags, err := GetSimpleText(a.reader, fmt.Sprintf("Tags [%s] ('-' clears)", strings.Join(it.Tags, ",")), a.out)
	if err != nil {
		return err
	}
	switch tags {
	case "":
	case "-":
		upd.Tags = nil
	default:
		upd.Tags = splitList(tags)
	}

	if !it.IsFolder() && models.IsTextType(it.ItemType) {
		text, err := GetMultiline(a.reader, "New content (empty keeps the current content)", a.out)
		if err != nil {
			return err
		}
		if text != "" {
			upd.Content = []byte(text)
		}
	}

	if _, err := a.vault.UpdateItem(ctx, upd); err != nil {
		return err
	}
	a.ok("Item %s updated.", shortID(it.ID))
	return nil
}

func (a *App) Move(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("mv <id> <folder|/>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	parent, err := a.resolveParent(ctx, args[1])
	if err != nil {
		return err
	}
	it, err := a.vault.GetItem(ctx, id)
	if err != nil {
		return err
	}
	_, err = a.vault.UpdateItem(ctx, models.ItemUpdate{
		ID:       it.ID,
		ParentID: parent,
		Name:     it.Name,
		ItemType: it.ItemType,
		Tags:     it.Tags,
	})
	if err != nil {
		return err
	}
	a.ok("Item %s moved.", shortID(id))
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rm <id>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.vault.DeleteItem(ctx, id); err != nil {
		return err
	}
	a.ok("Item %s moved to the trash.", shortID(id))
	return nil
}

func (a *App) Purge(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("purge <id>")
	}
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	yes, err := Confirm(a.reader, fmt.Sprintf("Permanently delete %s and everything under it?", shortID(id)), a.out)
	if err != nil || !yes {
		return err
	}
	if err := a.vault.PermanentlyDeleteItem(ctx, id); err != nil {
		return err
	}
	a.ok("Item %s deleted.", shortID(id))
	return nil
}

func (a *App) EmptyTrash(ctx context.Context, args []string) error {
	yes, err := Confirm(a.reader, "Permanently delete every item in the trash?", a.out)
	if err != nil || !yes {
		return err
	}
	n, err := a.vault.PermanentlyDeleteAll(ctx)
	if err != nil {
		return err
	}
	a.ok("%d item(s) deleted.", n)
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	const u = "restore [-root] <id>"
	var toRoot bool
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&toRoot, "root", false, "restore to the top level")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return usage(u)
	}
	id, err := a.resolveID(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := a.vault.RestoreItem(ctx, id, toRoot); err != nil {
		return err
	}
	a.ok("Item %s restored.", shortID(id))
	return nil
}
