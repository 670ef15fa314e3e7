package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/backup"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/export"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

func (a *App) Tags(ctx context.Context, args []string) error {
	tags, err := a.vault.AllTags(ctx)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		fmt.Fprintln(a.out, "No tags.")
		return nil
	}
	fmt.Fprintln(a.out, strings.Join(tags, "\n"))
	return nil
}

func (a *App) RenameTag(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("renametag <old> <new>")
	}
	n, err := a.vault.RenameTag(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.ok("Tag renamed on %d item(s).", n)
	return nil
}

func (a *App) DeleteTag(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("deltag <tag>")
	}
	n, err := a.vault.DeleteTag(ctx, args[0])
	if err != nil {
		return err
	}
	a.ok("Tag removed from %d item(s).", n)
	return nil
}

// Export writes decrypted items to path. The passphrase is asked again even
// when the vault is unlocked.
func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("export <json|csv|txt|md> <path>")
	}
	format, err := export.ParseFormat(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, warnText("The export file is NOT encrypted."))
	pass, err := a.password("Master passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	items, err := a.vault.ExportDecrypted(ctx, pass)
	if err != nil {
		return err
	}
	defer func() {
		for i := range items {
			common.WipeByteArray(items[i].Content)
		}
	}()

	var buf bytes.Buffer
	if err := export.Write(&buf, format, items); err != nil {
		return err
	}
	defer common.WipeByteArray(buf.Bytes())
	if err := filex.WriteFileAtomic(args[1], buf.Bytes()); err != nil {
		return err
	}
	a.ok("Exported %d item(s) to %s.", len(items), args[1])
	return nil
}

// Archive writes the encrypted vault to path.
func (a *App) Archive(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("archive <path>")
	}
	var buf bytes.Buffer
	if err := a.vault.ExportEncrypted(ctx, &buf); err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(args[0], buf.Bytes()); err != nil {
		return err
	}
	a.ok("Encrypted archive written to %s.", args[0])
	return nil
}

func (a *App) Backup(ctx context.Context, args []string) error {
	sinks, err := a.sinks(ctx)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return fmt.Errorf("%w: set backup_dir or s3_bucket in the config", backup.ErrNoSinks)
	}
	var name string
	err = withSpinner(ctx, a.out, "Uploading backup...", func(ctx context.Context) error {
		var err error
		name, err = backup.Run(ctx, a.vault, sinks, a.now(), a.logger)
		return err
	})
	if err != nil {
		return err
	}
	for _, s := range sinks {
		a.ok("Backup %s stored in %s.", name, s)
	}
	return nil
}

func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("import <csv> [folder]")
	}
	parent, err := a.resolveParent(ctx, argAt(args, 1))
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := export.ParseCSV(f)
	if err != nil {
		return err
	}
	n, err := a.vault.ImportItems(ctx, parent, res.Items)
	if err != nil {
		return err
	}
	a.ok("Imported %d of %d row(s), %d skipped.", n, res.Rows, res.Skipped)
	return nil
}
