package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to. The real App
// type satisfies this interface; tests can provide a lightweight stub. Every
// handler receives the arguments that followed the command word.
type execIface interface {
	isUnlocked() bool
	touch()

	Init(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error

	List(ctx context.Context, args []string) error
	Tree(ctx context.Context, args []string) error
	Trash(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	AddNote(ctx context.Context, args []string) error
	AddKey(ctx context.Context, args []string) error
	AddFile(ctx context.Context, args []string) error
	Mkdir(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Purge(ctx context.Context, args []string) error
	EmptyTrash(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error

	Tags(ctx context.Context, args []string) error
	RenameTag(ctx context.Context, args []string) error
	DeleteTag(ctx context.Context, args []string) error

	ChangePassphrase(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Archive(ctx context.Context, args []string) error
	Backup(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
	Lockout(ctx context.Context, args []string) error
	Theme(ctx context.Context, args []string) error
	Reset(ctx context.Context, args []string) error
}

const (
	lockedHelp = `Available commands:
  init [strength]            create a new vault
  unlock                     unlock the vault
  status                     show vault and lockout state
  archive <path>             write an encrypted archive of the vault
  backup                     upload an encrypted archive to the configured sinks
  exit | quit                leave the program`

	unlockedHelp = `Available commands:
  ls [-type T] [-sort S] [-deleted] [folder]   list one folder level
  tree                        list the whole vault
  trash                       list deleted items
  show <id>                   show an item and its text content
  save <id> <path>            write an item's content to a file
  addnote [folder]            add a text note
  addkey [folder]             add a secret key (input hidden)
  addfile <path> [folder]     import a file
  mkdir <name> [parent]       create a folder
  edit <id>                   change name, tags or content
  mv <id> <folder|/>          move an item
  rm <id>                     move an item (and its children) to the trash
  restore [-root] <id>        restore a deleted item
  purge <id>                  delete an item permanently
  emptytrash                  delete every trashed item permanently
  tags                        list tags
  renametag <old> <new>       rename a tag on every item
  deltag <tag>                remove a tag from every item
  passwd [strength]           change the master passphrase
  export <json|csv|txt|md> <path>   export decrypted items
  archive <path>              write an encrypted archive of the vault
  backup                      upload an encrypted archive to the configured sinks
  import <csv> [folder]       import a password manager CSV
  lockout [on <max> <minutes> | off | reset]   brute-force protection
  theme [name]                show or set the theme
  reset                       delete every item and the master key
  status                      show vault and lockout state
  lock                        lock the vault
  exit | quit                 leave the program`
)

// readLine returns the next input line without its line terminator. ok is
// false once the input is exhausted.
func readLine(r *bufio.Reader) (line string, ok bool) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// runREPL starts a simple read–eval–print loop for the vault CLI.
//
// It reads a line from in, parses the first token as the command, and
// dispatches to methods on 'a' with the remaining tokens. Unknown commands
// are reported back to the user. The loop exits on EOF or when the user
// types "exit" or "quit". Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vault> %s > ", statusFn()))
		line, ok := readLine(in)
		if !ok {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		a.touch()
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn(unlockedHelp)
			} else {
				printlnFn(lockedHelp)
			}

		case "init":
			err = a.Init(ctx, args)
		case "unlock":
			err = a.Unlock(ctx, args)
		case "lock":
			err = a.Lock(ctx, args)
		case "status":
			err = a.Status(ctx, args)

		case "l", "ls", "list":
			err = a.List(ctx, args)
		case "tree":
			err = a.Tree(ctx, args)
		case "trash":
			err = a.Trash(ctx, args)
		case "show":
			err = a.Show(ctx, args)
		case "save":
			err = a.Save(ctx, args)
		case "addnote":
			err = a.AddNote(ctx, args)
		case "addkey":
			err = a.AddKey(ctx, args)
		case "addfile":
			err = a.AddFile(ctx, args)
		case "mkdir":
			err = a.Mkdir(ctx, args)
		case "edit":
			err = a.Edit(ctx, args)
		case "mv":
			err = a.Move(ctx, args)
		case "rm":
			err = a.Remove(ctx, args)
		case "purge":
			err = a.Purge(ctx, args)
		case "emptytrash":
			err = a.EmptyTrash(ctx, args)
		case "restore":
			err = a.Restore(ctx, args)

		case "tags":
			err = a.Tags(ctx, args)
		case "renametag":
			err = a.RenameTag(ctx, args)
		case "deltag":
			err = a.DeleteTag(ctx, args)

		case "passwd":
			err = a.ChangePassphrase(ctx, args)
		case "export":
			err = a.Export(ctx, args)
		case "archive":
			err = a.Archive(ctx, args)
		case "backup":
			err = a.Backup(ctx, args)
		case "import":
			err = a.Import(ctx, args)
		case "lockout":
			err = a.Lockout(ctx, args)
		case "theme":
			err = a.Theme(ctx, args)
		case "reset":
			err = a.Reset(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn(errorText("error:"), describeError(err))
		}
	}
}
