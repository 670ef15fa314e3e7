package filex

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

const shredChunk = 4096

// shredPatterns are the fixed byte passes; a final pass of random bytes
// follows them.
var shredPatterns = []byte{0x00, 0xFF, 0xAA, 0x55}

// Shred overwrites the whole file at path with each pattern and then with
// random bytes, syncing after every pass. It does not remove the file.
// On copy-on-write or journaling filesystems the old blocks may survive.
func Shred(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()

	for _, p := range shredPatterns {
		if err := overwrite(f, size, func(buf []byte) error {
			for i := range buf {
				buf[i] = p
			}
			return nil
		}); err != nil {
			return fmt.Errorf("shred %s (0x%02X): %w", path, p, err)
		}
	}

	if err := overwrite(f, size, func(buf []byte) error {
		_, err := rand.Read(buf)
		return err
	}); err != nil {
		return fmt.Errorf("shred %s (random): %w", path, err)
	}
	return nil
}

// ZeroFill performs a single zero pass over the file. It is the fallback
// when Shred fails part way.
func ZeroFill(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return overwrite(f, fi.Size(), func(buf []byte) error {
		clear(buf)
		return nil
	})
}

func overwrite(f *os.File, size int64, fill func([]byte) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, shredChunk)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]
		if err := fill(chunk); err != nil {
			return err
		}
		if _, err := f.Write(chunk); err != nil {
			return err
		}
		remaining -= n
	}
	return f.Sync()
}
