// Package backup ships encrypted vault archives to a backup destination.
// Archives are produced by the session and are ciphertext apart from the
// settings table and salt, so sinks never see plaintext.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// Archiver writes an encrypted vault archive.
type Archiver interface {
	ExportEncrypted(ctx context.Context, w io.Writer) error
}

// Sink stores one archive under name.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	String() string
}

// ErrNoSinks is returned by Run when no destination is configured.
var ErrNoSinks = errors.New("no backup destination configured")

// ArchiveName builds the object name for a backup taken at t.
func ArchiveName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/gophvault-%s.zip", t.Year(), t.Month(), t.Day(), t.Format("20060102T150405Z"))
}

// Run builds one archive and hands it to every sink. All sinks are tried;
// their errors are joined.
func Run(ctx context.Context, a Archiver, sinks []Sink, now time.Time, logger logging.Logger) (string, error) {
	if len(sinks) == 0 {
		return "", ErrNoSinks
	}

	var buf bytes.Buffer
	if err := a.ExportEncrypted(ctx, &buf); err != nil {
		return "", fmt.Errorf("archive error: %w", err)
	}

	name := ArchiveName(now)
	var errs []error
	for _, s := range sinks {
		if err := s.Put(ctx, name, buf.Bytes()); err != nil {
			logger.Error(ctx, "backup upload failed", "sink", s.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			continue
		}
		logger.Info(ctx, "backup stored", "sink", s.String(), "name", name, "size", buf.Len())
	}
	return name, errors.Join(errs...)
}
