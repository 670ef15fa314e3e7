package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	data []byte
	err  error
}

func (f *fakeArchiver) ExportEncrypted(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write(f.data)
	return err
}

type memSink struct {
	name string
	got  map[string][]byte
	err  error
}

func (m *memSink) Put(_ context.Context, name string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.got == nil {
		m.got = map[string][]byte{}
	}
	m.got[name] = append([]byte(nil), data...)
	return nil
}

func (m *memSink) String() string { return m.name }

var when = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "2025/02/03/gophvault-20250203T040506Z.zip", ArchiveName(when))
	assert.Equal(t, ArchiveName(when), ArchiveName(when.In(time.FixedZone("x", 3*3600))))
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	a := &fakeArchiver{data: []byte("PK-archive")}
	ok := &memSink{name: "ok"}
	bad := &memSink{name: "bad", err: errors.New("offline")}

	name, err := Run(ctx, a, []Sink{bad, ok}, when, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: offline")
	assert.Equal(t, []byte("PK-archive"), ok.got[name], "later sinks still run")

	_, err = Run(ctx, a, nil, when, logging.NewNop())
	require.ErrorIs(t, err, ErrNoSinks)

	boom := errors.New("locked")
	_, err = Run(ctx, &fakeArchiver{err: boom}, []Sink{ok}, when, logging.NewNop())
	require.ErrorIs(t, err, boom)
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	s := NewDirSink(dir)

	require.NoError(t, s.Put(context.Background(), ArchiveName(when), []byte("zip")))

	got, err := os.ReadFile(filepath.Join(dir, "2025", "02", "03", "gophvault-20250203T040506Z.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zip", string(got))
	assert.Equal(t, "dir:"+dir, s.String())
}
