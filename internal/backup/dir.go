package backup

import (
	"context"
	"path/filepath"

	"github.com/dmitrijs2005/gophvault/internal/filex"
)

// DirSink writes archives below a local directory, typically a mounted
// external drive.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

func (s *DirSink) Put(_ context.Context, name string, data []byte) error {
	p := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return err
	}
	return filex.WriteFileAtomic(p, data)
}

func (s *DirSink) String() string {
	return "dir:" + s.dir
}
