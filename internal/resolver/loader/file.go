package loader

import (
	"context"
	"path/filepath"

	"github.com/isseis/go-catalog-resolver/internal/safefileio"
)

// FileLoader loads documents from the local file system. Paths are expected
// to be canonical; reads go through safefileio so a symlink substituted after
// validation is rejected.
type FileLoader struct {
	maxFileSize int64
}

// NewFileLoader creates a FileLoader. maxFileSize <= 0 selects safefileio.MaxFileSize.
func NewFileLoader(maxFileSize int64) *FileLoader {
	return &FileLoader{maxFileSize: maxFileSize}
}

// Load implements Loader
func (l *FileLoader) Load(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := safefileio.SafeReadFileWithLimit(path, l.maxFileSize)
	if err != nil {
		return nil, err
	}

	format := FormatFor(path)
	t, err := Decode(content, format, path)
	if err != nil {
		return nil, err
	}

	return &Document{
		Source: path,
		Dir:    filepath.Dir(path),
		Tree:   t,
		Format: format,
		Size:   len(content),
	}, nil
}
