package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Source fetches and stores the raw workbook bytes. Implementations
// exist for the local filesystem and for Dropbox; the workbook store is
// agnostic about where the file lives.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
}

// FileSource keeps the workbook on the local filesystem. Mostly used in
// development and tests, but also by installs that sync the folder with
// an external agent.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the backing file path.
func (s *FileSource) Path() string {
	return s.path
}

// Fetch reads the workbook. A missing file yields ErrWorkbookMissing.
func (s *FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrWorkbookMissing, s.path)
		}
		return nil, fmt.Errorf("reading workbook %s: %w", s.path, err)
	}
	return data, nil
}

// Store writes the workbook atomically via temp file and rename, so a
// concurrent reader never sees a truncated xlsx.
func (s *FileSource) Store(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workbook dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp workbook: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp workbook: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting workbook permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing workbook %s: %w", s.path, err)
	}
	return nil
}
