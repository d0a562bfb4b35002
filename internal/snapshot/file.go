package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// fileDocument is the on-disk JSON layout. The envelope keeps a saved_at
// stamp next to the ticket map so operators can tell a stale snapshot
// from an empty one when debugging.
type fileDocument struct {
	SavedAt time.Time                `json:"saved_at"`
	Tickets map[string]models.Status `json:"tickets"`
}

// FileStore keeps the snapshot in a single JSON file. Saves go through a
// temp file in the same directory followed by a rename, so readers never
// observe a half-written document.
type FileStore struct {
	path   string
	logger *log.Logger
}

var _ Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger overrides the default logger.
func WithFileLogger(logger *log.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore creates a store persisting to path. The parent directory
// is created on first save if needed.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: log.New(log.Writer(), "[SNAPSHOT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot file. A missing file yields an empty snapshot.
func (s *FileStore) Load(_ context.Context) (models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("no snapshot at %s, starting empty", s.path)
			return models.Snapshot{}, nil
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	snap := models.Snapshot{}
	for id, status := range doc.Tickets {
		snap[id] = status
	}
	return snap, nil
}

// Save writes the snapshot atomically via temp file and rename.
func (s *FileStore) Save(_ context.Context, snap models.Snapshot) error {
	doc := fileDocument{
		SavedAt: time.Now().UTC(),
		Tickets: snap,
	}
	if doc.Tickets == nil {
		doc.Tickets = models.Snapshot{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot %s: %w", s.path, err)
	}

	s.logger.Printf("saved %d tracked tickets to %s", len(snap), s.path)
	return nil
}
