package dropbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/proffectiv/warrantyflow/internal/store"
)

// Source adapts a Client to the workbook store, pinning it to one file
// path inside the app folder.
type Source struct {
	client *Client
	path   string
}

var _ store.Source = (*Source)(nil)

// NewSource creates a workbook source for the file at path, e.g.
// "/garantias/GARANTIAS_PROFFECTIV.xlsx".
func NewSource(client *Client, path string) *Source {
	return &Source{client: client, path: path}
}

// Fetch downloads the workbook. A file missing from Dropbox is reported
// as store.ErrWorkbookMissing so the store can bootstrap a fresh one.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.client.Download(ctx, s.path)
	if err != nil {
		if errors.Is(err, ErrPathNotFound) {
			return nil, fmt.Errorf("%w: dropbox %s", store.ErrWorkbookMissing, s.path)
		}
		return nil, err
	}
	return data, nil
}

// Store uploads the workbook, replacing the remote copy.
func (s *Source) Store(ctx context.Context, data []byte) error {
	return s.client.Upload(ctx, s.path, data)
}
