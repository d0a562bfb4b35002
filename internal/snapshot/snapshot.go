// Package snapshot persists the per-ticket status map the diff engine
// compares sheet reads against. Losing a snapshot silently replays every
// notification on the next run, so every backend writes atomically and
// save failures are treated as fatal by callers.
package snapshot

import (
	"context"
	"errors"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// ErrCorrupt is returned by Load when the persisted snapshot exists but
// cannot be decoded. Callers must abort rather than continue with an
// empty map, which would re-notify every tracked ticket.
var ErrCorrupt = errors.New("snapshot: stored data is corrupt")

// Store loads and saves the tracked status map. A missing snapshot is not
// an error; Load returns an empty map so a first run starts clean.
// Save replaces the stored snapshot as a whole and must be atomic: a
// crash mid-save leaves either the old snapshot or the new one, never a
// partial mix.
type Store interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snap models.Snapshot) error
}
