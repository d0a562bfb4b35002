package statusrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/proffectiv/warrantyflow/internal/store"
)

// TrackingSummary describes the snapshot contents for operators.
type TrackingSummary struct {
	TotalTracked int            `json:"total_tracked"`
	ByStatus     map[string]int `json:"by_status"`
	ByBrand      map[string]int `json:"by_brand"`
}

// Summary reports what the snapshot currently tracks, broken down by
// status and by brand. Brands come from the workbook read; a tracked
// ticket whose row is gone, or any read when the workbook itself is
// missing, counts under Unknown.
func (s *Service) Summary(ctx context.Context) (*TrackingSummary, error) {
	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	brands := make(map[string]string)
	records, err := s.store.ListAll(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrWorkbookMissing) {
			return nil, fmt.Errorf("read workbook: %w", err)
		}
	} else {
		for _, rec := range records {
			if rec.TicketID != "" {
				brands[rec.TicketID] = rec.Brand
			}
		}
	}

	sum := &TrackingSummary{
		TotalTracked: len(snap),
		ByStatus:     make(map[string]int),
		ByBrand:      make(map[string]int),
	}
	for id, status := range snap {
		sum.ByStatus[string(status)]++
		brand := brands[id]
		if brand == "" {
			brand = "Unknown"
		}
		sum.ByBrand[brand]++
	}
	return sum, nil
}
