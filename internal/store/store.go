// Package store reads and writes the shared warranty workbook. The
// workbook is the source of truth for ticket state: staff edit status
// cells by hand and this system only ever appends new rows or reads
// existing ones.
package store

import (
	"context"
	"errors"

	"github.com/proffectiv/warrantyflow/internal/models"
)

var (
	// ErrWorkbookMissing is returned by a Source when the workbook does
	// not exist yet at its location.
	ErrWorkbookMissing = errors.New("store: workbook not found")

	// ErrSheetMissing is returned when a brand sheet is absent from an
	// existing workbook. Appends never create brand sheets on the fly;
	// a missing sheet means someone renamed or deleted it by hand.
	ErrSheetMissing = errors.New("store: brand sheet not found")
)

// RecordStore lists and appends warranty rows.
type RecordStore interface {
	// ListRecords returns every row of one brand sheet, newest first.
	ListRecords(ctx context.Context, brand string) ([]models.WarrantyRecord, error)

	// ListAll returns the rows of every configured brand sheet.
	ListAll(ctx context.Context) ([]models.WarrantyRecord, error)

	// AppendRecord inserts a new row at the top of the record's brand
	// sheet.
	AppendRecord(ctx context.Context, rec *models.WarrantyRecord) error
}
