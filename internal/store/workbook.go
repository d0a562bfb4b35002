package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// Column headers exactly as staff see them in the workbook. Writes are
// header driven: a value is only written when its column exists in the
// sheet's first row, so per-brand layouts need no special casing here.
const (
	colTicketID         = "Ticket ID"
	colStatus           = "Estado"
	colDate             = "Fecha de creación"
	colCompany          = "Empresa"
	colTaxID            = "NIF/CIF/VAT"
	colEmail            = "Email"
	colModel            = "Modelo"
	colSize             = "Talla"
	colYear             = "Año de fabricación"
	colBikeCondition    = "Estado de la bicicleta"
	colProductCondition = "Estado del producto"
	colIssue            = "Descripción del problema"
	colSolution         = "Solución y/o reparación propuesta y presupuesto"
	colPurchaseInvoice  = "Factura de compra"
	colSalesInvoice     = "Factura de venta"
	colPhotos           = "Imágenes"
	colVideos           = "Vídeos"
)

// notApplicable fills the solution column on sheets that carry it for
// brands whose process never proposes repairs.
const notApplicable = "No aplicable"

// allColumns is the write order for new rows. Columns missing from a
// sheet's header are skipped.
var allColumns = []string{
	colTicketID, colStatus, colDate, colCompany, colTaxID, colEmail,
	colModel, colSize, colYear, colBikeCondition, colProductCondition,
	colIssue, colSolution,
	colPurchaseInvoice, colSalesInvoice, colPhotos, colVideos,
}

// SheetLayout names one brand sheet and its column set. Layouts are
// only consulted when the workbook has to be created from scratch;
// existing sheets keep whatever columns staff gave them.
type SheetLayout struct {
	Name    string
	Columns []string
}

// DefaultLayouts returns the stock brand sheets. Bike brands carry
// frame size and bike condition columns; accessory brands carry a
// product condition column instead.
func DefaultLayouts() []SheetLayout {
	common := []string{colTicketID, colStatus, colDate, colCompany, colTaxID, colEmail, colModel}
	tail := []string{colIssue, colSolution, colPurchaseInvoice, colSalesInvoice, colPhotos, colVideos}

	build := func(middle ...string) []string {
		cols := make([]string, 0, len(common)+len(middle)+len(tail))
		cols = append(cols, common...)
		cols = append(cols, middle...)
		cols = append(cols, tail...)
		return cols
	}

	return []SheetLayout{
		{Name: "Conway", Columns: build(colSize, colYear, colBikeCondition)},
		{Name: "Cycplus", Columns: build(colProductCondition)},
		{Name: "Dare", Columns: build(colSize, colBikeCondition)},
		{Name: "Kogel", Columns: build(colProductCondition)},
	}
}

// WorkbookStore implements RecordStore over an xlsx workbook held by a
// Source. Every operation fetches the file, works on it in memory and,
// for appends, stores the whole file back.
type WorkbookStore struct {
	source  Source
	layouts []SheetLayout
	logger  *log.Logger
}

var _ RecordStore = (*WorkbookStore)(nil)

// Option configures a WorkbookStore.
type Option func(*WorkbookStore)

// WithLayouts overrides the default brand sheets.
func WithLayouts(layouts []SheetLayout) Option {
	return func(s *WorkbookStore) {
		if len(layouts) > 0 {
			s.layouts = layouts
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *WorkbookStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewWorkbookStore creates a store reading from and writing to source.
func NewWorkbookStore(source Source, opts ...Option) *WorkbookStore {
	s := &WorkbookStore{
		source:  source,
		layouts: DefaultLayouts(),
		logger:  log.New(log.Writer(), "[WORKBOOK] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Brands returns the configured brand sheet names.
func (s *WorkbookStore) Brands() []string {
	names := make([]string, 0, len(s.layouts))
	for _, layout := range s.layouts {
		names = append(names, layout.Name)
	}
	return names
}

// ListRecords returns every row of one brand sheet, newest first.
func (s *WorkbookStore) ListRecords(ctx context.Context, brand string) ([]models.WarrantyRecord, error) {
	f, err := s.openWorkbook(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !sheetExists(f, brand) {
		return nil, fmt.Errorf("%w: %s", ErrSheetMissing, brand)
	}
	return s.readSheet(f, brand)
}

// ListAll returns the rows of every configured brand sheet. Sheets
// missing from the workbook are logged and skipped so one renamed tab
// does not take the whole status run down.
func (s *WorkbookStore) ListAll(ctx context.Context) ([]models.WarrantyRecord, error) {
	f, err := s.openWorkbook(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.WarrantyRecord
	for _, layout := range s.layouts {
		if !sheetExists(f, layout.Name) {
			s.logger.Printf("sheet %q not found in workbook, skipping", layout.Name)
			continue
		}
		recs, err := s.readSheet(f, layout.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// AppendRecord inserts the record as a new row 2 of its brand sheet,
// shifting existing data down so the newest ticket is always on top.
func (s *WorkbookStore) AppendRecord(ctx context.Context, rec *models.WarrantyRecord) error {
	if strings.TrimSpace(rec.Brand) == "" {
		return errors.New("store: record has no brand")
	}

	f, created, err := s.openOrCreateWorkbook(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if !sheetExists(f, rec.Brand) {
		return fmt.Errorf("%w: %s", ErrSheetMissing, rec.Brand)
	}

	headers, err := sheetHeaders(f, rec.Brand)
	if err != nil {
		return err
	}
	if err := f.InsertRows(rec.Brand, 2, 1); err != nil {
		return fmt.Errorf("inserting row in sheet %s: %w", rec.Brand, err)
	}
	if err := s.writeRow(f, rec.Brand, headers, 2, rec); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("serializing workbook: %w", err)
	}
	if err := s.source.Store(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("storing workbook: %w", err)
	}

	if created {
		s.logger.Printf("created workbook with %d brand sheets", len(s.layouts))
	}
	s.logger.Printf("appended ticket %s to sheet %s", rec.TicketID, rec.Brand)
	return nil
}

// openWorkbook fetches and parses the workbook.
func (s *WorkbookStore) openWorkbook(ctx context.Context) (*excelize.File, error) {
	data, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	return f, nil
}

// openOrCreateWorkbook is openWorkbook with bootstrap: a missing file
// becomes a fresh workbook with the configured brand sheets.
func (s *WorkbookStore) openOrCreateWorkbook(ctx context.Context) (*excelize.File, bool, error) {
	f, err := s.openWorkbook(ctx)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, ErrWorkbookMissing) {
		return nil, false, err
	}

	f, err = s.newWorkbook()
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// newWorkbook builds an empty workbook with one sheet per layout and
// the header row filled in.
func (s *WorkbookStore) newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	for i, layout := range s.layouts {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", layout.Name); err != nil {
				return nil, fmt.Errorf("naming sheet %s: %w", layout.Name, err)
			}
		} else {
			if _, err := f.NewSheet(layout.Name); err != nil {
				return nil, fmt.Errorf("creating sheet %s: %w", layout.Name, err)
			}
		}
		for col, name := range layout.Columns {
			ref, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, fmt.Errorf("header cell for %s: %w", name, err)
			}
			if err := f.SetCellValue(layout.Name, ref, name); err != nil {
				return nil, fmt.Errorf("writing header %s: %w", name, err)
			}
		}
	}
	return f, nil
}

// readSheet parses one brand sheet into records.
func (s *WorkbookStore) readSheet(f *excelize.File, sheet string) ([]models.WarrantyRecord, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := headerIndex(rows[0])
	cell := func(row []string, name string) string {
		idx, ok := headers[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []models.WarrantyRecord
	for i, row := range rows[1:] {
		rowNum := i + 2

		rec := models.WarrantyRecord{
			TicketID:    cell(row, colTicketID),
			Brand:       sheet,
			Status:      models.Status(cell(row, colStatus)),
			SubmittedAt: parseSheetDate(cell(row, colDate)),
			ClientName:  cell(row, colCompany),
			TaxID:       cell(row, colTaxID),
			ClientEmail: cell(row, colEmail),
			ProductID:   cell(row, colModel),
			ProductSize: cell(row, colSize),
			ProductYear: cell(row, colYear),
			Issue:       cell(row, colIssue),
			Solution:    cell(row, colSolution),
		}
		if rec.Condition = cell(row, colBikeCondition); rec.Condition == "" {
			rec.Condition = cell(row, colProductCondition)
		}
		if rec.TicketID == "" && rec.ClientEmail == "" && rec.ClientName == "" {
			continue
		}

		rec.PurchaseInvoices = s.cellFiles(f, sheet, headers, row, rowNum, colPurchaseInvoice)
		rec.SalesInvoices = s.cellFiles(f, sheet, headers, row, rowNum, colSalesInvoice)
		rec.Photos = s.cellFiles(f, sheet, headers, row, rowNum, colPhotos)
		rec.Videos = s.cellFiles(f, sheet, headers, row, rowNum, colVideos)

		records = append(records, rec)
	}
	return records, nil
}

// writeRow fills row rowNum of sheet from the record, header driven.
func (s *WorkbookStore) writeRow(f *excelize.File, sheet string, headers map[string]int, rowNum int, rec *models.WarrantyRecord) error {
	status := rec.Status
	if status == "" {
		status = models.StatusReceived
	}
	submitted := rec.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	values := map[string]string{
		colTicketID:         rec.TicketID,
		colStatus:           string(status),
		colDate:             submitted.Format(models.SheetDateLayout),
		colCompany:          rec.ClientName,
		colTaxID:            rec.TaxID,
		colEmail:            rec.ClientEmail,
		colModel:            rec.ProductID,
		colSize:             rec.ProductSize,
		colYear:             rec.ProductYear,
		colBikeCondition:    rec.Condition,
		colProductCondition: rec.Condition,
		colIssue:            rec.Issue,
		colSolution:         rec.Solution,
	}
	if values[colSolution] == "" {
		values[colSolution] = notApplicable
	}
	links := map[string][]models.FileRef{
		colPurchaseInvoice: rec.PurchaseInvoices,
		colSalesInvoice:    rec.SalesInvoices,
		colPhotos:          rec.Photos,
		colVideos:          rec.Videos,
	}

	for _, name := range allColumns {
		idx, ok := headers[name]
		if !ok {
			continue
		}
		ref, err := excelize.CoordinatesToCellName(idx+1, rowNum)
		if err != nil {
			return fmt.Errorf("cell for column %s: %w", name, err)
		}

		if files, isLink := links[name]; isLink {
			if len(files) == 0 {
				continue
			}
			if err := s.writeFileCell(f, sheet, ref, files[0]); err != nil {
				return err
			}
			continue
		}
		if err := f.SetCellValue(sheet, ref, values[name]); err != nil {
			return fmt.Errorf("writing column %s: %w", name, err)
		}
	}
	return nil
}

// writeFileCell writes the file name as a hyperlink to its URL, styled
// the way staff expect links to look.
func (s *WorkbookStore) writeFileCell(f *excelize.File, sheet, ref string, file models.FileRef) error {
	text := file.Name
	if text == "" {
		text = file.URL
	}
	if err := f.SetCellValue(sheet, ref, text); err != nil {
		return fmt.Errorf("writing file cell %s: %w", ref, err)
	}
	if file.URL == "" {
		return nil
	}
	if err := f.SetCellHyperLink(sheet, ref, file.URL, "External"); err != nil {
		return fmt.Errorf("linking file cell %s: %w", ref, err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0000FF", Underline: "single"},
	})
	if err != nil {
		return fmt.Errorf("creating link style: %w", err)
	}
	if err := f.SetCellStyle(sheet, ref, ref, style); err != nil {
		return fmt.Errorf("styling file cell %s: %w", ref, err)
	}
	return nil
}

// cellFiles recovers the attachment reference of a file column. Newer
// rows store the file name with a hyperlink; legacy rows store the raw
// URL as cell text.
func (s *WorkbookStore) cellFiles(f *excelize.File, sheet string, headers map[string]int, row []string, rowNum int, column string) []models.FileRef {
	idx, ok := headers[column]
	if !ok || idx >= len(row) {
		return nil
	}
	text := strings.TrimSpace(row[idx])
	if text == "" {
		return nil
	}

	ref, err := excelize.CoordinatesToCellName(idx+1, rowNum)
	if err != nil {
		return nil
	}
	if has, link, err := f.GetCellHyperLink(sheet, ref); err == nil && has {
		return []models.FileRef{{Name: text, URL: link}}
	}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return []models.FileRef{{URL: text}}
	}
	return []models.FileRef{{Name: text}}
}

// sheetExists reports whether the workbook has a sheet by that name.
func sheetExists(f *excelize.File, name string) bool {
	for _, sheet := range f.GetSheetList() {
		if sheet == name {
			return true
		}
	}
	return false
}

// sheetHeaders maps the sheet's first row to zero-based column indexes.
func sheetHeaders(f *excelize.File, sheet string) (map[string]int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheet)
	}
	return headerIndex(rows[0]), nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.TrimSpace(name)
		if name != "" {
			index[name] = idx
		}
	}
	return index
}

// parseSheetDate accepts the padded layout new rows are written with
// and the unpadded variant staff type by hand. Unparseable cells yield
// a zero time.
func parseSheetDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{models.SheetDateLayout, "2/1/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
