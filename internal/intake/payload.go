package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/proffectiv/warrantyflow/internal/config"
	"github.com/proffectiv/warrantyflow/internal/models"
)

// placeholderUnspecified is what the workbook shows for answers the client
// left blank. It is data, not a display string: sheet readers and the
// duplicate checker both treat it as empty.
const placeholderUnspecified = "No especificado"

// Submission is one parsed webhook envelope, normalized across the payload
// shapes the form provider has shipped over time.
type Submission struct {
	EventID   string
	EventType string
	CreatedAt time.Time
	Record    models.WarrantyRecord
}

// fieldValue is one answer keyed by its question label. At most one of the
// members is populated; a zero fieldValue is a question that was shown but
// left blank.
type fieldValue struct {
	text  string
	list  []string
	files []models.FileRef
}

// Parser normalizes webhook payloads into warranty records, driven by the
// brand question catalog.
type Parser struct {
	catalog config.BrandCatalog
}

// NewParser builds a Parser over the given catalog.
func NewParser(catalog config.BrandCatalog) *Parser {
	return &Parser{catalog: catalog}
}

// Parse validates a webhook body and normalizes it into a Submission.
// Three envelope shapes are accepted: a top level fields map paired with
// fieldsById, a client_payload wrapper around either shape, and the legacy
// data.fields array whose dropdown answers arrive as option ids.
func (p *Parser) Parse(body []byte) (*Submission, error) {
	if err := validateEnvelope(body); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)

	fields, createdAt, err := extractFields(root)
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		EventID:   root.Get("eventId").String(),
		EventType: root.Get("eventType").String(),
		Record:    p.buildRecord(fields),
	}
	if createdAt != "" {
		if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
			sub.CreatedAt = t.UTC()
		}
	}
	return sub, nil
}

// extractFields finds the field container in whichever envelope shape the
// body uses and returns the label-keyed answers plus the submission
// timestamp closest to them.
func extractFields(root gjson.Result) (map[string]fieldValue, string, error) {
	createdAt := root.Get("createdAt").String()

	if f := root.Get("fields"); f.IsObject() && root.Get("fieldsById").Exists() {
		return mapFields(f), createdAt, nil
	}
	if cp := root.Get("client_payload"); cp.Exists() {
		if ca := cp.Get("createdAt").String(); ca != "" {
			createdAt = ca
		}
		f := cp.Get("fields")
		switch {
		case f.IsObject():
			return mapFields(f), createdAt, nil
		case f.IsArray():
			return arrayFields(f), createdAt, nil
		}
		return nil, "", fmt.Errorf("%w: client_payload carries no fields", ErrBadEnvelope)
	}
	if data := root.Get("data"); data.Exists() {
		if ca := data.Get("createdAt").String(); ca != "" {
			createdAt = ca
		}
		if f := data.Get("fields"); f.IsArray() {
			return arrayFields(f), createdAt, nil
		}
		return nil, "", fmt.Errorf("%w: data carries no fields array", ErrBadEnvelope)
	}
	if f := root.Get("fields"); f.IsArray() {
		return arrayFields(f), createdAt, nil
	}
	return nil, "", fmt.Errorf("%w: no recognizable field container", ErrBadEnvelope)
}

// mapFields decodes the label-to-value object of the current envelope
// shape. Null answers are dropped entirely so fallback labels still get a
// chance; empty strings and empty arrays stay as blank answers.
func mapFields(obj gjson.Result) map[string]fieldValue {
	out := make(map[string]fieldValue)
	obj.ForEach(func(key, value gjson.Result) bool {
		if fv, ok := decodeValue(value); ok {
			out[key.String()] = fv
		}
		return true
	})
	return out
}

// arrayFields decodes the legacy list-of-field-objects shape. Dropdown
// answers arrive as option ids next to an options catalog and are mapped
// back to their display text here.
func arrayFields(arr gjson.Result) map[string]fieldValue {
	out := make(map[string]fieldValue)
	arr.ForEach(func(_, field gjson.Result) bool {
		label := field.Get("label").String()
		if label == "" {
			return true
		}
		value := field.Get("value")
		if options := field.Get("options"); value.IsArray() && options.IsArray() {
			list := make([]string, 0, len(value.Array()))
			for _, v := range value.Array() {
				if v.Type != gjson.String {
					continue
				}
				list = append(list, optionText(options, v.String()))
			}
			out[label] = fieldValue{list: list}
			return true
		}
		if fv, ok := decodeValue(value); ok {
			out[label] = fv
		}
		return true
	})
	return out
}

// optionText resolves one selected dropdown value against the field's
// option catalog, matching by id or by the text itself.
func optionText(options gjson.Result, val string) string {
	text := val
	options.ForEach(func(_, opt gjson.Result) bool {
		if opt.Get("id").String() == val || opt.Get("text").String() == val {
			if t := opt.Get("text").String(); t != "" {
				text = t
			}
			return false
		}
		return true
	})
	return text
}

func decodeValue(value gjson.Result) (fieldValue, bool) {
	if !value.Exists() || value.Type == gjson.Null {
		return fieldValue{}, false
	}
	if value.IsArray() {
		items := value.Array()
		if len(items) == 0 {
			return fieldValue{}, true
		}
		if items[0].IsObject() {
			files := make([]models.FileRef, 0, len(items))
			for _, item := range items {
				if !item.Get("url").Exists() {
					continue
				}
				files = append(files, models.FileRef{
					ID:       item.Get("id").String(),
					Name:     fileName(item),
					URL:      item.Get("url").String(),
					MimeType: item.Get("mimeType").String(),
					Size:     item.Get("size").Int(),
				})
			}
			return fieldValue{files: files}, true
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			list = append(list, item.String())
		}
		return fieldValue{list: list}, true
	}
	return fieldValue{text: value.String()}, true
}

func fileName(item gjson.Result) string {
	if name := item.Get("name").String(); name != "" {
		return name
	}
	return "file"
}

// value walks name chains in order and returns the first answer found,
// with the workbook placeholder standing in for anything missing or blank.
// An answer that is present but blank stops the walk: the client saw that
// question and skipped it.
func value(fields map[string]fieldValue, names ...string) string {
	v, ok := rawValue(fields, names...)
	if !ok || strings.TrimSpace(v) == "" {
		return placeholderUnspecified
	}
	return v
}

func rawValue(fields map[string]fieldValue, names ...string) (string, bool) {
	for _, name := range names {
		fv, ok := fields[name]
		if !ok {
			continue
		}
		switch {
		case len(fv.files) > 0:
			return "Archivo adjunto: " + fv.files[0].Name, true
		case len(fv.list) > 0:
			return fv.list[0], true
		}
		return fv.text, true
	}
	return "", false
}

// fileList walks a label chain and returns the first file answer found.
// Like value, a present but blank answer stops the walk.
func fileList(fields map[string]fieldValue, names ...string) []models.FileRef {
	for _, name := range names {
		fv, ok := fields[name]
		if !ok {
			continue
		}
		return fv.files
	}
	return nil
}

// buildRecord assembles a warranty record from normalized answers using
// the catalog's label chains. The brand name is canonicalized to the
// catalog spelling so sheet lookups are exact.
func (p *Parser) buildRecord(fields map[string]fieldValue) models.WarrantyRecord {
	common := p.catalog.Common

	brand := value(fields, common.Brand...)
	if spec, ok := p.catalog.Lookup(brand); ok {
		brand = spec.Name
	}
	spec := p.catalog.Spec(brand)

	rec := models.WarrantyRecord{
		Brand:      brand,
		ClientName: value(fields, common.Company...),
		TaxID:      value(fields, common.TaxID...),
		Issue:      value(fields, common.Issue...),
		Photos:     fileList(fields, common.Photos...),
		Videos:     fileList(fields, common.Videos...),
	}

	// The email drives client notifications. Keep it empty rather than the
	// placeholder when absent so recipient checks fail cleanly instead of
	// attempting delivery to a filler address.
	if v, ok := rawValue(fields, common.Email...); ok {
		rec.ClientEmail = strings.TrimSpace(v)
	}

	rec.ProductID = value(fields, spec.Model...)
	rec.Condition = value(fields, spec.Condition...)
	if len(spec.Size) > 0 {
		rec.ProductSize = value(fields, spec.Size...)
	}
	if len(spec.Year) > 0 {
		rec.ProductYear = value(fields, spec.Year...)
	}
	if len(spec.Solution) > 0 {
		rec.Solution = value(fields, spec.Solution...)
	}
	rec.PurchaseInvoices = fileList(fields, spec.PurchaseInvoice...)
	rec.SalesInvoices = fileList(fields, spec.SalesInvoice...)
	return rec
}
