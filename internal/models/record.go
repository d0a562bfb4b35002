package models

import (
	"strings"
	"time"
)

// SheetDateLayout is the date format staff see in the Fecha de creación
// column (day first, zero padded).
const SheetDateLayout = "02/01/2006"

// FileRef points at an uploaded attachment hosted by the form provider.
// Only the link is stored; file contents never pass through this system.
type FileRef struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// WarrantyRecord is one row of a brand sheet in the warranty workbook.
// TicketID and SubmittedAt are set at intake and immutable afterwards;
// Status is maintained by staff directly in the sheet and only ever read
// back by this system.
type WarrantyRecord struct {
	TicketID    string    `json:"ticket_id"`
	Brand       string    `json:"brand"`
	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`

	ClientName  string `json:"client_name"`
	TaxID       string `json:"tax_id,omitempty"`
	ClientEmail string `json:"client_email"`

	ProductID   string `json:"product_id"`
	ProductSize string `json:"product_size,omitempty"`
	ProductYear string `json:"product_year,omitempty"`
	Condition   string `json:"condition,omitempty"`

	Issue    string `json:"issue"`
	Solution string `json:"solution,omitempty"`

	PurchaseInvoices []FileRef `json:"purchase_invoices,omitempty"`
	SalesInvoices    []FileRef `json:"sales_invoices,omitempty"`
	Photos           []FileRef `json:"photos,omitempty"`
	Videos           []FileRef `json:"videos,omitempty"`
}

// Notifiable reports whether the record carries everything a client
// notification needs. Records failing this are excluded from status
// diffing entirely.
func (r *WarrantyRecord) Notifiable() bool {
	return strings.TrimSpace(r.TicketID) != "" && strings.TrimSpace(r.ClientEmail) != ""
}

// StatusChange is one detected transition the status pipeline must notify.
// Previous is empty on the first observation of a ticket.
type StatusChange struct {
	Record   WarrantyRecord `json:"record"`
	Previous Status         `json:"previous"`
	Current  Status         `json:"current"`
}
