package notify

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// statusTemplates maps each notifiable status to its email template.
var statusTemplates = map[models.Status]string{
	models.StatusInProgress: "status_tramitada",
	models.StatusAccepted:   "status_aceptada",
	models.StatusRejected:   "status_denegada",
}

// DeliveryFailure describes one status notification that could not be sent.
type DeliveryFailure struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
}

// Summary aggregates the outcome of a notification batch for the admin
// digest.
type Summary struct {
	Total    int               `json:"total"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Failures []DeliveryFailure `json:"failures,omitempty"`
}

// SuccessRate reports the delivered fraction of the batch. An empty batch
// counts as fully successful.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Sent) / float64(s.Total)
}

// Notifier composes and sends the system's emails. It pairs a Renderer with
// a Mailer and knows which template each lifecycle event uses.
type Notifier struct {
	mailer     Mailer
	renderer   *Renderer
	adminEmail string
	logger     *log.Logger
}

type NotifierOption func(*Notifier)

func WithNotifierLogger(logger *log.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func NewNotifier(mailer Mailer, renderer *Renderer, adminEmail string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		mailer:     mailer,
		renderer:   renderer,
		adminEmail: adminEmail,
		logger:     log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendConfirmation acknowledges a fresh submission to the client.
func (n *Notifier) SendConfirmation(ctx context.Context, rec *models.WarrantyRecord) error {
	if rec.ClientEmail == "" {
		return fmt.Errorf("%w: ticket %s has no client email", ErrNoRecipient, rec.TicketID)
	}
	r, err := n.renderer.Render("confirmation", n.recordContext(rec))
	if err != nil {
		return err
	}
	if err := n.send(ctx, []string{rec.ClientEmail}, r); err != nil {
		return fmt.Errorf("send confirmation for %s: %w", rec.TicketID, err)
	}
	n.logger.Printf("confirmation sent ticket=%s", rec.TicketID)
	return nil
}

// SendStatusUpdate emails the client that their ticket moved to status.
// Statuses without a template (notably the initial one) are an error; the
// diff engine should never hand those over.
func (n *Notifier) SendStatusUpdate(ctx context.Context, rec *models.WarrantyRecord, status models.Status) error {
	name, ok := statusTemplates[status]
	if !ok {
		return fmt.Errorf("%w: no status template for %q", ErrNoTemplate, status)
	}
	if rec.ClientEmail == "" {
		return fmt.Errorf("%w: ticket %s has no client email", ErrNoRecipient, rec.TicketID)
	}
	r, err := n.renderer.Render(name, n.recordContext(rec))
	if err != nil {
		return err
	}
	if err := n.send(ctx, []string{rec.ClientEmail}, r); err != nil {
		return fmt.Errorf("send status update for %s: %w", rec.TicketID, err)
	}
	n.logger.Printf("status update sent ticket=%s status=%s", rec.TicketID, status)
	return nil
}

// SendAdminNewTicket notifies the internal address about a fresh submission.
// confirmationSent and recordAppended report the outcome of the earlier
// pipeline steps so the admin sees partial failures.
func (n *Notifier) SendAdminNewTicket(ctx context.Context, rec *models.WarrantyRecord, confirmationSent, recordAppended bool) error {
	if n.adminEmail == "" {
		return fmt.Errorf("%w: no admin address configured", ErrNoRecipient)
	}
	data := n.recordContext(rec)
	data["confirmation_sent"] = confirmationSent
	data["record_appended"] = recordAppended
	r, err := n.renderer.Render("admin_new_ticket", data)
	if err != nil {
		return err
	}
	if err := n.send(ctx, []string{n.adminEmail}, r); err != nil {
		return fmt.Errorf("send admin notification for %s: %w", rec.TicketID, err)
	}
	n.logger.Printf("admin notified of new ticket=%s", rec.TicketID)
	return nil
}

// SendAdminSummary mails the batch digest after a status run.
func (n *Notifier) SendAdminSummary(ctx context.Context, sum Summary) error {
	if n.adminEmail == "" {
		return fmt.Errorf("%w: no admin address configured", ErrNoRecipient)
	}
	failures := make([]map[string]any, 0, len(sum.Failures))
	for _, f := range sum.Failures {
		failures = append(failures, map[string]any{
			"ticket_id": f.TicketID,
			"status":    f.Status,
			"reason":    f.Reason,
		})
	}
	r, err := n.renderer.Render("admin_summary", map[string]any{
		"total":    sum.Total,
		"sent":     sum.Sent,
		"failed":   sum.Failed,
		"failures": failures,
	})
	if err != nil {
		return err
	}
	if err := n.send(ctx, []string{n.adminEmail}, r); err != nil {
		return fmt.Errorf("send admin summary: %w", err)
	}
	n.logger.Printf("admin summary sent total=%d sent=%d failed=%d", sum.Total, sum.Sent, sum.Failed)
	return nil
}

// SendAdminTracking mails the current tracking breakdown, the emailed
// counterpart of the summary command.
func (n *Notifier) SendAdminTracking(ctx context.Context, total int, byStatus, byBrand map[string]int) error {
	if n.adminEmail == "" {
		return fmt.Errorf("%w: no admin address configured", ErrNoRecipient)
	}
	r, err := n.renderer.Render("admin_tracking", map[string]any{
		"total":    total,
		"statuses": countRows(byStatus),
		"brands":   countRows(byBrand),
	})
	if err != nil {
		return err
	}
	if err := n.send(ctx, []string{n.adminEmail}, r); err != nil {
		return fmt.Errorf("send tracking summary: %w", err)
	}
	n.logger.Printf("tracking summary sent total=%d", total)
	return nil
}

// countRows flattens a breakdown map into template rows with a stable order.
func countRows(counts map[string]int) []map[string]any {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, map[string]any{"name": name, "count": counts[name]})
	}
	return rows
}

func (n *Notifier) send(ctx context.Context, to []string, r Rendered) error {
	return n.mailer.Send(ctx, Message{
		To:      to,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
	})
}

// recordContext flattens a record into template data. Blank required fields
// fall back to N/A so sheet rows edited by hand still render, while blank
// optional fields suppress their template lines.
func (n *Notifier) recordContext(rec *models.WarrantyRecord) map[string]any {
	submitted := ""
	if !rec.SubmittedAt.IsZero() {
		submitted = rec.SubmittedAt.Format("02/01/2006 15:04")
	}
	return map[string]any{
		"ticket_id":            fallback(rec.TicketID, "N/A"),
		"company":              fallback(rec.ClientName, "N/A"),
		"tax_id":               fallback(rec.TaxID, "N/A"),
		"email":                rec.ClientEmail,
		"brand":                fallback(rec.Brand, "N/A"),
		"model":                fallback(rec.ProductID, "N/A"),
		"size":                 rec.ProductSize,
		"year":                 rec.ProductYear,
		"condition":            fallback(rec.Condition, "N/A"),
		"issue":                fallback(rec.Issue, "N/A"),
		"solution":             rec.Solution,
		"submitted":            submitted,
		"submitted_ago":        n.renderer.Ago(rec.SubmittedAt),
		"has_purchase_invoice": len(rec.PurchaseInvoices) > 0,
		"has_sales_invoice":    len(rec.SalesInvoices) > 0,
	}
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
