package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proffectiv/warrantyflow/internal/config"
	"github.com/proffectiv/warrantyflow/internal/dedup"
	"github.com/proffectiv/warrantyflow/internal/models"
	"github.com/proffectiv/warrantyflow/internal/notify"
	"github.com/proffectiv/warrantyflow/internal/store"
)

// ErrUnknownBrand is returned when a submission names a brand the catalog
// does not carry. Nothing is sent and nothing is written for it.
var ErrUnknownBrand = errors.New("intake: unknown brand")

// DedupScope selects which existing records a new submission is compared
// against.
type DedupScope string

const (
	// ScopeBrand compares against the submission's own brand sheet only.
	ScopeBrand DedupScope = "brand"
	// ScopeGlobal compares against every brand sheet in the workbook.
	ScopeGlobal DedupScope = "global"
)

// Result reports what happened to one submission. The steps after the
// duplicate gate run independently, so individual flags can be false while
// the pipeline as a whole still returns no error.
type Result struct {
	TicketID         string       `json:"ticket_id,omitempty"`
	Duplicate        bool         `json:"duplicate"`
	Match            *dedup.Match `json:"match,omitempty"`
	ConfirmationSent bool         `json:"confirmation_sent"`
	RecordAppended   bool         `json:"record_appended"`
	AdminNotified    bool         `json:"admin_notified"`
}

// Complete reports whether a ticket was created and every pipeline step
// succeeded for it.
func (r *Result) Complete() bool {
	return !r.Duplicate && r.ConfirmationSent && r.RecordAppended && r.AdminNotified
}

// Service runs the intake pipeline for incoming webhook bodies.
type Service struct {
	store    store.RecordStore
	checker  *dedup.Checker
	notifier *notify.Notifier
	catalog  config.BrandCatalog
	parser   *Parser
	scope    DedupScope
	logger   *log.Logger
	now      func() time.Time
	newUUID  func() uuid.UUID
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBrandCatalog replaces the embedded brand catalog.
func WithBrandCatalog(catalog config.BrandCatalog) ServiceOption {
	return func(s *Service) {
		if len(catalog.Brands) > 0 {
			s.catalog = catalog
		}
	}
}

// WithDedupScope widens or narrows the duplicate comparison set.
func WithDedupScope(scope DedupScope) ServiceOption {
	return func(s *Service) {
		if scope == ScopeBrand || scope == ScopeGlobal {
			s.scope = scope
		}
	}
}

// WithLogger overrides the default intake logger.
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock pins the submission timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUUIDSource pins the randomness behind ticket ids.
func WithUUIDSource(newUUID func() uuid.UUID) ServiceOption {
	return func(s *Service) {
		if newUUID != nil {
			s.newUUID = newUUID
		}
	}
}

// NewService wires the intake pipeline. The embedded brand catalog drives
// field extraction and duplicates are checked per brand unless options say
// otherwise.
func NewService(st store.RecordStore, checker *dedup.Checker, notifier *notify.Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		checker:  checker,
		notifier: notifier,
		catalog:  config.DefaultBrandCatalog(),
		scope:    ScopeBrand,
		logger:   log.New(log.Writer(), "[INTAKE] ", log.LstdFlags),
		now:      time.Now,
		newUUID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = NewParser(s.catalog)
	return s
}

// Process runs one webhook body through the pipeline: parse, duplicate
// check, ticket id, confirmation email, workbook append, admin
// notification. A duplicate stops the pipeline without error. After the
// duplicate gate each step tolerates failure; the Result records which
// ones went through.
func (s *Service) Process(ctx context.Context, body []byte) (*Result, error) {
	sub, err := s.parser.Parse(body)
	if err != nil {
		return nil, err
	}
	if sub.EventType != eventFormSubmission {
		return nil, fmt.Errorf("%w: %q", ErrWrongEvent, sub.EventType)
	}
	if !s.catalog.Known(sub.Record.Brand) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBrand, sub.Record.Brand)
	}
	return s.process(ctx, sub)
}

func (s *Service) process(ctx context.Context, sub *Submission) (*Result, error) {
	res := &Result{}
	rec := sub.Record

	existing, err := s.listExisting(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing records: %w", err)
	}

	verdict := s.checker.Check(rec, s.comparisonSet(rec.Brand, existing))
	if verdict.Duplicate {
		res.Duplicate = true
		res.Match = verdict.Best
		s.logger.Printf("duplicate submission suppressed: matches ticket %s at %.1f%% (threshold %.0f%%)",
			verdict.Best.TicketID, verdict.Best.Score*100, verdict.Threshold*100)
		return res, nil
	}

	rec.TicketID, err = s.newTicketID(takenIDs(existing))
	if err != nil {
		return nil, err
	}
	rec.Status = models.StatusReceived
	rec.SubmittedAt = sub.CreatedAt
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.now()
	}
	res.TicketID = rec.TicketID
	s.logger.Printf("ticket %s created for brand %s", rec.TicketID, rec.Brand)

	if err := s.notifier.SendConfirmation(ctx, &rec); err != nil {
		s.logger.Printf("confirmation email failed for ticket %s: %v", rec.TicketID, err)
	} else {
		res.ConfirmationSent = true
	}

	if err := s.store.AppendRecord(ctx, &rec); err != nil {
		s.logger.Printf("workbook append failed for ticket %s: %v", rec.TicketID, err)
	} else {
		res.RecordAppended = true
	}

	if err := s.notifier.SendAdminNewTicket(ctx, &rec, res.ConfirmationSent, res.RecordAppended); err != nil {
		s.logger.Printf("admin notification failed for ticket %s: %v", rec.TicketID, err)
	} else {
		res.AdminNotified = true
	}

	s.logger.Printf("intake finished ticket=%s confirmation=%t append=%t admin=%t",
		rec.TicketID, res.ConfirmationSent, res.RecordAppended, res.AdminNotified)
	return res, nil
}

// listExisting loads every record once; the same set feeds the duplicate
// comparison and the taken ticket id check. A workbook that does not exist
// yet holds nothing; the append step bootstraps it.
func (s *Service) listExisting(ctx context.Context) ([]models.WarrantyRecord, error) {
	existing, err := s.store.ListAll(ctx)
	if err != nil {
		if errors.Is(err, store.ErrWorkbookMissing) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// comparisonSet narrows the existing records to the configured duplicate
// scope.
func (s *Service) comparisonSet(brand string, existing []models.WarrantyRecord) []models.WarrantyRecord {
	if s.scope == ScopeGlobal {
		return existing
	}
	var same []models.WarrantyRecord
	for _, rec := range existing {
		if strings.EqualFold(rec.Brand, brand) {
			same = append(same, rec)
		}
	}
	return same
}

func takenIDs(existing []models.WarrantyRecord) map[string]bool {
	taken := make(map[string]bool, len(existing))
	for _, rec := range existing {
		taken[rec.TicketID] = true
	}
	return taken
}
