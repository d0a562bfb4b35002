// Package statusrun drives the scheduled notification pass: read the
// workbook, diff ticket statuses against the persisted snapshot, email
// clients about their transitions, persist the new snapshot and report the
// batch to the admin.
package statusrun

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/proffectiv/warrantyflow/internal/models"
	"github.com/proffectiv/warrantyflow/internal/notify"
	"github.com/proffectiv/warrantyflow/internal/snapshot"
	"github.com/proffectiv/warrantyflow/internal/statusdiff"
	"github.com/proffectiv/warrantyflow/internal/store"
)

const (
	// DefaultRetentionDays bounds how far back the pass looks for tickets.
	DefaultRetentionDays = 90
	// DefaultMinSuccessRate is the delivered fraction below which a pass
	// counts as failed.
	DefaultMinSuccessRate = 0.8
)

// ErrLowDeliveryRate marks a pass that ran to completion but delivered too
// small a fraction of its notifications.
var ErrLowDeliveryRate = errors.New("statusrun: delivery success rate below minimum")

// Report describes one completed pass.
type Report struct {
	Started       time.Time      `json:"started"`
	Records       int            `json:"records_in_window"`
	Evaluated     int            `json:"evaluated"`
	Skipped       int            `json:"skipped"`
	Pruned        int            `json:"pruned"`
	SnapshotSize  int            `json:"snapshot_entries"`
	Summary       notify.Summary `json:"summary"`
	AdminNotified bool           `json:"admin_notified"`
}

// Service executes notification passes over the warranty workbook.
type Service struct {
	store          store.RecordStore
	snapshots      snapshot.Store
	engine         *statusdiff.Engine
	mailer         notify.Mailer
	notifier       *notify.Notifier
	retentionDays  int
	minSuccessRate float64
	logger         *log.Logger
	now            func() time.Time
	metrics        *runMetrics
}

// Option configures a Service.
type Option func(*Service)

// WithRetentionDays overrides how many days back the pass considers
// tickets. Non-positive values keep the default.
func WithRetentionDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// WithMinSuccessRate overrides the delivered fraction required for a pass
// to count as successful. Values outside [0,1] keep the default.
func WithMinSuccessRate(rate float64) Option {
	return func(s *Service) {
		if rate >= 0 && rate <= 1 {
			s.minSuccessRate = rate
		}
	}
}

// WithLogger overrides the default pass logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock pins the time source the retention window is computed from.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a notification pass. The mailer is the same transport
// the notifier sends through; it is taken separately so the pass can
// verify the connection before doing any work.
func NewService(st store.RecordStore, snaps snapshot.Store, engine *statusdiff.Engine, mailer notify.Mailer, notifier *notify.Notifier, opts ...Option) *Service {
	s := &Service{
		store:          st,
		snapshots:      snaps,
		engine:         engine,
		mailer:         mailer,
		notifier:       notifier,
		retentionDays:  DefaultRetentionDays,
		minSuccessRate: DefaultMinSuccessRate,
		logger:         log.New(log.Writer(), "[STATUSRUN] ", log.LstdFlags),
		now:            time.Now,
		metrics:        globalRunMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one pass. The SMTP connection is verified first so a dead
// mail server aborts before the snapshot is touched. Client notifications
// are sent before the snapshot is saved; a save failure is fatal because
// the next pass would otherwise resend every transition. The admin summary
// goes out only when there were changes, and its failure does not fail the
// pass. A pass that delivered less than the minimum fraction returns the
// report together with ErrLowDeliveryRate.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	rep := &Report{Started: s.now()}
	done := s.metrics.recordRun()
	defer done()

	if err := s.mailer.Verify(ctx); err != nil {
		return nil, fmt.Errorf("smtp preflight: %w", err)
	}

	prev, err := s.snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}

	windowed := s.withinWindow(records)
	rep.Records = len(windowed)
	s.metrics.observeWindow(len(windowed))
	s.logger.Printf("read %d records, %d inside the %d-day window", len(records), len(windowed), s.retentionDays)

	res := s.engine.Diff(windowed, prev)
	rep.Evaluated = res.Evaluated
	rep.Skipped = res.Skipped
	rep.Pruned = len(res.Pruned)

	if len(res.Changes) == 0 {
		if err := s.saveSnapshot(ctx, res.Next, rep); err != nil {
			return nil, err
		}
		s.logger.Printf("no status changes, snapshot carries %d tickets", len(res.Next))
		return rep, nil
	}

	sum := notify.Summary{Total: len(res.Changes)}
	for i := range res.Changes {
		change := &res.Changes[i]
		if err := s.notifier.SendStatusUpdate(ctx, &change.Record, change.Current); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, notify.DeliveryFailure{
				TicketID: change.Record.TicketID,
				Status:   string(change.Current),
				Reason:   err.Error(),
			})
			s.metrics.recordNotification(string(change.Current), false)
			s.logger.Printf("status update failed ticket=%s status=%s: %v", change.Record.TicketID, change.Current, err)
			continue
		}
		sum.Sent++
		s.metrics.recordNotification(string(change.Current), true)
	}
	rep.Summary = sum
	s.logger.Printf("notifications: %d sent, %d failed of %d", sum.Sent, sum.Failed, sum.Total)

	if err := s.saveSnapshot(ctx, res.Next, rep); err != nil {
		return nil, err
	}

	if err := s.notifier.SendAdminSummary(ctx, sum); err != nil {
		s.logger.Printf("admin summary failed: %v", err)
	} else {
		rep.AdminNotified = true
	}

	if rate := sum.SuccessRate(); rate < s.minSuccessRate {
		return rep, fmt.Errorf("%w: delivered %d of %d (%.0f%%)", ErrLowDeliveryRate, sum.Sent, sum.Total, rate*100)
	}
	return rep, nil
}

func (s *Service) saveSnapshot(ctx context.Context, snap models.Snapshot, rep *Report) error {
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	rep.SnapshotSize = len(snap)
	s.metrics.observeSnapshot(len(snap))
	return nil
}

// withinWindow keeps records submitted on or after the retention cutoff.
// A record without a submission date is left out: its age is unknown and
// the sheet rows that lack one are invariably old imports.
func (s *Service) withinWindow(records []models.WarrantyRecord) []models.WarrantyRecord {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	var kept []models.WarrantyRecord
	for _, rec := range records {
		if rec.SubmittedAt.IsZero() {
			s.logger.Printf("ticket %s has no submission date, leaving it outside the window", rec.TicketID)
			continue
		}
		if rec.SubmittedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}
