package statusrun

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/proffectiv/warrantyflow/internal/models"
	"github.com/proffectiv/warrantyflow/internal/notify"
	"github.com/proffectiv/warrantyflow/internal/snapshot"
	"github.com/proffectiv/warrantyflow/internal/statusdiff"
	"github.com/proffectiv/warrantyflow/internal/store"
)

const testAdmin = "garantias@proffectiv.example"

var testClock = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	records []models.WarrantyRecord
	listErr error
}

var _ store.RecordStore = (*fakeStore)(nil)

func (f *fakeStore) ListRecords(_ context.Context, brand string) ([]models.WarrantyRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.WarrantyRecord
	for _, rec := range f.records {
		if rec.Brand == brand {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAll(_ context.Context) ([]models.WarrantyRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeStore) AppendRecord(_ context.Context, rec *models.WarrantyRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

type fakeSnapshots struct {
	snap    models.Snapshot
	loadErr error
	saveErr error
	loads   int
	saved   []models.Snapshot
}

var _ snapshot.Store = (*fakeSnapshots)(nil)

func (f *fakeSnapshots) Load(context.Context) (models.Snapshot, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.snap == nil {
		return models.Snapshot{}, nil
	}
	return f.snap.Clone(), nil
}

func (f *fakeSnapshots) Save(_ context.Context, snap models.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, snap.Clone())
	return nil
}

// fakeMailer counts Verify calls and pops one queued error per Send so
// individual deliveries can be made to fail.
type fakeMailer struct {
	sent      []notify.Message
	errs      []error
	verifyErr error
	verified  int
}

var _ notify.Mailer = (*fakeMailer)(nil)

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Verify(context.Context) error {
	m.verified++
	return m.verifyErr
}

func testService(t *testing.T, st store.RecordStore, snaps snapshot.Store, mailer notify.Mailer, opts ...Option) *Service {
	t.Helper()
	discard := log.New(io.Discard, "", 0)
	renderer, err := notify.NewRenderer(notify.WithRenderLogger(discard))
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	notifier := notify.NewNotifier(mailer, renderer, testAdmin, notify.WithNotifierLogger(discard))
	engine := statusdiff.NewEngine(statusdiff.WithLogger(discard))
	opts = append([]Option{
		WithLogger(discard),
		WithClock(func() time.Time { return testClock }),
	}, opts...)
	return NewService(st, snaps, engine, mailer, notifier, opts...)
}

func record(id, brand string, status models.Status, age time.Duration) models.WarrantyRecord {
	return models.WarrantyRecord{
		TicketID:    id,
		Brand:       brand,
		Status:      status,
		SubmittedAt: testClock.Add(-age),
		ClientName:  "Taller " + id,
		ClientEmail: strings.ToLower(id) + "@taller.example",
	}
}

func TestRunNotifiesTransitions(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
		record("T2", "Dare", models.StatusInProgress, 48*time.Hour),
		record("T3", "Kogel", models.StatusInProgress, 72*time.Hour),
	}}
	snaps := &fakeSnapshots{snap: models.Snapshot{
		"T1": models.StatusInProgress,
		"T3": models.StatusInProgress,
	}}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if mailer.verified != 1 {
		t.Errorf("verified %d times, want 1", mailer.verified)
	}
	if rep.Records != 3 || rep.Evaluated != 3 {
		t.Errorf("Records/Evaluated = %d/%d", rep.Records, rep.Evaluated)
	}
	if rep.Summary.Total != 2 || rep.Summary.Sent != 2 || rep.Summary.Failed != 0 {
		t.Errorf("Summary = %+v", rep.Summary)
	}
	if !rep.AdminNotified {
		t.Error("admin summary not sent")
	}

	// T1 advanced, T2 entered tracking, then the admin digest.
	if len(mailer.sent) != 3 {
		t.Fatalf("sent %d mails, want 3", len(mailer.sent))
	}
	first, second, admin := mailer.sent[0], mailer.sent[1], mailer.sent[2]
	if first.To[0] != "t1@taller.example" || !strings.Contains(first.Subject, "Garantía Aceptada") {
		t.Errorf("first mail = %v %q", first.To, first.Subject)
	}
	if second.To[0] != "t2@taller.example" || !strings.Contains(second.Subject, "En Tramitación") {
		t.Errorf("second mail = %v %q", second.To, second.Subject)
	}
	if admin.To[0] != testAdmin || !strings.Contains(admin.Subject, "Resumen Diario") {
		t.Errorf("admin mail = %v %q", admin.To, admin.Subject)
	}

	if len(snaps.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(snaps.saved))
	}
	want := models.Snapshot{
		"T1": models.StatusAccepted,
		"T2": models.StatusInProgress,
		"T3": models.StatusInProgress,
	}
	got := snaps.saved[0]
	if len(got) != len(want) {
		t.Fatalf("saved snapshot = %v, want %v", got, want)
	}
	for id, status := range want {
		if got[id] != status {
			t.Errorf("snapshot[%s] = %q, want %q", id, got[id], status)
		}
	}
	if rep.SnapshotSize != 3 {
		t.Errorf("SnapshotSize = %d", rep.SnapshotSize)
	}
}

func TestRunNoChangesSkipsAdminSummary(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusInProgress, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{snap: models.Snapshot{"T1": models.StatusInProgress}}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d mails on an unchanged sheet", len(mailer.sent))
	}
	if len(snaps.saved) != 1 {
		t.Errorf("saved %d snapshots, want carry-over save", len(snaps.saved))
	}
	if rep.Summary.Total != 0 || rep.AdminNotified {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunEmptyWorkbookSucceeds(t *testing.T) {
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{}
	svc := testService(t, &fakeStore{}, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Records != 0 || len(mailer.sent) != 0 {
		t.Errorf("rep.Records = %d, sent = %d", rep.Records, len(mailer.sent))
	}
	if len(snaps.saved) != 1 || len(snaps.saved[0]) != 0 {
		t.Errorf("saved = %v", snaps.saved)
	}
}

func TestRunPreflightAborts(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{verifyErr: errors.New("smtp: connect refused")}
	svc := testService(t, st, snaps, mailer)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with a dead mail server")
	}
	if snaps.loads != 0 || len(snaps.saved) != 0 {
		t.Error("snapshot touched despite preflight failure")
	}
	if len(mailer.sent) != 0 {
		t.Error("mail sent despite preflight failure")
	}
}

func TestRunCorruptSnapshotAborts(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{loadErr: snapshot.ErrCorrupt}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	_, err := svc.Run(context.Background())
	if !errors.Is(err, snapshot.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if len(mailer.sent) != 0 || len(snaps.saved) != 0 {
		t.Error("corrupt snapshot still produced side effects")
	}
}

func TestRunReadFailureAborts(t *testing.T) {
	st := &fakeStore{listErr: errors.New("dropbox: download failed")}
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded without a readable workbook")
	}
	if len(snaps.saved) != 0 {
		t.Error("snapshot saved despite read failure")
	}
}

func TestRunRetentionWindow(t *testing.T) {
	old := record("OLD", "Conway", models.StatusAccepted, 91*24*time.Hour)
	edge := record("EDGE", "Conway", models.StatusAccepted, 90*24*time.Hour)
	undated := record("NODATE", "Dare", models.StatusAccepted, 0)
	undated.SubmittedAt = time.Time{}

	st := &fakeStore{records: []models.WarrantyRecord{old, edge, undated}}
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Only the ticket sitting exactly on the cutoff is still inside.
	if rep.Records != 1 {
		t.Fatalf("Records = %d, want 1", rep.Records)
	}
	if rep.Summary.Sent != 1 || mailer.sent[0].To[0] != "edge@taller.example" {
		t.Errorf("notified %v", mailer.sent)
	}
}

func TestRunShortRetentionOverride(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 10*24*time.Hour),
	}}
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer, WithRetentionDays(7))

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Records != 0 || len(mailer.sent) != 0 {
		t.Errorf("ticket outside the shortened window was processed: %+v", rep)
	}
}

func TestRunPrunesDepartedTickets(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusInProgress, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{snap: models.Snapshot{
		"T1":   models.StatusInProgress,
		"GONE": models.StatusAccepted,
	}}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", rep.Pruned)
	}
	if _, ok := snaps.saved[0]["GONE"]; ok {
		t.Error("departed ticket still in the saved snapshot")
	}
}

func TestRunSaveFailureFatal(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{saveErr: errors.New("disk full")}
	mailer := &fakeMailer{}
	svc := testService(t, st, snaps, mailer)

	_, err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with an unsavable snapshot")
	}
	if !strings.Contains(err.Error(), "save snapshot") {
		t.Errorf("err = %v", err)
	}
	// The client mail went out before the save; the admin digest must not.
	if len(mailer.sent) != 1 {
		t.Errorf("sent %d mails, want the client notification only", len(mailer.sent))
	}
}

func TestRunAdminSummaryFailureTolerated(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
	}}
	snaps := &fakeSnapshots{}
	mailer := &fakeMailer{errs: []error{nil, errors.New("smtp: mailbox full")}}
	svc := testService(t, st, snaps, mailer)

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.AdminNotified {
		t.Error("AdminNotified = true after digest failure")
	}
	if rep.Summary.Sent != 1 {
		t.Errorf("Summary = %+v", rep.Summary)
	}
	if len(snaps.saved) != 1 {
		t.Error("snapshot not saved")
	}
}

func TestRunLowDeliveryRate(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("T1", "Conway", models.StatusAccepted, 24*time.Hour),
		record("T2", "Dare", models.StatusRejected, 48*time.Hour),
	}}

	t.Run("below threshold fails the pass", func(t *testing.T) {
		snaps := &fakeSnapshots{}
		mailer := &fakeMailer{errs: []error{errors.New("smtp: rejected")}}
		svc := testService(t, st, snaps, mailer)

		rep, err := svc.Run(context.Background())
		if !errors.Is(err, ErrLowDeliveryRate) {
			t.Fatalf("err = %v, want ErrLowDeliveryRate", err)
		}
		if rep == nil || rep.Summary.Sent != 1 || rep.Summary.Failed != 1 {
			t.Fatalf("rep = %+v", rep)
		}
		if len(rep.Summary.Failures) != 1 || rep.Summary.Failures[0].TicketID != "T1" {
			t.Errorf("Failures = %+v", rep.Summary.Failures)
		}
		// The snapshot keeps both transitions; failed ones are not retried.
		if len(snaps.saved) != 1 || len(snaps.saved[0]) != 2 {
			t.Errorf("saved = %v", snaps.saved)
		}
		// The digest still goes out and names the failed ticket.
		admin := mailer.sent[len(mailer.sent)-1]
		if admin.To[0] != testAdmin || !strings.Contains(admin.Text, "T1") {
			t.Errorf("admin digest = %v %q", admin.To, admin.Text)
		}
	})

	t.Run("lowered threshold passes", func(t *testing.T) {
		snaps := &fakeSnapshots{}
		mailer := &fakeMailer{errs: []error{errors.New("smtp: rejected")}}
		svc := testService(t, st, snaps, mailer, WithMinSuccessRate(0.5))

		if _, err := svc.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	})
}

func TestSummary(t *testing.T) {
	st := &fakeStore{records: []models.WarrantyRecord{
		record("A", "Conway", models.StatusInProgress, 24*time.Hour),
		record("B", "Dare", models.StatusAccepted, 48*time.Hour),
	}}
	snaps := &fakeSnapshots{snap: models.Snapshot{
		"A": models.StatusInProgress,
		"B": models.StatusAccepted,
		"C": models.StatusInProgress,
	}}
	svc := testService(t, st, snaps, &fakeMailer{})

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTracked != 3 {
		t.Errorf("TotalTracked = %d", sum.TotalTracked)
	}
	if sum.ByStatus["Tramitada"] != 2 || sum.ByStatus["Aceptada"] != 1 {
		t.Errorf("ByStatus = %v", sum.ByStatus)
	}
	if sum.ByBrand["Conway"] != 1 || sum.ByBrand["Dare"] != 1 || sum.ByBrand["Unknown"] != 1 {
		t.Errorf("ByBrand = %v", sum.ByBrand)
	}
}

func TestSummaryWithoutWorkbook(t *testing.T) {
	st := &fakeStore{listErr: store.ErrWorkbookMissing}
	snaps := &fakeSnapshots{snap: models.Snapshot{"A": models.StatusAccepted}}
	svc := testService(t, st, snaps, &fakeMailer{})

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTracked != 1 || sum.ByBrand["Unknown"] != 1 {
		t.Errorf("summary = %+v", sum)
	}
}
