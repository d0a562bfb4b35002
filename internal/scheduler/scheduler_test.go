package scheduler

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/proffectiv/warrantyflow/internal/statusrun"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	started chan struct{}
	release chan struct{}
	err     error
}

func (r *fakeRunner) Run(ctx context.Context) (*statusrun.Report, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return &statusrun.Report{}, r.err
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func testScheduler(t *testing.T, runner statusRunner, opts ...Option) *Service {
	t.Helper()
	discard := log.New(io.Discard, "", 0)
	opts = append([]Option{WithLogger(discard), WithStatusRunner(runner)}, opts...)
	return NewService(opts...)
}

func TestAddJobValidations(t *testing.T) {
	t.Run("missing slug", func(t *testing.T) {
		svc := testScheduler(t, &fakeRunner{})
		err := svc.AddJob(Job{Name: "x", Handler: "status.run", Schedule: "0 9 * * *"})
		if err == nil {
			t.Fatal("expected error for job without slug")
		}
	})

	t.Run("unknown handler", func(t *testing.T) {
		svc := testScheduler(t, &fakeRunner{})
		err := svc.AddJob(Job{Slug: "x", Handler: "no.such", Schedule: "0 9 * * *"})
		if err == nil {
			t.Fatal("expected error for unknown handler")
		}
	})

	t.Run("bad schedule", func(t *testing.T) {
		svc := testScheduler(t, &fakeRunner{})
		err := svc.AddJob(Job{Slug: "x", Handler: "status.run", Schedule: "not cron"})
		if err == nil {
			t.Fatal("expected error for bad cron expression")
		}
	})

	t.Run("duplicate slug", func(t *testing.T) {
		svc := testScheduler(t, &fakeRunner{})
		if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
			t.Fatalf("AddJob: %v", err)
		}
		if err := svc.AddJob(StatusJob("0 10 * * *")); err == nil {
			t.Fatal("expected error for duplicate slug")
		}
	})
}

func TestTriggerRunsStatusPass(t *testing.T) {
	runner := &fakeRunner{}
	svc := testScheduler(t, runner)
	if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if err := svc.Trigger("status-pass"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if got := runner.count(); got != 1 {
		t.Fatalf("runner ran %d times, want 1", got)
	}

	if err := svc.Trigger("no-such-job"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestTriggerWithoutRunner(t *testing.T) {
	svc := testScheduler(t, nil)
	if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := svc.Trigger("status-pass"); err != nil {
		t.Fatalf("Trigger without runner: %v", err)
	}
}

func TestOverlappingTickSkipped(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := testScheduler(t, runner)
	if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Trigger("status-pass")
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	// Second tick while the first is still running.
	if err := svc.Trigger("status-pass"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	close(runner.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never finished")
	}

	if got := runner.count(); got != 1 {
		t.Fatalf("runner ran %d times, want 1", got)
	}
}

func TestBusinessDayGate(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		runs int
	}{
		{
			name: "tuesday runs",
			now:  time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC),
			runs: 1,
		},
		{
			name: "saturday skipped",
			now:  time.Date(2026, 6, 13, 9, 0, 0, 0, time.UTC),
			runs: 0,
		},
		{
			name: "new year skipped",
			now:  time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
			runs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			svc := testScheduler(t, runner,
				WithBusinessDayGate(SpanishCalendar()),
				WithClock(func() time.Time { return tt.now }),
			)
			if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
				t.Fatalf("AddJob: %v", err)
			}
			if err := svc.Trigger("status-pass"); err != nil {
				t.Fatalf("Trigger: %v", err)
			}
			if got := runner.count(); got != tt.runs {
				t.Fatalf("runner ran %d times, want %d", got, tt.runs)
			}
		})
	}
}

func TestStatusJob(t *testing.T) {
	job := StatusJob("*/5 * * * *")
	if job.Slug != "status-pass" {
		t.Errorf("Slug = %q", job.Slug)
	}
	if job.Handler != "status.run" {
		t.Errorf("Handler = %q", job.Handler)
	}
	if job.Schedule != "*/5 * * * *" {
		t.Errorf("Schedule = %q", job.Schedule)
	}
	if job.Timeout <= 0 {
		t.Error("expected a default timeout")
	}
}

func TestStartStop(t *testing.T) {
	svc := testScheduler(t, &fakeRunner{})
	if err := svc.AddJob(StatusJob("0 9 * * *")); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	svc.Start()
	select {
	case <-svc.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not settle")
	}

	if got := len(svc.Jobs()); got != 1 {
		t.Fatalf("Jobs() = %d, want 1", got)
	}
}
