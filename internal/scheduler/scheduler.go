// Package scheduler runs the periodic jobs of the service, most notably
// the status notification pass. Jobs are cron-scheduled, guarded against
// overlapping ticks and optionally gated to business days.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/robfig/cron/v3"
)

// Handler is the unit of work a job executes.
type Handler func(ctx context.Context) error

// Job binds a registered handler to a cron schedule.
type Job struct {
	Name     string
	Slug     string
	Schedule string
	Handler  string
	// Timeout bounds a single execution; zero means no deadline.
	Timeout time.Duration
}

// Service owns the cron engine and the job registry.
type Service struct {
	cron     *cron.Cron
	parser   cron.Parser
	logger   *log.Logger
	location *time.Location
	calendar *cal.BusinessCalendar
	runner   statusRunner
	now      func() time.Time
	metrics  *jobMetrics

	mu       sync.Mutex
	handlers map[string]Handler
	wrapped  map[string]func()
	jobs     []Job
}

// NewService builds a scheduler. Jobs are registered afterwards with
// AddJob; nothing fires until Start.
func NewService(opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := o.Cron
	if c == nil {
		c = cron.New(cron.WithLocation(o.Location))
	}

	s := &Service{
		cron:     c,
		parser:   o.Parser,
		logger:   o.Logger,
		location: o.Location,
		calendar: o.Calendar,
		runner:   o.Runner,
		now:      o.Clock,
		metrics:  globalJobMetrics(),
		handlers: make(map[string]Handler),
		wrapped:  make(map[string]func()),
	}
	s.registerBuiltinHandlers()
	return s
}

// RegisterHandler makes a handler available to AddJob under the given name.
func (s *Service) RegisterHandler(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// AddJob schedules a job. The handler must be registered and the slug
// unique; the cron expression is validated here rather than at tick time.
func (s *Service) AddJob(job Job) error {
	if job.Slug == "" {
		return fmt.Errorf("scheduler: job %q has no slug", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wrapped[job.Slug]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Slug)
	}
	handler, ok := s.handlers[job.Handler]
	if !ok {
		return fmt.Errorf("scheduler: job %q wants unknown handler %q", job.Slug, job.Handler)
	}
	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: job %q schedule %q: %w", job.Slug, job.Schedule, err)
	}

	run := s.wrap(job, handler)
	s.cron.Schedule(schedule, cron.FuncJob(run))
	s.wrapped[job.Slug] = run
	s.jobs = append(s.jobs, job)
	return nil
}

// Trigger runs a scheduled job out of band, through the same overlap
// guard and calendar gate a cron tick goes through.
func (s *Service) Trigger(slug string) error {
	s.mu.Lock()
	run, ok := s.wrapped[slug]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no job %q", slug)
	}
	run()
	return nil
}

// Jobs returns the registered jobs in registration order.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start begins firing scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	s.logger.Printf("started with %d job(s)", n)
}

// Stop halts scheduling. The returned context is done once in-flight
// jobs have finished.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// wrap builds the closure the cron engine fires. A tick that arrives
// while the previous one still runs is dropped, not queued.
func (s *Service) wrap(job Job, handler Handler) func() {
	var busy atomic.Bool
	return func() {
		if !busy.CompareAndSwap(false, true) {
			s.logger.Printf("%s still running, skipping this tick", job.Slug)
			s.metrics.recordSkip(job.Slug, "overlap")
			return
		}
		defer busy.Store(false)

		if s.calendar != nil {
			today := s.now().In(s.location)
			if !s.calendar.IsWorkday(today) {
				s.logger.Printf("%s skipped, %s is not a business day", job.Slug, today.Format("2006-01-02"))
				s.metrics.recordSkip(job.Slug, "calendar")
				return
			}
		}

		ctx := context.Background()
		cancel := func() {}
		if job.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		}
		defer cancel()

		done := s.metrics.timeJob(job.Slug)
		err := handler(ctx)
		done()
		if err != nil {
			s.logger.Printf("%s failed: %v", job.Slug, err)
			s.metrics.recordRun(job.Slug, false)
			return
		}
		s.metrics.recordRun(job.Slug, true)
	}
}
