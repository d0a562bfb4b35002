package scheduler

import (
	"log"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/robfig/cron/v3"
)

type options struct {
	Logger   *log.Logger
	Cron     *cron.Cron
	Parser   cron.Parser
	Location *time.Location
	Calendar *cal.BusinessCalendar
	Runner   statusRunner
	Clock    func() time.Time
}

// Option applies configuration to the scheduler service.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:   log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		Parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		Location: time.UTC,
		Clock:    time.Now,
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithCron supplies a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithCronParser replaces the cron expression parser.
func WithCronParser(p cron.Parser) Option {
	return func(o *options) {
		o.Parser = p
	}
}

// WithLocation sets the timezone jobs are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

// WithBusinessDayGate makes jobs run on working days of the given
// calendar only. Ticks on weekends and holidays are skipped.
func WithBusinessDayGate(c *cal.BusinessCalendar) Option {
	return func(o *options) {
		o.Calendar = c
	}
}

// WithStatusRunner injects the status pass executed by the builtin job.
func WithStatusRunner(r statusRunner) Option {
	return func(o *options) {
		o.Runner = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.Clock = now
		}
	}
}
