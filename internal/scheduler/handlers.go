package scheduler

import (
	"context"
	"time"

	"github.com/proffectiv/warrantyflow/internal/statusrun"
)

type statusRunner interface {
	Run(ctx context.Context) (*statusrun.Report, error)
}

func (s *Service) registerBuiltinHandlers() {
	s.RegisterHandler("status.run", s.handleStatusRun)
}

func (s *Service) handleStatusRun(ctx context.Context) error {
	if s.runner == nil {
		s.logger.Printf("status runner unavailable, skipping pass")
		return nil
	}
	rep, err := s.runner.Run(ctx)
	if err != nil {
		return err
	}
	if rep != nil {
		s.logger.Printf("status pass sent %d of %d update(s)", rep.Summary.Sent, rep.Summary.Total)
	}
	return nil
}

// StatusJob is the builtin notification pass on the given cron schedule.
func StatusJob(schedule string) Job {
	return Job{
		Name:     "Status Update Notifications",
		Slug:     "status-pass",
		Handler:  "status.run",
		Schedule: schedule,
		Timeout:  10 * time.Minute,
	}
}
