package reinforce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduledRunTimeout bounds one scheduled export.
const scheduledRunTimeout = 5 * time.Minute

type trigger interface {
	Trigger(ctx context.Context) (Job, error)
}

// Scheduler runs Trigger on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron    *cron.Cron
	trigger trigger
	logger  *slog.Logger
}

// NewScheduler parses a standard five-field cron expression or descriptor
// such as "@daily".
func NewScheduler(schedule string, t trigger, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		trigger: t,
		logger:  logger.With("component", "reinforce.scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("reinforce: schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins firing in the background. A nil Scheduler is a no-op.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("scheduled fine-tuning enabled", "next", s.cron.Entries()[0].Next)
}

// Stop halts the schedule and waits for a running export to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledRunTimeout)
	defer cancel()
	job, err := s.trigger.Trigger(ctx)
	if err != nil {
		s.logger.Error("scheduled fine-tuning failed", "error", err)
		return
	}
	s.logger.Info("scheduled fine-tuning finished", "job_id", job.ID, "status", job.Status, "samples", job.Samples)
}
