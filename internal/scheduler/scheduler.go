package scheduler

import (
	"context"
	"fmt"
	"time"

	"sales_aggregator/internal/sales"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// DefaultSpec fires daily at 00:00 UTC.
const DefaultSpec = "0 0 * * *"

// Job is a unit of scheduled work.
type Job interface {
	Run(ctx context.Context) (sales.ResetReport, error)
}

// Scheduler runs a Job on a standard five-field cron schedule in UTC.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	job      Job
	timeout  time.Duration
	logger   *zap.Logger
	cron     *cron.Cron
}

// New parses spec and returns a Scheduler that has not been started.
func New(spec string, job Job, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		job:      job,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "scheduler")),
	}, nil
}

// Next returns the first fire time after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now.UTC())
}

// Start fires the job on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.NewWithLocation(time.UTC)
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Tick(ctx) }))
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next_run", s.Next(time.Now())))

	go func() {
		<-ctx.Done()
		s.cron.Stop()
		s.logger.Info("scheduler stopped")
	}()
}

// Tick runs the job once. Failures are logged and left to the next tick or a
// manual rerun.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.job.Run(runCtx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.String("run_id", report.RunID), zap.Error(err))
		return
	}
	s.logger.Info("scheduled run complete",
		zap.String("run_id", report.RunID),
		zap.Int("users", report.Users),
		zap.Time("next_run", s.Next(time.Now())),
	)
}
