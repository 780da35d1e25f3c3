package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/propsight/prediction-api/internal/models"
)

// Schedules holds cron expressions (standard five-field) for the recurring
// jobs. An empty expression disables that job.
type Schedules struct {
	Run     string
	Actuals string
	Purge   string
}

// Runner is the subset of Pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (*models.RunResult, error)
	CollectActuals(ctx context.Context, sport string) (*CollectResult, error)
	Purge(ctx context.Context) (int64, error)
}

// Scheduler runs prediction generation, actuals collection and purging on
// cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *zap.SugaredLogger
	baseCtx context.Context
}

// NewScheduler registers the configured jobs. Jobs run with baseCtx, so
// canceling it aborts jobs in flight.
func NewScheduler(baseCtx context.Context, runner Runner, schedules Schedules, logger *zap.Logger) (*Scheduler, error) {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		logger:  logger.Sugar(),
		baseCtx: baseCtx,
	}

	jobs := []struct {
		name string
		expr string
		fn   func(context.Context)
	}{
		{"run", schedules.Run, s.runPredictions},
		{"actuals", schedules.Actuals, s.collectActuals},
		{"purge", schedules.Purge, s.purge},
	}
	for _, j := range jobs {
		if j.expr == "" {
			continue
		}
		fn := j.fn
		if _, err := s.cron.AddFunc(j.expr, func() { fn(s.baseCtx) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.expr, err)
		}
		s.logger.Infow("Scheduled job", "job", j.name, "expr", j.expr)
	}
	return s, nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runPredictions(ctx context.Context) {
	if _, err := s.runner.Run(ctx, RunRequest{}); err != nil {
		if errors.Is(err, models.ErrRunInProgress) {
			s.logger.Infow("Scheduled run skipped, previous run still in progress")
			return
		}
		s.logger.Errorw("Scheduled run failed", "error", err)
	}
}

func (s *Scheduler) collectActuals(ctx context.Context) {
	if _, err := s.runner.CollectActuals(ctx, ""); err != nil {
		s.logger.Errorw("Scheduled actuals collection failed", "error", err)
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	if _, err := s.runner.Purge(ctx); err != nil {
		s.logger.Errorw("Scheduled purge failed", "error", err)
	}
}
