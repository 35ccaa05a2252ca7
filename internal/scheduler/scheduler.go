package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/leadgate/leadgate/internal/audit/domain"
	"github.com/leadgate/leadgate/internal/clock"
	invoicedomain "github.com/leadgate/leadgate/internal/invoice/domain"
	obscontext "github.com/leadgate/leadgate/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcileCurrent  = "reconcile_current_month"
	JobReconcilePrevious = "reconcile_previous_month"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

// Scheduler keeps the monthly invoices of legacy brokers in step with lead
// qualifications.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvoiceSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	run := s.newJobRun(name)
	s.logJobStart(run)

	err := fn(ctx, run)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks the month up again
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()
	previous := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)

	var err error
	if s.isJobEnabled(JobReconcileCurrent) {
		err = errors.Join(err, s.runJob(ctx, JobReconcileCurrent, func(ctx context.Context, run *jobRun) error {
			return s.reconcile(ctx, run, int(now.Month()), now.Year())
		}))
	}
	if s.isJobEnabled(JobReconcilePrevious) && now.Day() <= s.cfg.GraceDays {
		err = errors.Join(err, s.runJob(ctx, JobReconcilePrevious, func(ctx context.Context, run *jobRun) error {
			return s.reconcile(ctx, run, int(previous.Month()), previous.Year())
		}))
	}
	return err
}

func (s *Scheduler) reconcile(ctx context.Context, run *jobRun, month, year int) error {
	result, err := s.invoiceSvc.ReconcileMonth(ctx, month, year)
	run.AddProcessed(result.Created + result.Updated)
	if errors.Is(err, invoicedomain.ErrReconcileRunning) {
		s.log.Info("reconcile already running elsewhere",
			zap.String("job", run.job),
			zap.Int("month", month),
			zap.Int("year", year),
		)
		return nil
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
