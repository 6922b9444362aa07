package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	"github.com/smallbiznis/memberbill/internal/clock"
	obsmetrics "github.com/smallbiznis/memberbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	CycleSvc billingcycledomain.Service
	Locker   Locker `optional:"true"`
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	cycleSvc billingcycledomain.Service
	locker   Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.CycleSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		cycleSvc: p.CycleSvc,
		locker:   p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout, the next tick picks up where this one stopped
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobRecurringBills, s.isJobEnabled(JobRecurringBills), func(ctx context.Context) error {
			return s.withJobLock(ctx, JobRecurringBills, func(ctx context.Context) error {
				return s.runJob(ctx, JobRecurringBills, s.cfg.BatchSize, s.cfg.JobTimeout, s.RecurringBillsJob)
			})
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs
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

// withJobLock runs fn only if this replica wins the job lock. Without a
// locker the job runs unguarded.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	key := jobLockKey(job)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", job, err)
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Info("scheduler.job.deferred",
			zap.String("job", job),
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLockHeld),
		)
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", job), zap.Error(err))
		}
	}()

	return fn(ctx)
}

// RecurringBillsJob claims due members batch by batch until a batch comes
// back short or makes no progress.
func (s *Scheduler) RecurringBillsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecurringBills, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	asOf := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	for pass := 0; pass < s.cfg.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.cycleSvc.EnsureCycleBills(ctx, asOf, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.recurring_bills.failed", JobRecurringBills, err,
				zap.Int("pass", pass),
			)
			return err
		}

		run.AddProcessed(result.BillsCreated)
		run.AddErrors(result.Skipped)
		schedMetrics.AddBatchProcessed(JobRecurringBills, obsmetrics.ResourceMembersDue, result.MembersScanned)
		schedMetrics.AddBatchProcessed(JobRecurringBills, obsmetrics.ResourceCycleBills, result.BillsCreated)

		if result.MembersScanned < s.cfg.BatchSize || result.Skipped >= result.MembersScanned {
			return nil
		}
	}

	s.logger(ctx).Warn("scheduler.recurring_bills.passes_exhausted",
		zap.Int("max_passes", s.cfg.MaxPasses),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return nil
}
