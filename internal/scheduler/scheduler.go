package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	notificationdomain "github.com/smallbiznis/rentflow/internal/notification/domain"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

const periodLayout = "2006-01"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	ObligationSvc   obligationdomain.Service
	ObligationRepo  obligationdomain.Repository
	NotificationSvc notificationdomain.Service
	GenID           *snowflake.Node
	Clock           clock.Clock
	Recoverer       *Recoverer `optional:"true"`
	Locker          *Locker    `optional:"true"`
	Config          Config     `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	obligationSvc   obligationdomain.Service
	obligationRepo  obligationdomain.Repository
	notificationSvc notificationdomain.Service
	recoverer       *Recoverer
	locker          *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.ObligationSvc == nil || p.ObligationRepo == nil || p.NotificationSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		obligationSvc:   p.ObligationSvc,
		obligationRepo:  p.ObligationRepo,
		notificationSvc: p.NotificationSvc,
		recoverer:       p.Recoverer,
		locker:          p.Locker,
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
		s.logJobStart(run)
	}
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout. The next tick picks the work back up.
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
		{"generate_obligations", s.isJobEnabled("generate_obligations"), func(ctx context.Context) error {
			return s.runJob(ctx, "generate_obligations", s.cfg.BatchSize, 30*time.Second, s.GenerateObligationsJob)
		}},
		{"overdue_sweep", s.isJobEnabled("overdue_sweep"), func(ctx context.Context) error {
			return s.runJob(ctx, "overdue_sweep", s.cfg.BatchSize, 30*time.Second, s.OverdueSweepJob)
		}},
		{"penalty_refresh", s.isJobEnabled("penalty_refresh"), func(ctx context.Context) error {
			return s.runJob(ctx, "penalty_refresh", s.cfg.BatchSize, 30*time.Second, s.PenaltyRefreshJob)
		}},
		{"reminders", s.isJobEnabled("reminders"), func(ctx context.Context) error {
			return s.runJob(ctx, "reminders", s.cfg.BatchSize, 60*time.Second, s.RemindersJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	if s.recoverer != nil && s.isJobEnabled("event_recovery") {
		err = errors.Join(err, s.runJob(parent, "event_recovery", s.cfg.BatchSize, 60*time.Second, func(ctx context.Context) error {
			return s.recoverer.SweepStuckEvents(ctx, s.cfg.BatchSize, s.cfg.RecoveryThreshold)
		}))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.runAsLeader(ctx); err != nil {
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

// runAsLeader guards RunOnce with a distributed lock when one is
// configured, so only one replica sweeps per tick.
func (s *Scheduler) runAsLeader(ctx context.Context) error {
	if s.locker == nil {
		return s.RunOnce(ctx)
	}

	token, acquired, err := s.locker.TryLock(ctx, leaderLockKey, s.cfg.LeaderLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("another replica holds the scheduler lock")
		return nil
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), leaderLockKey, token); releaseErr != nil {
			s.log.Warn("scheduler lock release failed", zap.Error(releaseErr))
		}
	}()

	return s.RunOnce(ctx)
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything.
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

// GenerateObligationsJob creates the current period's rent obligations
// for every active lease. Re-running within a period is a no-op per
// lease thanks to the period uniqueness constraint.
func (s *Scheduler) GenerateObligationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "generate_obligations", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	period := s.clock.Now().UTC().Format(periodLayout)
	tally, err := s.obligationSvc.GenerateForPeriod(ctx, period)
	if err != nil {
		s.logSchedulerError(run, "scheduler.generate.failed", "generate_obligations", err,
			zap.String("period", period),
		)
		return err
	}
	run.AddProcessed(tally.Created)
	obsmetrics.Scheduler().AddBatchProcessed("generate_obligations", "obligations", tally.Created)
	if tally.Invalid > 0 {
		s.log.Warn("leases skipped during generation",
			zap.String("period", period),
			zap.Int("invalid", tally.Invalid),
		)
	}
	return nil
}

// OverdueSweepJob flips pending obligations past their due date to
// overdue and stamps the first penalty.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "overdue_sweep", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		cutoff := startOfDay(s.clock.Now())
		batch, err := s.obligationRepo.ListPendingDueBefore(ctx, s.db, cutoff, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(run, "scheduler.sweep.fetch.failed", "overdue_sweep", err)
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			break
		}

		processed := 0
		for _, obligation := range batch {
			if _, err := s.obligationSvc.MarkOverdue(ctx, obligation.ID); err != nil {
				if errors.Is(err, obligationdomain.ErrTransitionRejected) {
					// Another replica or a settlement got there first.
					continue
				}
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(run, "scheduler.sweep.transition.failed", "overdue_sweep", err,
					zap.String("obligation_id", obligation.ID.String()),
				)
				continue
			}
			processed++
		}
		run.AddProcessed(processed)
		obsmetrics.Scheduler().AddBatchProcessed("overdue_sweep", "obligations", processed)
		if processed == 0 {
			break
		}
	}

	return jobErr
}

// PenaltyRefreshJob recomputes penalties on overdue obligations so the
// stored amount tracks the weeks elapsed. Stored penalties only grow.
func (s *Scheduler) PenaltyRefreshJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "penalty_refresh", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	var jobErr error

	offset := 0
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		batch, err := s.obligationRepo.ListOverdue(ctx, s.db, s.cfg.BatchSize, offset)
		if err != nil {
			s.logSchedulerError(run, "scheduler.penalty.fetch.failed", "penalty_refresh", err)
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			break
		}
		offset += len(batch)

		processed := 0
		for _, obligation := range batch {
			if _, err := s.obligationSvc.RefreshPenalty(ctx, obligation.ID); err != nil {
				if errors.Is(err, obligationdomain.ErrTransitionRejected) {
					continue
				}
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(run, "scheduler.penalty.refresh.failed", "penalty_refresh", err,
					zap.String("obligation_id", obligation.ID.String()),
				)
				continue
			}
			processed++
		}
		run.AddProcessed(processed)
		obsmetrics.Scheduler().AddBatchProcessed("penalty_refresh", "obligations", processed)
	}

	return jobErr
}

// RemindersJob sends the dated reminder emails: a heads-up a few days
// before the due date, a notice on the due date, and overdue notices
// to tenant and landlord the day after. Per-day dedup in the
// notification layer keeps the twice-daily sweep from double-sending.
func (s *Scheduler) RemindersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "reminders", s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	today := startOfDay(s.clock.Now())
	passes := []struct {
		template string
		statuses []string
		dueOn    time.Time
	}{
		{notificationdomain.TemplateUpcoming, []string{obligationdomain.StatusPending}, today.AddDate(0, 0, s.cfg.UpcomingOffset)},
		{notificationdomain.TemplateDueToday, []string{obligationdomain.StatusPending}, today},
		{notificationdomain.TemplateOverdue, []string{obligationdomain.StatusOverdue, obligationdomain.StatusPending}, today.AddDate(0, 0, -1)},
		{notificationdomain.TemplateOverdueAlert, []string{obligationdomain.StatusOverdue, obligationdomain.StatusPending}, today.AddDate(0, 0, -1)},
	}

	var jobErr error
	for _, pass := range passes {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		obligations, err := s.obligationRepo.ListByStatusDueOn(ctx, s.db, pass.statuses, pass.dueOn)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(run, "scheduler.reminders.fetch.failed", "reminders", err,
				zap.String("template", pass.template),
			)
			continue
		}

		sent := 0
		for _, obligation := range obligations {
			delivered, err := s.notificationSvc.SendReminder(ctx, obligation, pass.template)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(run, "scheduler.reminders.send.failed", "reminders", err,
					zap.String("obligation_id", obligation.ID.String()),
					zap.String("template", pass.template),
				)
				continue
			}
			if delivered {
				sent++
			}
		}
		run.AddProcessed(sent)
		obsmetrics.Scheduler().AddBatchProcessed("reminders", "reminder_sends", sent)
	}

	return jobErr
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
