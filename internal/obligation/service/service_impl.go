package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	leasedomain "github.com/smallbiznis/rentflow/internal/lease/domain"
	"github.com/smallbiznis/rentflow/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/penalty"
	"github.com/smallbiznis/rentflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	LeaseRepo  leasedomain.Repository
	Dunning    *config.DunningConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	leaseRepo  leasedomain.Repository
	dunning    *config.DunningConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("obligation.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		leaseRepo:  p.LeaseRepo,
		dunning:    p.Dunning,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrObligationNotFound
	}
	return item, nil
}

func (s *Service) FindByReference(ctx context.Context, reference string) (*domain.Obligation, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrObligationNotFound
	}
	item, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrObligationNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter, limit int) ([]*domain.Obligation, error) {
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return nil, domain.ErrInvalidStatus
	}
	if filter.ChargeKind != "" && !domain.ValidChargeKind(filter.ChargeKind) {
		return nil, domain.ErrInvalidChargeKind
	}
	return s.repo.List(ctx, s.db, filter, limit)
}

func (s *Service) MarkOverdue(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if item.Status != domain.StatusPending || penalty.WeeksOverdue(item.DueDate, now) == 0 {
		return nil, domain.ErrTransitionRejected
	}

	accrued := penalty.Accrued(item.Amount, item.DueDate, now)
	ok, err := s.repo.MarkOverdue(ctx, s.db, id, accrued, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTransitionRejected
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordStatusTransition(ctx, domain.StatusPending, domain.StatusOverdue)
	}
	s.log.Info("obligation marked overdue",
		zap.String("obligation_id", id.String()),
		zap.Int64("penalty", accrued),
	)

	return s.Get(ctx, id)
}

func (s *Service) RefreshPenalty(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.StatusOverdue {
		return nil, domain.ErrTransitionRejected
	}

	now := s.clock.Now()
	accrued := penalty.Accrued(item.Amount, item.DueDate, now)
	if accrued <= item.PenaltyAmount {
		return item, nil
	}

	if _, err := s.repo.UpdatePenalty(ctx, s.db, id, accrued, now); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Settle(ctx context.Context, req domain.SettleRequest) (*domain.Obligation, error) {
	req.ExternalReference = strings.TrimSpace(req.ExternalReference)
	if req.ExternalReference == "" {
		return nil, domain.ErrDuplicateReference
	}

	item, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if item.Terminal() {
		return nil, domain.ErrTransitionRejected
	}

	now := s.clock.Now()
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	// The penalty freezes at whatever the sweeps had accrued. Stamping a
	// recomputed value here would bill a fee the gateway never collected.
	ok, err := s.repo.Settle(ctx, s.db, req.ID, paidAt, req.ExternalReference, req.Channel, now)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateReference
		}
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTransitionRejected
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordStatusTransition(ctx, item.Status, domain.StatusCompleted)
	}
	s.log.Info("obligation settled",
		zap.String("obligation_id", req.ID.String()),
		zap.String("reference", req.ExternalReference),
		zap.String("channel", req.Channel),
	)

	return s.Get(ctx, req.ID)
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Terminal() {
		return nil, domain.ErrTransitionRejected
	}

	now := s.clock.Now()
	ok, err := s.repo.Fail(ctx, s.db, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTransitionRejected
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordStatusTransition(ctx, item.Status, domain.StatusFailed)
	}
	s.log.Info("obligation failed", zap.String("obligation_id", id.String()))

	return s.Get(ctx, id)
}

func (s *Service) Stats(ctx context.Context, landlordID snowflake.ID) (*domain.Stats, error) {
	totals, err := s.repo.StatusTotals(ctx, s.db, landlordID)
	if err != nil {
		return nil, err
	}

	overdue, err := s.repo.ListOverdueByLandlord(ctx, s.db, landlordID)
	if err != nil {
		return nil, err
	}

	buckets := s.dunning.Get().AgingBuckets
	aging := make([]domain.AgingBucketTotal, len(buckets))
	for i, bucket := range buckets {
		aging[i] = domain.AgingBucketTotal{Label: bucket.Label}
	}

	now := s.clock.Now()
	for _, item := range overdue {
		days := daysOverdue(item.DueDate, now)
		for i, bucket := range buckets {
			if days < bucket.MinDays {
				continue
			}
			if bucket.MaxDays != nil && days > *bucket.MaxDays {
				continue
			}
			aging[i].Count++
			aging[i].Amount += item.TotalDue()
			break
		}
	}

	return &domain.Stats{Totals: totals, Aging: aging}, nil
}

func daysOverdue(due, now time.Time) int {
	due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !today.After(due) {
		return 0
	}
	return int(today.Sub(due) / (24 * time.Hour))
}
