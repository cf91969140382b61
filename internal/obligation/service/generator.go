package service

import (
	"context"
	"time"

	"github.com/smallbiznis/rentflow/internal/obligation/domain"
	"go.uber.org/zap"
)

const periodLayout = "2006-01"

func (s *Service) GenerateForPeriod(ctx context.Context, period string) (domain.GenerateTally, error) {
	var tally domain.GenerateTally

	month, err := time.Parse(periodLayout, period)
	if err != nil {
		return tally, domain.ErrInvalidPeriod
	}

	leases, err := s.leaseRepo.ListActive(ctx, s.db, s.clock.Now())
	if err != nil {
		return tally, err
	}

	for _, l := range leases {
		if l.RentAmount <= 0 || l.TenantID == 0 {
			tally.Invalid++
			s.log.Warn("skipping lease with invalid terms",
				zap.String("lease_id", l.ID.String()),
				zap.Int64("rent_amount", l.RentAmount),
			)
			continue
		}

		now := s.clock.Now()
		item := &domain.Obligation{
			ID:            s.genID.Generate(),
			TenantID:      l.TenantID,
			LandlordID:    l.LandlordID,
			PropertyID:    l.PropertyID,
			LeaseID:       l.ID,
			Amount:        l.RentAmount,
			DueDate:       dueDateFor(month, l.BillingDay),
			BillingPeriod: period,
			ChargeKind:    domain.ChargeKindRent,
			Status:        domain.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		created, err := s.repo.Insert(ctx, s.db, item)
		if err != nil {
			return tally, err
		}
		if !created {
			tally.Skipped++
			continue
		}

		tally.Created++
		if s.obsMetrics != nil {
			s.obsMetrics.RecordObligationGenerated(ctx, item.ChargeKind)
		}
	}

	s.log.Info("obligation generation finished",
		zap.String("period", period),
		zap.Int("created", tally.Created),
		zap.Int("skipped", tally.Skipped),
		zap.Int("invalid", tally.Invalid),
	)

	return tally, nil
}

// dueDateFor places the due date on the lease billing day within the
// period month, clamped to the last day of shorter months.
func dueDateFor(month time.Time, billingDay int) time.Time {
	if billingDay < 1 {
		billingDay = 1
	}
	lastDay := time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if billingDay > lastDay {
		billingDay = lastDay
	}
	return time.Date(month.Year(), month.Month(), billingDay, 0, 0, 0, 0, time.UTC)
}
