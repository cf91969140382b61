package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/obligation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, obligation *domain.Obligation) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO obligations (
			id, tenant_id, landlord_id, property_id, lease_id, amount, due_date,
			billing_period, charge_kind, status, penalty_amount, paid_date,
			external_reference, channel, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, billing_period, charge_kind) DO NOTHING`,
		obligation.ID,
		obligation.TenantID,
		obligation.LandlordID,
		obligation.PropertyID,
		obligation.LeaseID,
		obligation.Amount,
		obligation.DueDate,
		obligation.BillingPeriod,
		obligation.ChargeKind,
		obligation.Status,
		obligation.PenaltyAmount,
		obligation.PaidDate,
		obligation.ExternalReference,
		obligation.Channel,
		obligation.CreatedAt,
		obligation.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

const selectColumns = `id, tenant_id, landlord_id, property_id, lease_id, amount, due_date,
	billing_period, charge_kind, status, penalty_amount, paid_date,
	external_reference, channel, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Obligation, error) {
	var item domain.Obligation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM obligations WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Obligation, error) {
	var item domain.Obligation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM obligations WHERE external_reference = ? LIMIT 1`,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, limit int) ([]*domain.Obligation, error) {
	stmt := db.WithContext(ctx).Model(&domain.Obligation{})
	if filter.TenantID != 0 {
		stmt = stmt.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.LandlordID != 0 {
		stmt = stmt.Where("landlord_id = ?", filter.LandlordID)
	}
	if filter.LeaseID != 0 {
		stmt = stmt.Where("lease_id = ?", filter.LeaseID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ChargeKind != "" {
		stmt = stmt.Where("charge_kind = ?", filter.ChargeKind)
	}
	if filter.BillingPeriod != "" {
		stmt = stmt.Where("billing_period = ?", filter.BillingPeriod)
	}
	if filter.DueFrom != nil {
		stmt = stmt.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		stmt = stmt.Where("due_date <= ?", *filter.DueTo)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var items []*domain.Obligation
	err := stmt.Order("due_date desc, id desc").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingDueBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Obligation, error) {
	var items []*domain.Obligation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM obligations
		 WHERE status = ? AND due_date < ?
		 ORDER BY due_date, id
		 LIMIT ?`,
		domain.StatusPending,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, limit, offset int) ([]*domain.Obligation, error) {
	if offset < 0 {
		offset = 0
	}
	var items []*domain.Obligation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM obligations
		 WHERE status = ?
		 ORDER BY due_date, id
		 LIMIT ? OFFSET ?`,
		domain.StatusOverdue,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByStatusDueOn(ctx context.Context, db *gorm.DB, statuses []string, due time.Time) ([]*domain.Obligation, error) {
	dayStart := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var items []*domain.Obligation
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM obligations
		 WHERE status IN ? AND due_date >= ? AND due_date < ?
		 ORDER BY id`,
		statuses,
		dayStart,
		dayEnd,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE obligations
		 SET status = ?, penalty_amount = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusOverdue,
		penalty,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdatePenalty(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty int64, now time.Time) (bool, error) {
	// The penalty only ever grows. A smaller recomputed value means another
	// writer got there first, so the row is left alone.
	res := db.WithContext(ctx).Exec(
		`UPDATE obligations
		 SET penalty_amount = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND penalty_amount < ?`,
		penalty,
		now,
		id,
		domain.StatusOverdue,
		penalty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, reference, channel string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE obligations
		 SET status = ?, paid_date = ?, external_reference = ?, channel = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusCompleted,
		paidAt,
		reference,
		channel,
		now,
		id,
		[]string{domain.StatusPending, domain.StatusOverdue},
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Fail(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE obligations
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.StatusFailed,
		now,
		id,
		[]string{domain.StatusPending, domain.StatusOverdue},
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) StatusTotals(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]domain.StatusTotal, error) {
	stmt := db.WithContext(ctx).Model(&domain.Obligation{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount + penalty_amount), 0) AS amount").
		Group("status")
	if landlordID != 0 {
		stmt = stmt.Where("landlord_id = ?", landlordID)
	}

	var totals []domain.StatusTotal
	if err := stmt.Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) ListOverdueByLandlord(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]*domain.Obligation, error) {
	stmt := db.WithContext(ctx).Model(&domain.Obligation{}).
		Where("status = ?", domain.StatusOverdue)
	if landlordID != 0 {
		stmt = stmt.Where("landlord_id = ?", landlordID)
	}

	var items []*domain.Obligation
	if err := stmt.Order("due_date, id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
