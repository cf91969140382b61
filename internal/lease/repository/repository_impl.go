package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/lease/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, lease *domain.Lease) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO leases (id, tenant_id, landlord_id, property_id, unit_number, rent_amount, billing_day, start_date, end_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lease.ID,
		lease.TenantID,
		lease.LandlordID,
		lease.PropertyID,
		lease.UnitNumber,
		lease.RentAmount,
		lease.BillingDay,
		lease.StartDate,
		lease.EndDate,
		lease.Status,
		lease.CreatedAt,
		lease.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lease, error) {
	var lease domain.Lease
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, property_id, unit_number, rent_amount, billing_day, start_date, end_date, status, created_at, updated_at
		 FROM leases WHERE id = ?`,
		id,
	).Scan(&lease).Error
	if err != nil {
		return nil, err
	}
	if lease.ID == 0 {
		return nil, nil
	}
	return &lease, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, asOf time.Time) ([]*domain.Lease, error) {
	var leases []*domain.Lease
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, landlord_id, property_id, unit_number, rent_amount, billing_day, start_date, end_date, status, created_at, updated_at
		 FROM leases
		 WHERE status = ? AND start_date <= ? AND end_date >= ?
		 ORDER BY id`,
		domain.StatusActive,
		asOf,
		asOf,
	).Scan(&leases).Error
	if err != nil {
		return nil, err
	}
	return leases, nil
}
