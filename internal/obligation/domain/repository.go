package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusTotal aggregates obligations in one lifecycle state.
type StatusTotal struct {
	Status string `gorm:"column:status" json:"status"`
	Count  int64  `gorm:"column:count" json:"count"`
	Amount int64  `gorm:"column:amount" json:"amount"`
}

type ListFilter struct {
	TenantID      snowflake.ID
	LandlordID    snowflake.ID
	LeaseID       snowflake.ID
	Status        string
	ChargeKind    string
	BillingPeriod string
	DueFrom       *time.Time
	DueTo         *time.Time
}

type Repository interface {
	// Insert stores a new obligation. It reports false when an obligation
	// for the same tenant, billing period and charge kind already exists.
	Insert(ctx context.Context, db *gorm.DB, obligation *Obligation) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Obligation, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Obligation, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, limit int) ([]*Obligation, error)

	// ListPendingDueBefore returns pending obligations whose due date is
	// strictly before the cutoff, oldest first.
	ListPendingDueBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Obligation, error)

	// ListOverdue pages through obligations currently in the overdue state.
	ListOverdue(ctx context.Context, db *gorm.DB, limit, offset int) ([]*Obligation, error)

	// ListByStatusDueOn returns obligations in any of the given states due
	// on the given calendar day.
	ListByStatusDueOn(ctx context.Context, db *gorm.DB, statuses []string, due time.Time) ([]*Obligation, error)

	// The transition methods below are conditional updates guarded by the
	// current status. Each reports false when the guard did not match, in
	// which case the row was left untouched.

	MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty int64, now time.Time) (bool, error)
	UpdatePenalty(ctx context.Context, db *gorm.DB, id snowflake.ID, penalty int64, now time.Time) (bool, error)
	Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, reference, channel string, now time.Time) (bool, error)
	Fail(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	StatusTotals(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]StatusTotal, error)
	ListOverdueByLandlord(ctx context.Context, db *gorm.DB, landlordID snowflake.ID) ([]*Obligation, error)
}
