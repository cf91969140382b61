package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusActive     = "active"
	StatusTerminated = "terminated"
	StatusExpired    = "expired"
)

type Lease struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	LandlordID snowflake.ID `gorm:"not null;index" json:"landlord_id"`
	PropertyID snowflake.ID `gorm:"not null" json:"property_id"`
	UnitNumber string       `gorm:"not null;default:''" json:"unit_number,omitempty"`
	RentAmount int64        `gorm:"not null" json:"rent_amount"`
	BillingDay int          `gorm:"not null;default:1" json:"billing_day"`
	StartDate  time.Time    `gorm:"not null" json:"start_date"`
	EndDate    time.Time    `gorm:"not null" json:"end_date"`
	Status     string       `gorm:"not null;default:'active'" json:"status"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Active reports whether the lease covers the given instant.
func (l *Lease) Active(asOf time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	return !asOf.Before(l.StartDate) && !asOf.After(l.EndDate)
}
