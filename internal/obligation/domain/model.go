package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending   = "pending"
	StatusOverdue   = "overdue"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	ChargeKindRent        = "rent"
	ChargeKindDeposit     = "deposit"
	ChargeKindUtilities   = "utilities"
	ChargeKindMaintenance = "maintenance"
	ChargeKindOther       = "other"
)

const (
	ChannelStripe = "stripe"
	ChannelMomo   = "momo"
)

// Obligation is a single dated amount a tenant owes under a lease.
type Obligation struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	LandlordID        snowflake.ID `gorm:"not null;index" json:"landlord_id"`
	PropertyID        snowflake.ID `gorm:"not null" json:"property_id"`
	LeaseID           snowflake.ID `gorm:"not null" json:"lease_id"`
	Amount            int64        `gorm:"not null" json:"amount"`
	DueDate           time.Time    `gorm:"not null" json:"due_date"`
	BillingPeriod     string       `gorm:"not null" json:"billing_period"`
	ChargeKind        string       `gorm:"not null;default:'rent'" json:"charge_kind"`
	Status            string       `gorm:"not null;default:'pending'" json:"status"`
	PenaltyAmount     int64        `gorm:"not null;default:0" json:"penalty_amount"`
	PaidDate          *time.Time   `json:"paid_date,omitempty"`
	ExternalReference *string      `json:"external_reference,omitempty"`
	Channel           *string      `json:"channel,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Obligation) TableName() string { return "obligations" }

// Terminal reports whether the obligation can no longer change status.
func (o *Obligation) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// TotalDue is the base amount plus any accrued penalty.
func (o *Obligation) TotalDue() int64 {
	return o.Amount + o.PenaltyAmount
}

// ValidChargeKind reports whether kind is a known charge classification.
func ValidChargeKind(kind string) bool {
	switch kind {
	case ChargeKindRent, ChargeKindDeposit, ChargeKindUtilities, ChargeKindMaintenance, ChargeKindOther:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether status is a known lifecycle state.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusOverdue, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}
