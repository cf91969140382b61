package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the stored copy of a gateway notification. The unique
// (provider, provider_event_id) pair makes redelivery harmless.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Reference       string         `json:"reference" gorm:"type:text;not null"`
	TenantID        snowflake.ID   `json:"tenant_id" gorm:"not null"`
	LeaseID         *snowflake.ID  `json:"lease_id"`
	Amount          int64          `json:"amount" gorm:"not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "gateway_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is the canonical gateway event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              string
	TenantID          snowflake.ID
	ObligationID      *snowflake.ID
	LeaseID           *snowflake.ID
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}

// Reference is the identifier stamped onto the settled obligation.
func (e *PaymentEvent) Reference() string {
	if e.ProviderPaymentID != "" {
		return e.ProviderPaymentID
	}
	return e.ProviderEventID
}
