package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	KindTenant   = "tenant"
	KindLandlord = "landlord"
)

type Party struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Kind      string       `gorm:"not null" json:"kind"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `gorm:"not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
