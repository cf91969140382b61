package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reminder templates. One reminder per obligation, template and calendar
// day is ever sent.
const (
	TemplateUpcoming     = "upcoming"
	TemplateDueToday     = "due_today"
	TemplateOverdue      = "overdue"
	TemplateReceived     = "payment_received"
	TemplateOverdueAlert = "overdue_alert"
)

type ReminderSend struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ObligationID snowflake.ID `gorm:"not null" json:"obligation_id"`
	Template     string       `gorm:"not null" json:"template"`
	SentOn       time.Time    `gorm:"not null" json:"sent_on"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ReminderSend) TableName() string { return "reminder_sends" }
