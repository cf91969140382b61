package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert records a reminder send. It reports false when the same
	// obligation, template and day was already recorded.
	Insert(ctx context.Context, db *gorm.DB, send *ReminderSend) (bool, error)
}
