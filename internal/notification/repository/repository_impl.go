package repository

import (
	"context"

	"github.com/smallbiznis/rentflow/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, send *domain.ReminderSend) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO reminder_sends (id, obligation_id, template, sent_on, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (obligation_id, template, sent_on) DO NOTHING`,
		send.ID,
		send.ObligationID,
		send.Template,
		send.SentOn,
		send.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
