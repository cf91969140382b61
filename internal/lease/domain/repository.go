package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, lease *Lease) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lease, error)
	ListActive(ctx context.Context, db *gorm.DB, asOf time.Time) ([]*Lease, error)
}
