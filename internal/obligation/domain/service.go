package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GenerateTally summarizes one generation pass over the active leases.
type GenerateTally struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

type SettleRequest struct {
	ID                snowflake.ID
	PaidAt            time.Time
	ExternalReference string
	Channel           string
}

// AgingBucketTotal aggregates overdue exposure for one dunning bucket.
type AgingBucketTotal struct {
	Label  string `json:"label"`
	Count  int64  `json:"count"`
	Amount int64  `json:"amount"`
}

// Stats is the landlord-facing collection summary.
type Stats struct {
	Totals []StatusTotal      `json:"totals"`
	Aging  []AgingBucketTotal `json:"aging"`
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Obligation, error)
	FindByReference(ctx context.Context, reference string) (*Obligation, error)
	List(ctx context.Context, filter ListFilter, limit int) ([]*Obligation, error)

	// GenerateForPeriod creates one rent obligation per active lease for
	// the given billing period. Re-running a period is safe.
	GenerateForPeriod(ctx context.Context, period string) (GenerateTally, error)

	// MarkOverdue moves a pending obligation past its due date to overdue
	// and stamps the accrued penalty.
	MarkOverdue(ctx context.Context, id snowflake.ID) (*Obligation, error)

	// RefreshPenalty recomputes the penalty on an overdue obligation. The
	// stored penalty never decreases.
	RefreshPenalty(ctx context.Context, id snowflake.ID) (*Obligation, error)

	// Settle completes a pending or overdue obligation with the gateway
	// reference that paid it.
	Settle(ctx context.Context, req SettleRequest) (*Obligation, error)

	// Fail moves a pending or overdue obligation to the failed state.
	Fail(ctx context.Context, id snowflake.ID) (*Obligation, error)

	Stats(ctx context.Context, landlordID snowflake.ID) (*Stats, error)
}
