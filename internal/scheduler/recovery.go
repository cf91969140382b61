package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/rentflow/internal/clock"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	gatewayservice "github.com/smallbiznis/rentflow/internal/gateway/service"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recoverer re-drives gateway events that were recorded but never
// finished reconciling, usually after a crash between ingest and
// settlement.
type Recoverer struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	gatewaySvc *gatewayservice.Service
	verifier   gatewaydomain.Verifier
}

type RecovererParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GatewaySvc *gatewayservice.Service
	Verifier   gatewaydomain.Verifier `optional:"true"`
}

func NewRecoverer(p RecovererParams) *Recoverer {
	return &Recoverer{
		db:         p.DB,
		log:        p.Log.Named("scheduler.recovery"),
		clock:      p.Clock,
		gatewaySvc: p.GatewaySvc,
		verifier:   p.Verifier,
	}
}

// SweepStuckEvents processes one batch of unfinished gateway events
// older than the threshold. When a verifier is wired the provider is
// asked for the payment's current status first, so an event whose
// outcome changed upstream is replayed with the fresh outcome.
func (r *Recoverer) SweepStuckEvents(ctx context.Context, batchSize int, threshold time.Duration) error {
	cutoff := r.clock.Now().Add(-threshold)

	var stuck []gatewaydomain.EventRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, reference,
		        tenant_id, lease_id, amount, payload, received_at, processed_at
		 FROM gateway_events
		 WHERE processed_at IS NULL AND received_at <= ?
		 ORDER BY received_at, id
		 LIMIT ?`,
		cutoff,
		batchSize,
	).Scan(&stuck).Error
	if err != nil {
		return err
	}

	var jobErr error
	recovered := 0
	for _, record := range stuck {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		eventType, skip, err := r.resolveOutcome(ctx, &record)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			r.log.Warn("stuck event verification failed",
				zap.String("provider", record.Provider),
				zap.String("provider_event_id", record.ProviderEventID),
				zap.Error(err),
			)
			continue
		}
		if skip {
			continue
		}

		event := &gatewaydomain.PaymentEvent{
			Provider:          record.Provider,
			ProviderEventID:   record.ProviderEventID,
			ProviderPaymentID: record.Reference,
			Type:              eventType,
			TenantID:          record.TenantID,
			LeaseID:           record.LeaseID,
			Amount:            record.Amount,
			OccurredAt:        record.ReceivedAt,
			RawPayload:        record.Payload,
		}
		if err := r.gatewaySvc.ProcessEvent(ctx, event, record.Payload); err != nil {
			if errors.Is(err, gatewaydomain.ErrEventAlreadyProcessed) {
				continue
			}
			jobErr = errors.Join(jobErr, err)
			r.log.Warn("stuck event replay failed",
				zap.String("provider", record.Provider),
				zap.String("provider_event_id", record.ProviderEventID),
				zap.Error(err),
			)
			continue
		}
		recovered++
		r.log.Info("gateway event recovered",
			zap.String("provider", record.Provider),
			zap.String("provider_event_id", record.ProviderEventID),
			zap.String("event_type", eventType),
		)
	}
	obsmetrics.Scheduler().AddBatchProcessed("event_recovery", "gateway_events", recovered)

	return jobErr
}

// resolveOutcome decides which outcome to replay for a stuck event. A
// still-pending payment is left for the next sweep.
func (r *Recoverer) resolveOutcome(ctx context.Context, record *gatewaydomain.EventRecord) (string, bool, error) {
	if r.verifier == nil || record.Reference == "" {
		return record.EventType, false, nil
	}

	status, err := r.verifier.VerifyPayment(ctx, record.Reference)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrGatewayTimeout) {
			// Fall back on the recorded outcome rather than stalling the
			// sweep behind a slow provider.
			return record.EventType, false, nil
		}
		return "", false, err
	}

	switch status {
	case gatewaydomain.VerifyStatusSucceeded:
		return gatewaydomain.EventTypePaymentSucceeded, false, nil
	case gatewaydomain.VerifyStatusFailed:
		return gatewaydomain.EventTypePaymentFailed, false, nil
	default:
		return "", true, nil
	}
}
