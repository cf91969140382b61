package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	notificationdomain "github.com/smallbiznis/rentflow/internal/notification/domain"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	receiptservice "github.com/smallbiznis/rentflow/internal/receipt/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            gatewaydomain.Repository
	ObligationSvc   obligationdomain.Service
	NotificationSvc notificationdomain.Service
	ReceiptSvc      *receiptservice.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            gatewaydomain.Repository
	obligationSvc   obligationdomain.Service
	notificationSvc notificationdomain.Service
	receiptSvc      *receiptservice.Service
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("gateway.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		obligationSvc:   p.ObligationSvc,
		notificationSvc: p.NotificationSvc,
		receiptSvc:      p.ReceiptSvc,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *gatewaydomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return gatewaydomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return gatewaydomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return gatewaydomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := gatewaydomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       event.Reference(),
		TenantID:        event.TenantID,
		LeaseID:         event.LeaseID,
		Amount:          event.Amount,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return gatewaydomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return gatewaydomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.reconcile(ctx, event); err != nil {
		// Cross-wired, surplus, or terminal-target events are absorbed:
		// replaying them can never succeed, so the provider must not keep
		// retrying.
		if errors.Is(err, gatewaydomain.ErrNoMatchingObligation) ||
			errors.Is(err, obligationdomain.ErrDuplicateReference) ||
			errors.Is(err, obligationdomain.ErrTransitionRejected) {
			s.log.Warn("gateway event absorbed without settlement",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.String("reference", event.Reference()),
				zap.Error(err),
			)
			return s.repo.MarkProcessed(ctx, s.db, stored.ID, now)
		}
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordGatewayEvent(ctx, event.Provider, event.Type)
	}

	return nil
}

func validateEvent(event *gatewaydomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return gatewaydomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return gatewaydomain.ErrInvalidEvent
	}
	if event.TenantID == 0 {
		return gatewaydomain.ErrInvalidTenant
	}
	if event.OccurredAt.IsZero() {
		return gatewaydomain.ErrInvalidEvent
	}
	switch event.Type {
	case gatewaydomain.EventTypePaymentSucceeded:
		if event.Amount <= 0 {
			return gatewaydomain.ErrInvalidAmount
		}
	case gatewaydomain.EventTypePaymentFailed:
	default:
		return gatewaydomain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) reconcile(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	switch event.Type {
	case gatewaydomain.EventTypePaymentSucceeded:
		return s.settle(ctx, event)
	case gatewaydomain.EventTypePaymentFailed:
		return s.fail(ctx, event)
	default:
		return gatewaydomain.ErrInvalidEvent
	}
}

func (s *Service) settle(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	target, err := s.resolveObligation(ctx, event)
	if err != nil {
		return err
	}

	reference := event.Reference()
	if target.Status == obligationdomain.StatusCompleted {
		// Same reference arriving again is a redelivery, not a conflict.
		if target.ExternalReference != nil && *target.ExternalReference == reference {
			return nil
		}
		return gatewaydomain.ErrNoMatchingObligation
	}

	if event.Amount != target.TotalDue() {
		s.log.Warn("gateway amount differs from amount due",
			zap.String("obligation_id", target.ID.String()),
			zap.Int64("event_amount", event.Amount),
			zap.Int64("amount_due", target.TotalDue()),
		)
	}

	settled, err := s.obligationSvc.Settle(ctx, obligationdomain.SettleRequest{
		ID:                target.ID,
		PaidAt:            event.OccurredAt,
		ExternalReference: reference,
		Channel:           channelFor(event.Provider),
	})
	if err != nil {
		if errors.Is(err, obligationdomain.ErrTransitionRejected) || errors.Is(err, obligationdomain.ErrDuplicateReference) {
			// Lost a race. If the winner used the same reference the event
			// is settled already, otherwise surface the conflict.
			current, getErr := s.obligationSvc.Get(ctx, target.ID)
			if getErr == nil && current.Status == obligationdomain.StatusCompleted &&
				current.ExternalReference != nil && *current.ExternalReference == reference {
				return nil
			}
		}
		return err
	}

	s.notificationSvc.NotifySettled(ctx, settled)
	if s.receiptSvc != nil {
		if _, err := s.receiptSvc.GenerateForObligation(ctx, settled); err != nil {
			s.log.Warn("receipt generation failed",
				zap.String("obligation_id", settled.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (s *Service) fail(ctx context.Context, event *gatewaydomain.PaymentEvent) error {
	target, err := s.resolveObligation(ctx, event)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrNoMatchingObligation) {
			// A failed attempt with nothing to fail is just noise.
			s.log.Info("ignoring failed payment with no open obligation",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}
		return err
	}
	if target.Terminal() {
		return nil
	}

	if _, err := s.obligationSvc.Fail(ctx, target.ID); err != nil {
		if errors.Is(err, obligationdomain.ErrTransitionRejected) {
			return nil
		}
		return err
	}
	return nil
}

// resolveObligation finds the obligation an event pays. Explicit metadata
// wins, then a previously stamped reference, then the tenant's oldest
// open obligation.
func (s *Service) resolveObligation(ctx context.Context, event *gatewaydomain.PaymentEvent) (*obligationdomain.Obligation, error) {
	if event.ObligationID != nil && *event.ObligationID != 0 {
		return s.obligationSvc.Get(ctx, *event.ObligationID)
	}

	if existing, err := s.obligationSvc.FindByReference(ctx, event.Reference()); err == nil {
		return existing, nil
	} else if !errors.Is(err, obligationdomain.ErrObligationNotFound) {
		return nil, err
	}

	var oldest *obligationdomain.Obligation
	for _, status := range []string{obligationdomain.StatusOverdue, obligationdomain.StatusPending} {
		items, err := s.obligationSvc.List(ctx, obligationdomain.ListFilter{
			TenantID: event.TenantID,
			LeaseID:  optionalID(event.LeaseID),
			Status:   status,
		}, 0)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if oldest == nil || item.DueDate.Before(oldest.DueDate) {
				oldest = item
			}
		}
	}
	if oldest == nil {
		return nil, gatewaydomain.ErrNoMatchingObligation
	}
	return oldest, nil
}

func optionalID(id *snowflake.ID) snowflake.ID {
	if id == nil {
		return 0
	}
	return *id
}

func channelFor(provider string) string {
	switch provider {
	case "stripe":
		return obligationdomain.ChannelStripe
	case "momo":
		return obligationdomain.ChannelMomo
	default:
		return provider
	}
}
