package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/notification/domain"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/rentflow/internal/observability/metrics"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
	"github.com/smallbiznis/rentflow/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	PartyRepo  partydomain.Repository
	Email      email.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	partyRepo  partydomain.Repository
	email      email.Provider
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		partyRepo:  p.PartyRepo,
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) SendReminder(ctx context.Context, obligation *obligationdomain.Obligation, template string) (bool, error) {
	if obligation == nil {
		return false, obligationdomain.ErrObligationNotFound
	}

	now := s.clock.Now()
	send := &domain.ReminderSend{
		ID:           s.genID.Generate(),
		ObligationID: obligation.ID,
		Template:     template,
		SentOn:       midnight(now),
		CreatedAt:    now,
	}

	recorded, err := s.repo.Insert(ctx, s.db, send)
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	recipient := obligation.TenantID
	if template == domain.TemplateOverdueAlert {
		recipient = obligation.LandlordID
	}

	subject, body := renderReminder(template, obligation)
	if err := s.sendToParty(ctx, recipient, subject, body); err != nil {
		s.log.Warn("reminder email failed",
			zap.String("obligation_id", obligation.ID.String()),
			zap.String("template", template),
			zap.Error(err),
		)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordReminderSent(ctx, template)
	}
	return true, nil
}

func (s *Service) NotifySettled(ctx context.Context, obligation *obligationdomain.Obligation) {
	if obligation == nil {
		return
	}

	subject, body := renderReminder(domain.TemplateReceived, obligation)
	if err := s.sendToParty(ctx, obligation.TenantID, subject, body); err != nil {
		s.log.Warn("tenant settlement email failed",
			zap.String("obligation_id", obligation.ID.String()),
			zap.Error(err),
		)
	}

	landlordSubject := fmt.Sprintf("Rent received for period %s", obligation.BillingPeriod)
	landlordBody := fmt.Sprintf(
		"<p>A payment of <b>%s</b> was received for billing period %s.</p>",
		formatAmount(obligation.TotalDue()),
		obligation.BillingPeriod,
	)
	if err := s.sendToParty(ctx, obligation.LandlordID, landlordSubject, landlordBody); err != nil {
		s.log.Warn("landlord settlement email failed",
			zap.String("obligation_id", obligation.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) sendToParty(ctx context.Context, partyID snowflake.ID, subject, body string) error {
	party, err := s.partyRepo.FindByID(ctx, s.db, partyID)
	if err != nil {
		return err
	}
	if party == nil || party.Email == "" {
		return fmt.Errorf("party %s has no email on file", partyID)
	}
	return s.email.Send(ctx, []string{party.Email}, subject, body)
}

func renderReminder(template string, obligation *obligationdomain.Obligation) (string, string) {
	due := obligation.DueDate.Format("2 January 2006")
	total := formatAmount(obligation.TotalDue())

	switch template {
	case domain.TemplateUpcoming:
		return "Rent due soon",
			fmt.Sprintf("<p>Your rent of <b>%s</b> is due on %s.</p>", total, due)
	case domain.TemplateDueToday:
		return "Rent due today",
			fmt.Sprintf("<p>Your rent of <b>%s</b> is due today, %s.</p>", total, due)
	case domain.TemplateOverdue:
		return "Rent overdue",
			fmt.Sprintf("<p>Your rent of <b>%s</b> was due on %s and is now overdue. A late fee of %s has been applied.</p>",
				total, due, formatAmount(obligation.PenaltyAmount))
	case domain.TemplateOverdueAlert:
		return "Tenant rent overdue",
			fmt.Sprintf("<p>Rent of <b>%s</b> for period %s was due on %s and has not been paid.</p>",
				total, obligation.BillingPeriod, due)
	case domain.TemplateReceived:
		return "Payment received",
			fmt.Sprintf("<p>We received your payment of <b>%s</b> for the period %s. Thank you.</p>",
				total, obligation.BillingPeriod)
	default:
		return "Rent notification",
			fmt.Sprintf("<p>Update on your rent of <b>%s</b> due %s.</p>", total, due)
	}
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
