package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smallbiznis/rentflow/internal/config"
	leasedomain "github.com/smallbiznis/rentflow/internal/lease/domain"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
	"github.com/smallbiznis/rentflow/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service renders rent receipts and archives them on disk.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	pdf       pdf.Provider
	partyRepo partydomain.Repository
	leaseRepo leasedomain.Repository
	dir       string
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	PDF       pdf.Provider
	PartyRepo partydomain.Repository
	LeaseRepo leasedomain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("receipt.service"),
		pdf:       p.PDF,
		partyRepo: p.PartyRepo,
		leaseRepo: p.LeaseRepo,
		dir:       p.Cfg.ReceiptDir,
	}
}

// GenerateForObligation renders and archives the receipt for a settled
// obligation. The returned path points at the written PDF.
func (s *Service) GenerateForObligation(ctx context.Context, obligation *obligationdomain.Obligation) (string, error) {
	if obligation == nil || obligation.Status != obligationdomain.StatusCompleted {
		return "", obligationdomain.ErrInvalidStatus
	}

	data := pdf.ReceiptData{
		ReceiptNumber: obligation.ID.String(),
		BillingPeriod: obligation.BillingPeriod,
		ChargeKind:    obligation.ChargeKind,
		BaseAmount:    formatAmount(obligation.Amount),
		Total:         formatAmount(obligation.TotalDue()),
	}
	if obligation.PenaltyAmount > 0 {
		data.Penalty = formatAmount(obligation.PenaltyAmount)
	}
	if obligation.PaidDate != nil {
		data.DatePaid = obligation.PaidDate.UTC().Format("2 January 2006")
	}
	if obligation.ExternalReference != nil {
		data.Reference = *obligation.ExternalReference
	}
	if obligation.Channel != nil {
		data.Channel = *obligation.Channel
	}

	if tenant, err := s.partyRepo.FindByID(ctx, s.db, obligation.TenantID); err == nil && tenant != nil {
		data.TenantName = tenant.Name
		data.TenantEmail = tenant.Email
	}
	if landlord, err := s.partyRepo.FindByID(ctx, s.db, obligation.LandlordID); err == nil && landlord != nil {
		data.LandlordName = landlord.Name
	}
	if lease, err := s.leaseRepo.FindByID(ctx, s.db, obligation.LeaseID); err == nil && lease != nil {
		data.PropertyLabel = propertyLabel(lease)
	}

	reader, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	if reader == nil {
		return "", nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create receipt dir: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("receipt_%s.pdf", obligation.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create receipt file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}

	s.log.Info("receipt archived",
		zap.String("obligation_id", obligation.ID.String()),
		zap.String("path", path),
	)
	return path, nil
}

func propertyLabel(lease *leasedomain.Lease) string {
	if lease.UnitNumber != "" {
		return fmt.Sprintf("%s, unit %s", lease.PropertyID, lease.UnitNumber)
	}
	return lease.PropertyID.String()
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
