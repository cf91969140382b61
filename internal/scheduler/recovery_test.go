package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/rentflow/internal/config"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	gatewayrepo "github.com/smallbiznis/rentflow/internal/gateway/repository"
	gatewayservice "github.com/smallbiznis/rentflow/internal/gateway/service"
	leaserepo "github.com/smallbiznis/rentflow/internal/lease/repository"
	notificationrepo "github.com/smallbiznis/rentflow/internal/notification/repository"
	notificationservice "github.com/smallbiznis/rentflow/internal/notification/service"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	partyrepo "github.com/smallbiznis/rentflow/internal/party/repository"
	"github.com/smallbiznis/rentflow/internal/providers/email"
	"github.com/smallbiznis/rentflow/internal/providers/pdf"
	receiptservice "github.com/smallbiznis/rentflow/internal/receipt/service"
	"go.uber.org/zap"
)

type stubVerifier struct {
	status string
	err    error
}

func (v *stubVerifier) VerifyPayment(ctx context.Context, reference string) (string, error) {
	return v.status, v.err
}

func newRecoverer(t *testing.T, f *fixture, verifier gatewaydomain.Verifier) *Recoverer {
	t.Helper()

	log := zap.NewNop()
	notificationSvc := notificationservice.New(notificationservice.Params{
		DB:        f.db,
		Log:       log,
		GenID:     f.node,
		Clock:     f.clk,
		Repo:      notificationrepo.Provide(),
		PartyRepo: partyrepo.Provide(),
		Email:     &email.NoOpProvider{},
	})
	receiptSvc := receiptservice.New(receiptservice.Params{
		DB:        f.db,
		Log:       log,
		Cfg:       config.Config{ReceiptDir: t.TempDir()},
		PDF:       &pdf.NoOpProvider{},
		PartyRepo: partyrepo.Provide(),
		LeaseRepo: leaserepo.Provide(),
	})
	gatewaySvc := gatewayservice.NewService(gatewayservice.Params{
		DB:              f.db,
		Log:             log,
		GenID:           f.node,
		Clock:           f.clk,
		Repo:            gatewayrepo.Provide(),
		ObligationSvc:   f.obligationSvc,
		NotificationSvc: notificationSvc,
		ReceiptSvc:      receiptSvc,
	})
	return NewRecoverer(RecovererParams{
		DB:         f.db,
		Log:        log,
		Clock:      f.clk,
		GatewaySvc: gatewaySvc,
		Verifier:   verifier,
	})
}

func seedStuckEvent(t *testing.T, f *fixture, obligation *obligationdomain.Obligation, eventID, reference, eventType string, age time.Duration) {
	t.Helper()

	if err := f.db.Exec(
		`INSERT INTO gateway_events (id, provider, provider_event_id, event_type, reference, tenant_id, amount, payload, received_at)
		 VALUES (?, 'stripe', ?, ?, ?, ?, ?, '{}', ?)`,
		f.node.Generate(), eventID, eventType, reference, obligation.TenantID, obligation.Amount, f.clk.Now().Add(-age),
	).Error; err != nil {
		t.Fatalf("seed stuck event: %v", err)
	}
}

func TestSweepStuckEventsSettlesObligation(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	leaseEnd := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	tenantID, _ := f.seedLease(t, 100000, 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), leaseEnd)

	ctx := context.Background()
	if err := f.sched.GenerateObligationsJob(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var obligation obligationdomain.Obligation
	if err := f.db.Raw(`SELECT * FROM obligations WHERE tenant_id = ?`, tenantID).Scan(&obligation).Error; err != nil {
		t.Fatalf("fetch obligation: %v", err)
	}

	recoverer := newRecoverer(t, f, &stubVerifier{status: gatewaydomain.VerifyStatusSucceeded})
	seedStuckEvent(t, f, &obligation, "evt_stuck", "pi_stuck", gatewaydomain.EventTypePaymentSucceeded, 2*time.Hour)

	if err := recoverer.SweepStuckEvents(ctx, 10, time.Hour); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if err := f.db.Raw(`SELECT * FROM obligations WHERE id = ?`, obligation.ID).Scan(&obligation).Error; err != nil {
		t.Fatalf("refetch obligation: %v", err)
	}
	if obligation.Status != obligationdomain.StatusCompleted {
		t.Fatalf("expected completed after replay, got %s", obligation.Status)
	}
	if obligation.ExternalReference == nil || *obligation.ExternalReference != "pi_stuck" {
		t.Fatalf("expected reference pi_stuck, got %v", obligation.ExternalReference)
	}

	var processed int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM gateway_events WHERE provider_event_id = 'evt_stuck' AND processed_at IS NOT NULL`,
	).Scan(&processed).Error; err != nil {
		t.Fatalf("count processed: %v", err)
	}
	if processed != 1 {
		t.Fatal("expected stuck event marked processed")
	}
}

func TestSweepStuckEventsLeavesPendingPayments(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	leaseEnd := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	tenantID, _ := f.seedLease(t, 100000, 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), leaseEnd)

	ctx := context.Background()
	if err := f.sched.GenerateObligationsJob(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var obligation obligationdomain.Obligation
	if err := f.db.Raw(`SELECT * FROM obligations WHERE tenant_id = ?`, tenantID).Scan(&obligation).Error; err != nil {
		t.Fatalf("fetch obligation: %v", err)
	}

	recoverer := newRecoverer(t, f, &stubVerifier{status: gatewaydomain.VerifyStatusPending})
	seedStuckEvent(t, f, &obligation, "evt_wait", "pi_wait", gatewaydomain.EventTypePaymentSucceeded, 2*time.Hour)

	if err := recoverer.SweepStuckEvents(ctx, 10, time.Hour); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if err := f.db.Raw(`SELECT * FROM obligations WHERE id = ?`, obligation.ID).Scan(&obligation).Error; err != nil {
		t.Fatalf("refetch obligation: %v", err)
	}
	if obligation.Status != obligationdomain.StatusPending {
		t.Fatalf("expected obligation untouched, got %s", obligation.Status)
	}

	var unprocessed int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM gateway_events WHERE provider_event_id = 'evt_wait' AND processed_at IS NULL`,
	).Scan(&unprocessed).Error; err != nil {
		t.Fatalf("count unprocessed: %v", err)
	}
	if unprocessed != 1 {
		t.Fatal("expected stuck event left for the next sweep")
	}
}
