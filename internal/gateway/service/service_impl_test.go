package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters/momo"
	"github.com/smallbiznis/rentflow/internal/gateway/adapters/stripe"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
	gatewayrepo "github.com/smallbiznis/rentflow/internal/gateway/repository"
	gatewayservice "github.com/smallbiznis/rentflow/internal/gateway/service"
	"github.com/smallbiznis/rentflow/internal/gateway/webhook"
	leaserepo "github.com/smallbiznis/rentflow/internal/lease/repository"
	notificationrepo "github.com/smallbiznis/rentflow/internal/notification/repository"
	notificationservice "github.com/smallbiznis/rentflow/internal/notification/service"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	obligationrepo "github.com/smallbiznis/rentflow/internal/obligation/repository"
	obligationservice "github.com/smallbiznis/rentflow/internal/obligation/service"
	partyrepo "github.com/smallbiznis/rentflow/internal/party/repository"
	"github.com/smallbiznis/rentflow/internal/providers/email"
	"github.com/smallbiznis/rentflow/internal/providers/pdf"
	receiptservice "github.com/smallbiznis/rentflow/internal/receipt/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const stripeSecret = "whsec_test"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_gw_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE leases (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			landlord_id BIGINT NOT NULL,
			property_id BIGINT NOT NULL,
			unit_number TEXT NOT NULL DEFAULT '',
			rent_amount BIGINT NOT NULL,
			billing_day INTEGER NOT NULL DEFAULT 1,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE parties (
			id BIGINT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE obligations (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			landlord_id BIGINT NOT NULL,
			property_id BIGINT NOT NULL,
			lease_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			due_date TIMESTAMP NOT NULL,
			billing_period TEXT NOT NULL,
			charge_kind TEXT NOT NULL DEFAULT 'rent',
			status TEXT NOT NULL DEFAULT 'pending',
			penalty_amount BIGINT NOT NULL DEFAULT 0,
			paid_date TIMESTAMP,
			external_reference TEXT,
			channel TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (tenant_id, billing_period, charge_kind)
		)`,
		`CREATE UNIQUE INDEX ux_obligations_external_reference
			ON obligations (external_reference) WHERE external_reference IS NOT NULL`,
		`CREATE TABLE gateway_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			reference TEXT NOT NULL,
			tenant_id BIGINT NOT NULL,
			lease_id BIGINT,
			amount BIGINT NOT NULL,
			payload TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP,
			UNIQUE (provider, provider_event_id)
		)`,
		`CREATE TABLE reminder_sends (
			id BIGINT PRIMARY KEY,
			obligation_id BIGINT NOT NULL,
			template TEXT NOT NULL,
			sent_on TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (obligation_id, template, sent_on)
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type stack struct {
	db            *gorm.DB
	node          *snowflake.Node
	clk           *clock.FakeClock
	obligationSvc obligationdomain.Service
	gatewaySvc    *gatewayservice.Service
	webhookSvc    gatewaydomain.Webhook
}

func newStack(t *testing.T, db *gorm.DB, now time.Time) *stack {
	t.Helper()

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	obligationSvc := obligationservice.New(obligationservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      obligationrepo.Provide(),
		LeaseRepo: leaserepo.Provide(),
		Dunning:   config.NewStaticDunningConfigHolder(config.DefaultDunningConfig()),
	})
	notificationSvc := notificationservice.New(notificationservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      notificationrepo.Provide(),
		PartyRepo: partyrepo.Provide(),
		Email:     &email.NoOpProvider{},
	})
	receiptSvc := receiptservice.New(receiptservice.Params{
		DB:        db,
		Log:       log,
		Cfg:       config.Config{ReceiptDir: t.TempDir()},
		PDF:       &pdf.NoOpProvider{},
		PartyRepo: partyrepo.Provide(),
		LeaseRepo: leaserepo.Provide(),
	})
	gatewaySvc := gatewayservice.NewService(gatewayservice.Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            gatewayrepo.Provide(),
		ObligationSvc:   obligationSvc,
		NotificationSvc: notificationSvc,
		ReceiptSvc:      receiptSvc,
	})
	webhookSvc := webhook.NewService(webhook.Params{
		Log:        log,
		GatewaySvc: gatewaySvc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory(), momo.NewFactory()),
		Cfg:        config.Config{StripeWebhookSecret: stripeSecret, MomoWebhookSecret: "momo_secret"},
	})

	return &stack{
		db:            db,
		node:          node,
		clk:           clk,
		obligationSvc: obligationSvc,
		gatewaySvc:    gatewaySvc,
		webhookSvc:    webhookSvc,
	}
}

func seedObligation(t *testing.T, s *stack, tenantID snowflake.ID, amount int64, dueDate time.Time, status string) *obligationdomain.Obligation {
	t.Helper()

	now := s.clk.Now()
	obligation := &obligationdomain.Obligation{
		ID:            s.node.Generate(),
		TenantID:      tenantID,
		LandlordID:    s.node.Generate(),
		PropertyID:    s.node.Generate(),
		LeaseID:       s.node.Generate(),
		Amount:        amount,
		DueDate:       dueDate,
		BillingPeriod: dueDate.Format("2006-01"),
		ChargeKind:    obligationdomain.ChargeKindRent,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := obligationrepo.Provide().Insert(context.Background(), s.db, obligation)
	if err != nil {
		t.Fatalf("insert obligation: %v", err)
	}
	if !inserted {
		t.Fatalf("obligation not inserted")
	}
	return obligation
}

func stripePayload(t *testing.T, eventID, intentID string, amount int64, metadata map[string]any) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "payment_intent.succeeded",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":              intentID,
				"amount":          amount,
				"amount_received": amount,
				"currency":        "usd",
				"created":         time.Now().Unix(),
				"metadata":        metadata,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func signedStripeHeaders(payload []byte) http.Header {
	timestamp := time.Now().Unix()
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(stripeSecret))
	_, _ = mac.Write([]byte(signedPayload))
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func TestIngestWebhookSettlesObligation(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obligation := seedObligation(t, s, tenantID, 100000, due, obligationdomain.StatusPending)

	payload := stripePayload(t, "evt_ok", "pi_ok", 100000, map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": obligation.ID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	settled, err := s.obligationSvc.Get(context.Background(), obligation.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if settled.Status != obligationdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
	if settled.ExternalReference == nil || *settled.ExternalReference != "pi_ok" {
		t.Fatalf("expected reference pi_ok, got %v", settled.ExternalReference)
	}
	if settled.PaidDate == nil {
		t.Fatalf("expected paid date")
	}
	if settled.Channel == nil || *settled.Channel != obligationdomain.ChannelStripe {
		t.Fatalf("expected stripe channel, got %v", settled.Channel)
	}
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	payload := stripePayload(t, "evt_sig", "pi_sig", 100000, map[string]any{
		"tenant_id": s.node.Generate().String(),
	})
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1,v1=deadbeef")
	err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, headers)
	if !errors.Is(err, gatewaydomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestDuplicateEventRejectedAfterProcessing(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obligation := seedObligation(t, s, tenantID, 100000, due, obligationdomain.StatusPending)

	payload := stripePayload(t, "evt_dup", "pi_dup", 100000, map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": obligation.ID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload))
	if !errors.Is(err, gatewaydomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	settled, err := s.obligationSvc.Get(context.Background(), obligation.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if settled.Status != obligationdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
}

func TestRedeliveryUnderNewEventIDIsAbsorbed(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obligation := seedObligation(t, s, tenantID, 100000, due, obligationdomain.StatusPending)

	metadata := map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": obligation.ID.String(),
	}
	first := stripePayload(t, "evt_a", "pi_same", 100000, metadata)
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", first, signedStripeHeaders(first)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// The provider retries under a fresh event ID but the same payment.
	second := stripePayload(t, "evt_b", "pi_same", 100000, metadata)
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", second, signedStripeHeaders(second)); err != nil {
		t.Fatalf("redelivery should be absorbed, got %v", err)
	}
}

func TestSettleResolvesOldestOpenObligation(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	older := seedObligation(t, s, tenantID, 100000, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), obligationdomain.StatusOverdue)
	newer := seedObligation(t, s, tenantID, 100000, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), obligationdomain.StatusOverdue)

	payload := stripePayload(t, "evt_old", "pi_old", 100000, map[string]any{
		"tenant_id": tenantID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	settled, err := s.obligationSvc.Get(context.Background(), older.ID)
	if err != nil {
		t.Fatalf("get older obligation: %v", err)
	}
	if settled.Status != obligationdomain.StatusCompleted {
		t.Fatalf("expected oldest obligation completed, got %s", settled.Status)
	}
	untouched, err := s.obligationSvc.Get(context.Background(), newer.ID)
	if err != nil {
		t.Fatalf("get newer obligation: %v", err)
	}
	if untouched.Status != obligationdomain.StatusOverdue {
		t.Fatalf("expected newer obligation untouched, got %s", untouched.Status)
	}
}

func TestCrossWiredReferenceIsAbsorbed(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	first := seedObligation(t, s, tenantID, 100000, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), obligationdomain.StatusPending)
	second := seedObligation(t, s, tenantID, 100000, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), obligationdomain.StatusPending)

	payload := stripePayload(t, "evt_wire_a", "pi_wired", 100000, map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": first.ID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// A different obligation claiming an already-bound reference can
	// never settle; the event is absorbed so the provider stops retrying.
	crossed := stripePayload(t, "evt_wire_b", "pi_wired", 100000, map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": second.ID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", crossed, signedStripeHeaders(crossed)); err != nil {
		t.Fatalf("cross-wired delivery should be absorbed, got %v", err)
	}

	untouched, err := s.obligationSvc.Get(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if untouched.Status != obligationdomain.StatusPending {
		t.Fatalf("expected cross-wired obligation untouched, got %s", untouched.Status)
	}

	var processed int64
	if err := db.Raw(
		`SELECT COUNT(*) FROM gateway_events WHERE provider_event_id = 'evt_wire_b' AND processed_at IS NOT NULL`,
	).Scan(&processed).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected cross-wired event marked processed")
	}
}

func TestSettlementForFailedObligationIsAbsorbed(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	failed := seedObligation(t, s, tenantID, 100000, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), obligationdomain.StatusFailed)

	// The obligation is terminal, so the settlement can never land. The
	// delivery is absorbed as a duplicate rather than bounced back for
	// the provider to retry.
	payload := stripePayload(t, "evt_after_fail", "pi_after_fail", 100000, map[string]any{
		"tenant_id":     tenantID.String(),
		"obligation_id": failed.ID.String(),
	})
	if err := s.webhookSvc.IngestWebhook(context.Background(), "stripe", payload, signedStripeHeaders(payload)); err != nil {
		t.Fatalf("delivery for failed obligation should be absorbed, got %v", err)
	}

	current, err := s.obligationSvc.Get(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if current.Status != obligationdomain.StatusFailed {
		t.Fatalf("expected obligation to stay failed, got %s", current.Status)
	}
	if current.ExternalReference != nil {
		t.Fatalf("expected no reference stamped, got %s", *current.ExternalReference)
	}

	var processed int64
	if err := db.Raw(
		`SELECT COUNT(*) FROM gateway_events WHERE provider_event_id = 'evt_after_fail' AND processed_at IS NOT NULL`,
	).Scan(&processed).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected absorbed event marked processed")
	}
}

func TestFailedEventFailsObligation(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	tenantID := s.node.Generate()
	due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obligation := seedObligation(t, s, tenantID, 100000, due, obligationdomain.StatusPending)

	event := &gatewaydomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_fail",
		Type:            gatewaydomain.EventTypePaymentFailed,
		TenantID:        tenantID,
		ObligationID:    &obligation.ID,
		Amount:          100000,
		Currency:        "USD",
		OccurredAt:      now,
	}
	if err := s.gatewaySvc.ProcessEvent(context.Background(), event, []byte(`{"id":"evt_fail"}`)); err != nil {
		t.Fatalf("process event: %v", err)
	}

	failed, err := s.obligationSvc.Get(context.Background(), obligation.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if failed.Status != obligationdomain.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
}

func TestFailedEventWithNoOpenObligationIsNoise(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	event := &gatewaydomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_noise",
		Type:            gatewaydomain.EventTypePaymentFailed,
		TenantID:        s.node.Generate(),
		Amount:          100000,
		Currency:        "USD",
		OccurredAt:      now,
	}
	if err := s.gatewaySvc.ProcessEvent(context.Background(), event, []byte(`{"id":"evt_noise"}`)); err != nil {
		t.Fatalf("expected failure with no target to be absorbed, got %v", err)
	}
}

func TestProcessEventRejectsZeroAmountSuccess(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	s := newStack(t, db, now)

	event := &gatewaydomain.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_zero",
		Type:            gatewaydomain.EventTypePaymentSucceeded,
		TenantID:        s.node.Generate(),
		Amount:          0,
		Currency:        "USD",
		OccurredAt:      now,
	}
	err := s.gatewaySvc.ProcessEvent(context.Background(), event, []byte(`{"id":"evt_zero"}`))
	if !errors.Is(err, gatewaydomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
