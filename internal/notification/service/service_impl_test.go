package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/clock"
	notificationdomain "github.com/smallbiznis/rentflow/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/rentflow/internal/notification/repository"
	notificationservice "github.com/smallbiznis/rentflow/internal/notification/service"
	obligationdomain "github.com/smallbiznis/rentflow/internal/obligation/domain"
	partydomain "github.com/smallbiznis/rentflow/internal/party/domain"
	partyrepo "github.com/smallbiznis/rentflow/internal/party/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingEmail struct {
	sent       []string
	recipients [][]string
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	r.sent = append(r.sent, subject)
	r.recipients = append(r.recipients, to)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_notif_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE parties (
			id BIGINT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
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

func TestSendReminderDedupsPerDay(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	tenant := &partydomain.Party{
		ID:        node.Generate(),
		Kind:      partydomain.KindTenant,
		Name:      "Amina",
		Email:     "amina@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := partyrepo.Provide().Insert(ctx, db, tenant); err != nil {
		t.Fatalf("seed party: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC))
	mailer := &recordingEmail{}
	svc := notificationservice.New(notificationservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      notificationrepo.Provide(),
		PartyRepo: partyrepo.Provide(),
		Email:     mailer,
	})

	obligation := &obligationdomain.Obligation{
		ID:            node.Generate(),
		TenantID:      tenant.ID,
		Amount:        100000,
		DueDate:       time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		BillingPeriod: "2024-01",
		Status:        obligationdomain.StatusPending,
	}

	sent, err := svc.SendReminder(ctx, obligation, notificationdomain.TemplateUpcoming)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Fatalf("expected first reminder to send")
	}

	// Same template, same day: suppressed even hours later.
	clk.Advance(6 * time.Hour)
	sent, err = svc.SendReminder(ctx, obligation, notificationdomain.TemplateUpcoming)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if sent {
		t.Fatalf("expected same-day reminder to be suppressed")
	}

	// Next day it goes out again.
	clk.Advance(24 * time.Hour)
	sent, err = svc.SendReminder(ctx, obligation, notificationdomain.TemplateUpcoming)
	if err != nil {
		t.Fatalf("next day send: %v", err)
	}
	if !sent {
		t.Fatalf("expected next-day reminder to send")
	}

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(mailer.sent))
	}
}

func TestOverdueAlertGoesToLandlord(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	tenant := &partydomain.Party{ID: node.Generate(), Kind: partydomain.KindTenant, Name: "Amina", Email: "amina@example.com", CreatedAt: time.Now().UTC()}
	landlord := &partydomain.Party{ID: node.Generate(), Kind: partydomain.KindLandlord, Name: "Jean", Email: "jean@example.com", CreatedAt: time.Now().UTC()}
	for _, p := range []*partydomain.Party{tenant, landlord} {
		if err := partyrepo.Provide().Insert(ctx, db, p); err != nil {
			t.Fatalf("seed party: %v", err)
		}
	}

	mailer := &recordingEmail{}
	svc := notificationservice.New(notificationservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2024, time.January, 6, 8, 0, 0, 0, time.UTC)),
		Repo:      notificationrepo.Provide(),
		PartyRepo: partyrepo.Provide(),
		Email:     mailer,
	})

	obligation := &obligationdomain.Obligation{
		ID:            node.Generate(),
		TenantID:      tenant.ID,
		LandlordID:    landlord.ID,
		Amount:        100000,
		PenaltyAmount: 5000,
		DueDate:       time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		BillingPeriod: "2024-01",
		Status:        obligationdomain.StatusOverdue,
	}

	sent, err := svc.SendReminder(ctx, obligation, notificationdomain.TemplateOverdueAlert)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent {
		t.Fatalf("expected alert to send")
	}
	if len(mailer.recipients) != 1 || len(mailer.recipients[0]) != 1 || mailer.recipients[0][0] != "jean@example.com" {
		t.Fatalf("expected alert addressed to landlord, got %v", mailer.recipients)
	}
}

func TestNotifySettledEmailsBothParties(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	tenant := &partydomain.Party{ID: node.Generate(), Kind: partydomain.KindTenant, Name: "Amina", Email: "amina@example.com", CreatedAt: time.Now().UTC()}
	landlord := &partydomain.Party{ID: node.Generate(), Kind: partydomain.KindLandlord, Name: "Jean", Email: "jean@example.com", CreatedAt: time.Now().UTC()}
	for _, p := range []*partydomain.Party{tenant, landlord} {
		if err := partyrepo.Provide().Insert(ctx, db, p); err != nil {
			t.Fatalf("seed party: %v", err)
		}
	}

	mailer := &recordingEmail{}
	svc := notificationservice.New(notificationservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)),
		Repo:      notificationrepo.Provide(),
		PartyRepo: partyrepo.Provide(),
		Email:     mailer,
	})

	svc.NotifySettled(ctx, &obligationdomain.Obligation{
		ID:            node.Generate(),
		TenantID:      tenant.ID,
		LandlordID:    landlord.ID,
		Amount:        100000,
		PenaltyAmount: 5000,
		DueDate:       time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		BillingPeriod: "2024-01",
		Status:        obligationdomain.StatusCompleted,
	})

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(mailer.sent))
	}
}
