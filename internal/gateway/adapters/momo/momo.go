// Package momo handles mobile money callbacks (MTN Mobile Money and
// Airtel Money use the same notification shape here).
package momo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rentflow/internal/gateway/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "momo"
}

func (f *Factory) NewAdapter(cfg gatewaydomain.AdapterConfig) (gatewaydomain.PaymentAdapter, error) {
	secret, _ := cfg.Config["webhook_secret"].(string)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

// Verify checks the X-Momo-Signature header, a hex HMAC-SHA256 of the
// raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("X-Momo-Signature"))
	if signature == "" {
		return gatewaydomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return gatewaydomain.ErrInvalidSignature
	}
	return nil
}

type momoNotification struct {
	ReferenceID string            `json:"referenceId"`
	ExternalID  string            `json:"externalId"`
	Status      string            `json:"status"`
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	FinishedAt  int64             `json:"finishedAt"`
	Metadata    map[string]string `json:"metadata"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*gatewaydomain.PaymentEvent, error) {
	var note momoNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, gatewaydomain.ErrInvalidPayload
	}
	if strings.TrimSpace(note.ReferenceID) == "" {
		return nil, gatewaydomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.ToUpper(strings.TrimSpace(note.Status)) {
	case "SUCCESSFUL":
		eventType = gatewaydomain.EventTypePaymentSucceeded
	case "FAILED", "REJECTED", "TIMEOUT":
		eventType = gatewaydomain.EventTypePaymentFailed
	case "PENDING":
		return nil, gatewaydomain.ErrEventIgnored
	default:
		return nil, gatewaydomain.ErrEventIgnored
	}

	tenantRaw := strings.TrimSpace(note.Metadata["tenant_id"])
	if tenantRaw == "" {
		return nil, gatewaydomain.ErrInvalidTenant
	}
	tenantID, err := snowflake.ParseString(tenantRaw)
	if err != nil {
		return nil, gatewaydomain.ErrInvalidTenant
	}

	amount, _ := note.Amount.Int64()

	occurredAt := time.Now().UTC()
	if note.FinishedAt > 0 {
		occurredAt = time.Unix(note.FinishedAt, 0).UTC()
	}

	return &gatewaydomain.PaymentEvent{
		Provider:          "momo",
		ProviderEventID:   note.ReferenceID,
		ProviderPaymentID: note.ReferenceID,
		Type:              eventType,
		TenantID:          tenantID,
		ObligationID:      parseOptionalID(note.Metadata, "obligation_id"),
		LeaseID:           parseOptionalID(note.Metadata, "lease_id"),
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(note.Currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func parseOptionalID(metadata map[string]string, key string) *snowflake.ID {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil
	}
	return &id
}
