package domain

import (
	"context"
	"net/http"
)

// Service reconciles verified gateway events against obligations.
type Service interface {
	ProcessEvent(ctx context.Context, event *PaymentEvent, payload []byte) error
}

// Webhook is the transport-facing entry point for raw gateway deliveries.
type Webhook interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// Verifier checks the standing of a payment reference with the provider.
type Verifier interface {
	VerifyPayment(ctx context.Context, reference string) (string, error)
}

const (
	VerifyStatusSucceeded = "succeeded"
	VerifyStatusFailed    = "failed"
	VerifyStatusPending   = "pending"
)
