package domain

import "errors"

var (
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidConfig         = errors.New("invalid_adapter_config")
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrNoMatchingObligation  = errors.New("no_matching_obligation")
	ErrGatewayTimeout        = errors.New("gateway_timeout")
)
