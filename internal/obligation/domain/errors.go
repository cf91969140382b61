package domain

import "errors"

var (
	ErrObligationNotFound  = errors.New("obligation_not_found")
	ErrInvalidLease        = errors.New("invalid_lease")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPeriod       = errors.New("invalid_billing_period")
	ErrInvalidChargeKind   = errors.New("invalid_charge_kind")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrDuplicateObligation = errors.New("duplicate_obligation")
	ErrDuplicateReference  = errors.New("duplicate_external_reference")
	ErrTransitionRejected  = errors.New("transition_rejected")
)
