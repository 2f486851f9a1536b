package domain

import "errors"

var (
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidEndDate      = errors.New("invalid_end_date")
	ErrRenewalInProgress   = errors.New("renewal_in_progress")
	ErrPaymentDeclined     = errors.New("payment_declined")
	ErrIdempotencyConflict = errors.New("idempotency_conflict")
	ErrRenewalNotFound     = errors.New("renewal_not_found")
)
