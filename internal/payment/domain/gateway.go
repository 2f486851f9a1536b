package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Gateway charges a customer for a confirmed renewal quote.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

type ChargeRequest struct {
	SubscriptionID snowflake.ID
	CustomerRef    string
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
	Description    string
}

type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusDeclined  ChargeStatus = "declined"
)

type ChargeResult struct {
	Provider      string
	Reference     string
	Status        ChargeStatus
	DeclineReason string
}

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrUnknownProvider = errors.New("unknown_payment_provider")
)
