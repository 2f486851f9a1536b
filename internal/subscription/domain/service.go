package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) ([]Subscription, error)
	SetAutoRenewal(ctx context.Context, id string, enabled bool) (Subscription, error)
	Cancel(ctx context.Context, id string) (Subscription, error)
	ListDueForAutoRenewal(ctx context.Context, endsBefore time.Time) ([]Subscription, error)
}

type CreateSubscriptionRequest struct {
	CustomerRef    string
	PlanName       string
	BasePrice      decimal.Decimal
	Currency       string
	CurrentEndDate time.Time
	BillingCycle   string
	AutoRenewal    bool
	Metadata       map[string]any
}

type ListSubscriptionRequest struct {
	Status      string
	CustomerRef string
	AutoRenewal *bool
}

var (
	ErrInvalidSubscription     = errors.New("invalid_subscription")
	ErrSubscriptionNotFound    = errors.New("subscription_not_found")
	ErrSubscriptionCanceled    = errors.New("subscription_canceled")
	ErrInvalidCustomer         = errors.New("invalid_customer")
	ErrInvalidPlanName         = errors.New("invalid_plan_name")
	ErrInvalidBasePrice        = errors.New("invalid_base_price")
	ErrInvalidCurrency         = errors.New("invalid_currency")
	ErrInvalidEndDate          = errors.New("invalid_end_date")
	ErrInvalidBillingCycleType = errors.New("invalid_billing_cycle_type")
	ErrInvalidStatus           = errors.New("invalid_status")
)
