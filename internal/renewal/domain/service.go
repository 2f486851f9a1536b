package domain

import (
	"context"
	"time"
)

type Service interface {
	QuoteSubscription(ctx context.Context, subscriptionID string, period Period) (RenewalQuote, error)
	Renew(ctx context.Context, req RenewRequest) (*Renewal, error)
	ListRenewals(ctx context.Context, subscriptionID string) ([]Renewal, error)
}

type RenewRequest struct {
	SubscriptionID string
	Period         Period
	PaymentMethod  string
	IdempotencyKey string
	Metadata       map[string]any
}

// Locker serialises renewals of the same subscription across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
