package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, renewal *Renewal) error
	// UpdateOutcome persists status, payment fields, failure reason and idempotency key.
	UpdateOutcome(ctx context.Context, db *gorm.DB, renewal *Renewal) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Renewal, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Renewal, error)
	ListBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Renewal, error)
}
