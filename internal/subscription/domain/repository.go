package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Subscription, error)
	ListDueForAutoRenewal(ctx context.Context, db *gorm.DB, endsBefore time.Time) ([]Subscription, error)
	UpdateEndDate(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate, updatedAt time.Time) error
	UpdateAutoRenewal(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}

type ListFilter struct {
	Status      SubscriptionStatus
	CustomerRef string
	AutoRenewal *bool
}
