package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

type BillingCycle string

const BillingCycleMonthly BillingCycle = "monthly"

type Subscription struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	CustomerRef    string             `gorm:"type:text;not null;index" json:"customer_ref"`
	PlanName       string             `gorm:"type:text;not null" json:"plan_name"`
	BasePrice      decimal.Decimal    `gorm:"type:numeric;not null" json:"base_price"`
	Currency       string             `gorm:"type:text;not null" json:"currency"`
	CurrentEndDate time.Time          `gorm:"not null;index" json:"current_end_date"`
	BillingCycle   BillingCycle       `gorm:"type:text;not null" json:"billing_cycle"`
	AutoRenewal    bool               `gorm:"not null;default:false" json:"auto_renewal"`
	Status         SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	CanceledAt     *time.Time         `json:"canceled_at,omitempty"`
	Metadata       datatypes.JSONMap  `json:"metadata,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
