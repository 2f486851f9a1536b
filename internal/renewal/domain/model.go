package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RenewalStatus string

const (
	RenewalStatusPending   RenewalStatus = "PENDING"
	RenewalStatusSucceeded RenewalStatus = "SUCCEEDED"
	RenewalStatusFailed    RenewalStatus = "FAILED"
)

// Renewal is one entry of a subscription's billing history. It is written as PENDING
// before the charge and finalized to SUCCEEDED or FAILED once the gateway answers.
type Renewal struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID   snowflake.ID      `gorm:"not null;index" json:"subscription_id"`
	Period           Period            `gorm:"type:text;not null" json:"period"`
	Status           RenewalStatus     `gorm:"type:text;not null" json:"status"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	Subtotal         decimal.Decimal   `gorm:"type:numeric;not null" json:"subtotal"`
	Discount         decimal.Decimal   `gorm:"type:numeric;not null" json:"discount"`
	Tax              decimal.Decimal   `gorm:"type:numeric;not null" json:"tax"`
	Total            decimal.Decimal   `gorm:"type:numeric;not null" json:"total"`
	ChargedAmount    decimal.Decimal   `gorm:"type:numeric;not null" json:"charged_amount"`
	PeriodStart      time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time         `gorm:"not null" json:"period_end"`
	PaymentProvider  string            `gorm:"type:text" json:"payment_provider"`
	PaymentReference *string           `gorm:"type:text" json:"payment_reference,omitempty"`
	FailureReason    *string           `gorm:"type:text" json:"failure_reason,omitempty"`
	IdempotencyKey   *string           `gorm:"type:text;uniqueIndex" json:"-"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (Renewal) TableName() string { return "renewals" }
