package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const renewalColumns = `id, subscription_id, period, status, currency, subtotal, discount, tax, total, charged_amount,
	period_start, period_end, payment_provider, payment_reference, failure_reason, idempotency_key,
	metadata, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rn *domain.Renewal) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO renewals (`+renewalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rn.ID,
		rn.SubscriptionID,
		rn.Period,
		rn.Status,
		rn.Currency,
		rn.Subtotal,
		rn.Discount,
		rn.Tax,
		rn.Total,
		rn.ChargedAmount,
		rn.PeriodStart,
		rn.PeriodEnd,
		rn.PaymentProvider,
		rn.PaymentReference,
		rn.FailureReason,
		rn.IdempotencyKey,
		rn.Metadata,
		rn.CreatedAt,
	).Error
	return translateError(err)
}

func (r *repo) UpdateOutcome(ctx context.Context, db *gorm.DB, rn *domain.Renewal) error {
	return db.WithContext(ctx).Exec(
		`UPDATE renewals
		 SET status = ?, payment_provider = ?, payment_reference = ?, failure_reason = ?, idempotency_key = ?
		 WHERE id = ?`,
		rn.Status,
		rn.PaymentProvider,
		rn.PaymentReference,
		rn.FailureReason,
		rn.IdempotencyKey,
		rn.ID,
	).Error
}

// translateError maps the SQLite unique violation to gorm.ErrDuplicatedKey; the
// sqlite dialector does not translate errors itself.
func translateError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", gorm.ErrDuplicatedKey, err)
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Renewal, error) {
	var rn domain.Renewal
	err := db.WithContext(ctx).Raw(
		`SELECT `+renewalColumns+` FROM renewals WHERE id = ?`,
		id,
	).Scan(&rn).Error
	if err != nil {
		return nil, err
	}
	if rn.ID == 0 {
		return nil, nil
	}
	return &rn, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Renewal, error) {
	var rn domain.Renewal
	err := db.WithContext(ctx).Raw(
		`SELECT `+renewalColumns+` FROM renewals WHERE idempotency_key = ? LIMIT 1`,
		key,
	).Scan(&rn).Error
	if err != nil {
		return nil, err
	}
	if rn.ID == 0 {
		return nil, nil
	}
	return &rn, nil
}

func (r *repo) ListBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.Renewal, error) {
	var items []domain.Renewal
	err := db.WithContext(ctx).Raw(
		`SELECT `+renewalColumns+` FROM renewals WHERE subscription_id = ? ORDER BY created_at DESC, id DESC`,
		subscriptionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
