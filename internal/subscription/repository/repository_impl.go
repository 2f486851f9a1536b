package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, customer_ref, plan_name, base_price, currency, current_end_date, billing_cycle,
	auto_renewal, status, canceled_at, metadata, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.CustomerRef,
		s.PlanName,
		s.BasePrice,
		s.Currency,
		s.CurrentEndDate,
		s.BillingCycle,
		s.AutoRenewal,
		s.Status,
		s.CanceledAt,
		s.Metadata,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Subscription, error) {
	var items []domain.Subscription
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerRef != "" {
		stmt = stmt.Where("customer_ref = ?", filter.CustomerRef)
	}
	if filter.AutoRenewal != nil {
		stmt = stmt.Where("auto_renewal = ?", *filter.AutoRenewal)
	}

	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDueForAutoRenewal(ctx context.Context, db *gorm.DB, endsBefore time.Time) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = ? AND auto_renewal = ? AND current_end_date <= ?
		 ORDER BY current_end_date ASC, id ASC`,
		domain.SubscriptionStatusActive,
		true,
		endsBefore,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateEndDate(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET current_end_date = ?, updated_at = ? WHERE id = ?`,
		endDate,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateAutoRenewal(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET auto_renewal = ?, updated_at = ? WHERE id = ?`,
		enabled,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	if s == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, canceled_at = ?, updated_at = ? WHERE id = ?`,
		s.Status,
		s.CanceledAt,
		s.UpdatedAt,
		s.ID,
	).Error
}
