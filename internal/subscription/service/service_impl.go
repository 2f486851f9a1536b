package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	customerRef := strings.TrimSpace(req.CustomerRef)
	if customerRef == "" {
		return domain.Subscription{}, domain.ErrInvalidCustomer
	}
	planName := strings.TrimSpace(req.PlanName)
	if planName == "" {
		return domain.Subscription{}, domain.ErrInvalidPlanName
	}
	if req.BasePrice.IsNegative() {
		return domain.Subscription{}, domain.ErrInvalidBasePrice
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.Subscription{}, err
	}
	if req.CurrentEndDate.IsZero() {
		return domain.Subscription{}, domain.ErrInvalidEndDate
	}
	cycle, err := normalizeBillingCycle(req.BillingCycle)
	if err != nil {
		return domain.Subscription{}, err
	}

	now := s.clock.Now(ctx)
	subscription := domain.Subscription{
		ID:             s.genID.Generate(),
		CustomerRef:    customerRef,
		PlanName:       planName,
		BasePrice:      req.BasePrice,
		Currency:       currency,
		CurrentEndDate: req.CurrentEndDate.UTC(),
		BillingCycle:   cycle,
		AutoRenewal:    req.AutoRenewal,
		Status:         domain.SubscriptionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Metadata != nil {
		subscription.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, &subscription); err != nil {
		return domain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("customer_ref", customerRef),
		zap.Bool("auto_renewal", subscription.AutoRenewal),
	)
	return subscription, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if item == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionRequest) ([]domain.Subscription, error) {
	filter := domain.ListFilter{
		CustomerRef: strings.TrimSpace(req.CustomerRef),
		AutoRenewal: req.AutoRenewal,
	}

	status, err := parseStatusFilter(req.Status)
	if err != nil {
		return nil, err
	}
	filter.Status = status

	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) SetAutoRenewal(ctx context.Context, id string, enabled bool) (domain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}

	var out domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}
		if subscription.Status == domain.SubscriptionStatusCanceled && enabled {
			return domain.ErrSubscriptionCanceled
		}

		now := s.clock.Now(ctx)
		if err := s.repo.UpdateAutoRenewal(ctx, tx, subscriptionID, enabled, now); err != nil {
			return err
		}
		subscription.AutoRenewal = enabled
		subscription.UpdatedAt = now
		out = *subscription
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return out, nil
}

// Cancel stops further renewals. The paid-up period is left untouched.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}

	var out domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}
		if subscription.Status == domain.SubscriptionStatusCanceled {
			out = *subscription
			return nil
		}

		now := s.clock.Now(ctx)
		subscription.Status = domain.SubscriptionStatusCanceled
		subscription.CanceledAt = &now
		subscription.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, subscription); err != nil {
			return err
		}
		if subscription.AutoRenewal {
			if err := s.repo.UpdateAutoRenewal(ctx, tx, subscriptionID, false, now); err != nil {
				return err
			}
			subscription.AutoRenewal = false
		}
		out = *subscription
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	s.log.Info("subscription canceled", zap.String("subscription_id", out.ID.String()))
	return out, nil
}

func (s *Service) ListDueForAutoRenewal(ctx context.Context, endsBefore time.Time) ([]domain.Subscription, error) {
	return s.repo.ListDueForAutoRenewal(ctx, s.db, endsBefore.UTC())
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidSubscription
	}
	return id, nil
}

func parseStatusFilter(value string) (domain.SubscriptionStatus, error) {
	status := strings.ToUpper(strings.TrimSpace(value))
	if status == "" {
		return "", nil
	}
	switch domain.SubscriptionStatus(status) {
	case domain.SubscriptionStatusActive, domain.SubscriptionStatusCanceled:
		return domain.SubscriptionStatus(status), nil
	default:
		return "", domain.ErrInvalidStatus
	}
}

func normalizeBillingCycle(value string) (domain.BillingCycle, error) {
	cycle := strings.ToUpper(strings.TrimSpace(value))
	switch cycle {
	case "", "MONTHLY":
		return domain.BillingCycleMonthly, nil
	default:
		return "", domain.ErrInvalidBillingCycleType
	}
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return currency, nil
}
