package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/config"
	"github.com/railzwaylabs/renewal/internal/observability"
	paymentdomain "github.com/railzwaylabs/renewal/internal/payment/domain"
	"github.com/railzwaylabs/renewal/internal/renewal/calculator"
	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultLockTTL = 30 * time.Second
	chargePlaces   = 2
)

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	tracer trace.Tracer

	genID            *snowflake.Node
	clock            clock.Clock
	taxRate          decimal.Decimal
	lockTTL          time.Duration
	repo             domain.Repository
	subscriptionRepo subscriptiondomain.Repository
	gateway          paymentdomain.Gateway
	locker           domain.Locker
	metrics          *observability.Metrics
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config

	Repo             domain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Gateway          paymentdomain.Gateway
	Locker           domain.Locker
	Metrics          *observability.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	lockTTL := p.Config.Renewal.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("renewal.service"),
		tracer: otel.Tracer("renewal.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		taxRate:          p.Config.Renewal.TaxRate,
		lockTTL:          lockTTL,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		gateway:          p.Gateway,
		locker:           p.Locker,
		metrics:          p.Metrics,
	}
}

// QuoteSubscription prices a renewal of a stored subscription with the configured tax rate.
func (s *Service) QuoteSubscription(ctx context.Context, subscriptionID string, period domain.Period) (quote domain.RenewalQuote, err error) {
	ctx, span := s.tracer.Start(ctx, "renewal.QuoteSubscription", trace.WithAttributes(
		attribute.String("subscription.id", subscriptionID),
		attribute.String("renewal.period", string(period)),
	))
	defer func() { endSpan(span, err) }()

	if !period.Valid() {
		s.metrics.QuoteRejected(domain.ErrInvalidPeriod.Error())
		return domain.RenewalQuote{}, domain.ErrInvalidPeriod
	}

	id, err := parseID(subscriptionID)
	if err != nil {
		return domain.RenewalQuote{}, err
	}

	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.RenewalQuote{}, err
	}
	if subscription == nil {
		return domain.RenewalQuote{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	quote, err = s.quote(subscription, period)
	if err != nil {
		return domain.RenewalQuote{}, err
	}
	return quote, nil
}

// Renew records a PENDING renewal, charges the quoted total and, on success, extends
// the subscription to the quote's expiry. A declined charge is recorded as FAILED and
// leaves the subscription untouched.
func (s *Service) Renew(ctx context.Context, req domain.RenewRequest) (out *domain.Renewal, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "renewal.Renew", trace.WithAttributes(
		attribute.String("subscription.id", req.SubscriptionID),
		attribute.String("renewal.period", string(req.Period)),
	))
	defer func() {
		endSpan(span, err)
		s.metrics.RenewalFinished(outcome(err), time.Since(started).Seconds())
	}()

	if !req.Period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}
	id, err := parseID(req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)

	release, err := s.locker.Acquire(ctx, id.String(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(context.Background()); relErr != nil {
			s.log.Warn("release renewal lock", zap.String("subscription_id", id.String()), zap.Error(relErr))
		}
	}()

	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return replay(existing, id)
		}
	}

	renewal, subscription, err := s.reserve(ctx, req, id, idempotencyKey)
	if err != nil {
		if idempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return replay(existing, id)
			}
		}
		return nil, err
	}

	chargeKey := idempotencyKey
	if chargeKey == "" {
		chargeKey = "renewal:" + renewal.ID.String()
	}
	charge, err := s.gateway.Charge(ctx, paymentdomain.ChargeRequest{
		SubscriptionID: id,
		CustomerRef:    subscription.CustomerRef,
		Amount:         renewal.ChargedAmount,
		Currency:       renewal.Currency,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IdempotencyKey: chargeKey,
		Description:    subscription.PlanName + " renewal (" + string(req.Period) + ")",
	})
	if err != nil {
		s.abandon(ctx, renewal, err)
		return nil, err
	}

	renewal.PaymentProvider = charge.Provider
	if charge.Reference != "" {
		ref := charge.Reference
		renewal.PaymentReference = &ref
	}

	if charge.Status != paymentdomain.ChargeStatusSucceeded {
		reason := charge.DeclineReason
		if reason == "" {
			reason = string(charge.Status)
		}
		renewal.Status = domain.RenewalStatusFailed
		renewal.FailureReason = &reason
		if err := s.repo.UpdateOutcome(ctx, s.db, renewal); err != nil {
			return nil, err
		}
		s.log.Info("renewal payment declined",
			zap.String("subscription_id", id.String()),
			zap.String("renewal_id", renewal.ID.String()),
			zap.String("reason", reason),
		)
		return renewal, domain.ErrPaymentDeclined
	}

	renewal.Status = domain.RenewalStatusSucceeded
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateOutcome(ctx, tx, renewal); err != nil {
			return err
		}
		return s.subscriptionRepo.UpdateEndDate(ctx, tx, id, renewal.PeriodEnd, s.clock.Now(ctx))
	})
	if err != nil {
		// The customer has been charged; the PENDING record and this log line are
		// what reconciliation works from.
		s.log.Error("record successful renewal charge",
			zap.String("subscription_id", id.String()),
			zap.String("renewal_id", renewal.ID.String()),
			zap.String("payment_provider", charge.Provider),
			zap.String("payment_reference", charge.Reference),
			zap.String("charged_amount", renewal.ChargedAmount.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record charge %s for renewal %s: %w", charge.Reference, renewal.ID, err)
	}

	s.log.Info("subscription renewed",
		zap.String("subscription_id", id.String()),
		zap.String("renewal_id", renewal.ID.String()),
		zap.String("period", string(req.Period)),
		zap.String("total", renewal.Total.String()),
		zap.Time("new_end_date", renewal.PeriodEnd),
	)
	return renewal, nil
}

// reserve validates the subscription under a row lock and stores a PENDING renewal
// before any money moves.
func (s *Service) reserve(ctx context.Context, req domain.RenewRequest, id snowflake.ID, idempotencyKey string) (*domain.Renewal, *subscriptiondomain.Subscription, error) {
	var (
		renewal      domain.Renewal
		subscription *subscriptiondomain.Subscription
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		subscription, err = s.subscriptionRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status == subscriptiondomain.SubscriptionStatusCanceled {
			return subscriptiondomain.ErrSubscriptionCanceled
		}

		quote, err := s.quote(subscription, req.Period)
		if err != nil {
			return err
		}

		renewal = domain.Renewal{
			ID:             s.genID.Generate(),
			SubscriptionID: id,
			Period:         req.Period,
			Status:         domain.RenewalStatusPending,
			Currency:       subscription.Currency,
			Subtotal:       quote.Subtotal,
			Discount:       quote.Discount,
			Tax:            quote.Tax,
			Total:          quote.Total,
			ChargedAmount:  quote.Total.Round(chargePlaces),
			PeriodStart:    subscription.CurrentEndDate.UTC(),
			PeriodEnd:      quote.NewExpiryDate,
			CreatedAt:      s.clock.Now(ctx),
		}
		if idempotencyKey != "" {
			renewal.IdempotencyKey = &idempotencyKey
		}
		if req.Metadata != nil {
			renewal.Metadata = datatypes.JSONMap(req.Metadata)
		}
		return s.repo.Insert(ctx, tx, &renewal)
	})
	if err != nil {
		return nil, nil, err
	}
	return &renewal, subscription, nil
}

// abandon marks a renewal whose charge errored as FAILED and frees its idempotency
// key, so the caller can retry with the same key.
func (s *Service) abandon(ctx context.Context, renewal *domain.Renewal, chargeErr error) {
	reason := "gateway_error"
	renewal.Status = domain.RenewalStatusFailed
	renewal.FailureReason = &reason
	renewal.IdempotencyKey = nil
	if err := s.repo.UpdateOutcome(context.WithoutCancel(ctx), s.db, renewal); err != nil {
		s.log.Error("mark renewal failed after gateway error",
			zap.String("renewal_id", renewal.ID.String()),
			zap.NamedError("charge_error", chargeErr),
			zap.Error(err),
		)
		return
	}
	s.log.Warn("renewal charge errored",
		zap.String("subscription_id", renewal.SubscriptionID.String()),
		zap.String("renewal_id", renewal.ID.String()),
		zap.Error(chargeErr),
	)
}

func (s *Service) ListRenewals(ctx context.Context, subscriptionID string) ([]domain.Renewal, error) {
	id, err := parseID(subscriptionID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.subscriptionRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	return s.repo.ListBySubscriptionID(ctx, s.db, id)
}

func (s *Service) quote(subscription *subscriptiondomain.Subscription, period domain.Period) (domain.RenewalQuote, error) {
	quote, err := calculator.Quote(
		subscription.BasePrice,
		period,
		subscription.CurrentEndDate.UTC(),
		calculator.WithTaxRate(s.taxRate),
	)
	if err != nil {
		s.metrics.QuoteRejected(err.Error())
		return domain.RenewalQuote{}, err
	}
	s.metrics.QuoteComputed(string(period))
	return quote, nil
}

// replay answers a retried request with the outcome recorded the first time.
func replay(existing *domain.Renewal, subscriptionID snowflake.ID) (*domain.Renewal, error) {
	if existing.SubscriptionID != subscriptionID {
		return nil, domain.ErrIdempotencyConflict
	}
	switch existing.Status {
	case domain.RenewalStatusFailed:
		return existing, domain.ErrPaymentDeclined
	case domain.RenewalStatusPending:
		return nil, domain.ErrRenewalInProgress
	}
	return existing, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return id, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return "declined"
	case errors.Is(err, domain.ErrRenewalInProgress):
		return "locked"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
