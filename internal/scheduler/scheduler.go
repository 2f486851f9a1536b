package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/config"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const autoRenewPeriod = renewaldomain.PeriodOneMonth

type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.AutoRenewConfig
	subs     subscriptiondomain.Service
	renewals renewaldomain.Service

	cron    *cron.Cron
	running sync.Mutex
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Subs     subscriptiondomain.Service
	Renewals renewaldomain.Service
}

func New(p Params) (*Scheduler, error) {
	s := &Scheduler{
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		cfg:      p.Config.AutoRenew,
		subs:     p.Subs,
		renewals: p.Renewals,
		cron:     cron.New(),
	}

	schedule := s.cfg.Schedule
	if schedule == "" {
		schedule = "@every 1h"
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid auto-renew schedule %q: %w", schedule, err)
	}
	return s, nil
}

type RunResult struct {
	Due      int
	Renewed  int
	Declined int
	Failed   int
}

// RunOnce renews every active auto-renewing subscription that ends within the lead window.
// Failures are logged per subscription and never stop the batch.
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	now := s.clock.Now(ctx)
	horizon := now.AddDate(0, 0, s.cfg.LeadDays)

	due, err := s.subs.ListDueForAutoRenewal(ctx, horizon)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Due: len(due)}
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.renewals.Renew(ctx, renewaldomain.RenewRequest{
			SubscriptionID: sub.ID.String(),
			Period:         autoRenewPeriod,
			IdempotencyKey: IdempotencyKey(sub, now),
			Metadata:       map[string]any{"trigger": "auto_renewal"},
		})
		switch {
		case err == nil:
			result.Renewed++
		case errors.Is(err, renewaldomain.ErrPaymentDeclined):
			result.Declined++
			s.log.Warn("auto renewal declined", zap.String("subscription_id", sub.ID.String()))
		default:
			result.Failed++
			s.log.Error("auto renewal failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		}
	}
	return result, nil
}

// IdempotencyKey ties an automatic renewal to the period it extends and to the UTC day
// of the attempt. Runs on the same day replay one outcome; a declined period is tried
// again on the next day while it stays inside the lead window.
func IdempotencyKey(sub subscriptiondomain.Subscription, at time.Time) string {
	return fmt.Sprintf("auto:%s:%s:%s",
		sub.ID.String(),
		sub.CurrentEndDate.UTC().Format(time.RFC3339),
		at.UTC().Format("2006-01-02"),
	)
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.log.Warn("previous auto renewal run still in progress, skipping")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("auto renewal run failed", zap.Error(err))
		return
	}
	s.log.Info("auto renewal run finished",
		zap.Int("due", result.Due),
		zap.Int("renewed", result.Renewed),
		zap.Int("declined", result.Declined),
		zap.Int("failed", result.Failed),
	)
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.log.Info("auto renewal disabled")
		return
	}
	s.cron.Start()
	s.log.Info("auto renewal scheduler started", zap.String("schedule", s.cfg.Schedule))
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
