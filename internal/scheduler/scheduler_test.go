package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/config"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type MockSubscriptionService struct {
	subscriptiondomain.Service
	mock.Mock
}

func (m *MockSubscriptionService) ListDueForAutoRenewal(ctx context.Context, endsBefore time.Time) ([]subscriptiondomain.Subscription, error) {
	args := m.Called(ctx, endsBefore)
	items, _ := args.Get(0).([]subscriptiondomain.Subscription)
	return items, args.Error(1)
}

type MockRenewalService struct {
	renewaldomain.Service
	mock.Mock
}

func (m *MockRenewalService) Renew(ctx context.Context, req renewaldomain.RenewRequest) (*renewaldomain.Renewal, error) {
	args := m.Called(ctx, req)
	rn, _ := args.Get(0).(*renewaldomain.Renewal)
	return rn, args.Error(1)
}

// --- Tests ---

var testNow = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, subs *MockSubscriptionService, renewals *MockRenewalService) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:      zap.NewNop(),
		Clock:    clock.Fixed{At: testNow},
		Config:   config.Config{AutoRenew: config.AutoRenewConfig{Enabled: true, Schedule: "@every 1h", LeadDays: 2}},
		Subs:     subs,
		Renewals: renewals,
	})
	require.NoError(t, err)
	return s
}

func TestRunOnceRenewsDueSubscriptions(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	okSub := subscriptiondomain.Subscription{ID: node.Generate(), CurrentEndDate: testNow.Add(24 * time.Hour)}
	declinedSub := subscriptiondomain.Subscription{ID: node.Generate(), CurrentEndDate: testNow}
	brokenSub := subscriptiondomain.Subscription{ID: node.Generate(), CurrentEndDate: testNow}

	subs := new(MockSubscriptionService)
	subs.On("ListDueForAutoRenewal", mock.Anything, testNow.AddDate(0, 0, 2)).
		Return([]subscriptiondomain.Subscription{okSub, declinedSub, brokenSub}, nil)

	renewals := new(MockRenewalService)
	renewals.On("Renew", mock.Anything, mock.MatchedBy(func(req renewaldomain.RenewRequest) bool {
		return req.SubscriptionID == okSub.ID.String() &&
			req.Period == renewaldomain.PeriodOneMonth &&
			req.IdempotencyKey == IdempotencyKey(okSub, testNow)
	})).Return(&renewaldomain.Renewal{}, nil)
	renewals.On("Renew", mock.Anything, mock.MatchedBy(func(req renewaldomain.RenewRequest) bool {
		return req.SubscriptionID == declinedSub.ID.String()
	})).Return(&renewaldomain.Renewal{}, renewaldomain.ErrPaymentDeclined)
	renewals.On("Renew", mock.Anything, mock.MatchedBy(func(req renewaldomain.RenewRequest) bool {
		return req.SubscriptionID == brokenSub.ID.String()
	})).Return(nil, errors.New("db down"))

	s := newScheduler(t, subs, renewals)
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{Due: 3, Renewed: 1, Declined: 1, Failed: 1}, result)
	subs.AssertExpectations(t)
	renewals.AssertNumberOfCalls(t, "Renew", 3)
}

func TestRunOnceListError(t *testing.T) {
	subs := new(MockSubscriptionService)
	subs.On("ListDueForAutoRenewal", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	renewals := new(MockRenewalService)

	s := newScheduler(t, subs, renewals)
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
	renewals.AssertNotCalled(t, "Renew", mock.Anything, mock.Anything)
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	subs := new(MockSubscriptionService)
	subs.On("ListDueForAutoRenewal", mock.Anything, mock.Anything).
		Return([]subscriptiondomain.Subscription{{ID: node.Generate(), CurrentEndDate: testNow}}, nil)
	renewals := new(MockRenewalService)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScheduler(t, subs, renewals)
	result, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Due)
	renewals.AssertNotCalled(t, "Renew", mock.Anything, mock.Anything)
}

func TestIdempotencyKeyIsPerPeriodAndDay(t *testing.T) {
	sub := subscriptiondomain.Subscription{ID: snowflake.ID(42), CurrentEndDate: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)}
	morning := time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 2, 28, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "auto:42:2024-02-29T00:00:00Z:2024-02-28", IdempotencyKey(sub, morning))
	assert.Equal(t, IdempotencyKey(sub, morning), IdempotencyKey(sub, evening))
	assert.NotEqual(t, IdempotencyKey(sub, morning), IdempotencyKey(sub, morning.AddDate(0, 0, 1)))

	next := sub
	next.CurrentEndDate = sub.CurrentEndDate.AddDate(0, 1, 0)
	assert.NotEqual(t, IdempotencyKey(sub, morning), IdempotencyKey(next, morning))
}

func TestRunOnceRetriesDeclinedPeriodNextDay(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	sub := subscriptiondomain.Subscription{ID: node.Generate(), CurrentEndDate: testNow.Add(24 * time.Hour)}

	subs := new(MockSubscriptionService)
	subs.On("ListDueForAutoRenewal", mock.Anything, mock.Anything).Return([]subscriptiondomain.Subscription{sub}, nil)

	var keys []string
	renewals := new(MockRenewalService)
	renewals.On("Renew", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		keys = append(keys, args.Get(1).(renewaldomain.RenewRequest).IdempotencyKey)
	}).Return(&renewaldomain.Renewal{}, renewaldomain.ErrPaymentDeclined)

	s := newScheduler(t, subs, renewals)
	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	s.clock = clock.Fixed{At: testNow.AddDate(0, 0, 1)}
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New(Params{
		Log:    zap.NewNop(),
		Clock:  clock.New(),
		Config: config.Config{AutoRenew: config.AutoRenewConfig{Schedule: "every tuesday"}},
	})
	assert.Error(t, err)
}

func TestStartStopDisabled(t *testing.T) {
	s, err := New(Params{Log: zap.NewNop(), Clock: clock.New(), Config: config.Config{}})
	require.NoError(t, err)
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}
