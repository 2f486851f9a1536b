package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/renewal/internal/clock"
	"github.com/railzwaylabs/renewal/internal/config"
	"github.com/railzwaylabs/renewal/internal/observability"
	"github.com/railzwaylabs/renewal/internal/payment/adapters/manual"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/railzwaylabs/renewal/internal/renewal/lock"
	renewalrepo "github.com/railzwaylabs/renewal/internal/renewal/repository"
	renewalservice "github.com/railzwaylabs/renewal/internal/renewal/service"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	subscriptionrepo "github.com/railzwaylabs/renewal/internal/subscription/repository"
	subscriptionservice "github.com/railzwaylabs/renewal/internal/subscription/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

func newTestServer(t *testing.T, maxAmount string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}, &renewaldomain.Renewal{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.Config{
		Env: "development",
		Renewal: config.RenewalConfig{
			TaxRate: decimal.RequireFromString("0.10"),
			LockTTL: time.Minute,
		},
	}
	metrics := observability.NewMetrics(observability.NewRegistry())
	clk := clock.Fixed{At: testNow}
	subRepo := subscriptionrepo.Provide()

	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  subRepo,
	})
	renewals := renewalservice.NewService(renewalservice.ServiceParam{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		Config:           cfg,
		Repo:             renewalrepo.Provide(),
		SubscriptionRepo: subRepo,
		Gateway:          manual.New(log, node, decimal.RequireFromString(maxAmount)),
		Locker:           lock.NewLocal(),
		Metrics:          metrics,
	})

	s := NewServer(ServerParams{
		Engine:          NewEngine(cfg, log),
		Config:          cfg,
		Log:             log,
		DB:              db,
		Metrics:         metrics,
		SubscriptionSvc: subscriptions,
		RenewalSvc:      renewals,
	})
	s.RegisterRoutes()
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func createSubscription(t *testing.T, s *Server, price, end string) subscriptionResponse {
	t.Helper()
	rec, env := doJSON(t, s, http.MethodPost, "/api/subscriptions", map[string]any{
		"customer_ref":     "cus_42",
		"plan_name":        "Professional",
		"base_price":       price,
		"currency":         "usd",
		"current_end_date": end,
		"auto_renewal":     true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub subscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	return sub
}

func TestCreateRenewalQuote(t *testing.T) {
	s := newTestServer(t, "0")

	rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
		"base_price":       "49.99",
		"period":           "6-months",
		"current_end_date": "2024-06-30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var quote renewalQuoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.Equal(t, "6-months", quote.Period)
	assert.Equal(t, 6, quote.Months)
	assert.Equal(t, "299.94", quote.Subtotal)
	assert.Equal(t, "29.994", quote.Discount)
	assert.Equal(t, "269.946", quote.Taxable)
	assert.Equal(t, "26.9946", quote.Tax)
	assert.Equal(t, "296.9406", quote.Total)
	assert.Equal(t, "296.94", quote.Display.Total)
	assert.Equal(t, "2024-12-30", quote.NewExpiryDate)
}

func TestCreateRenewalQuoteExplicitTaxRate(t *testing.T) {
	s := newTestServer(t, "0")

	rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
		"base_price":       "100",
		"period":           "1-year",
		"current_end_date": "2024-01-31",
		"tax_rate":         "0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var quote renewalQuoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.Equal(t, "960", quote.Total)
	assert.Equal(t, "2025-01-31", quote.NewExpiryDate)
}

func TestCreateRenewalQuoteValidation(t *testing.T) {
	s := newTestServer(t, "0")

	cases := []struct {
		name  string
		body  map[string]any
		field string
		typ   string
	}{
		{"missing price", map[string]any{"period": "1-month", "current_end_date": "2024-01-31"}, "base_price", "required"},
		{"unknown period", map[string]any{"base_price": "10", "period": "2-years", "current_end_date": "2024-01-31"}, "period", "invalid_period"},
		{"bad date", map[string]any{"base_price": "10", "period": "1-month", "current_end_date": "31/01/2024"}, "current_end_date", "invalid_date"},
	}
	for _, tc := range cases {
		rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
		require.NotNil(t, env.Error, tc.name)
		assert.Equal(t, tc.field, env.Error.Field, tc.name)
		assert.Equal(t, tc.typ, env.Error.Type, tc.name)
	}

	rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
		"base_price":       "-1",
		"period":           "1-month",
		"current_end_date": "2024-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, renewaldomain.ErrInvalidPrice.Error(), env.Error.Type)
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t, "0")
	sub := createSubscription(t, s, "49.99", "2024-06-30")
	assert.Equal(t, "USD", sub.Currency)
	assert.Equal(t, "2024-06-30", sub.CurrentEndDate)
	assert.Equal(t, "monthly", sub.BillingCycle)

	rec, env := doJSON(t, s, http.MethodGet, "/api/subscriptions/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got subscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, sub.ID, got.ID)

	rec, env = doJSON(t, s, http.MethodPatch, "/api/subscriptions/"+sub.ID+"/auto-renewal", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.AutoRenewal)

	rec, env = doJSON(t, s, http.MethodGet, "/api/subscriptions?auto_renewal=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []subscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	rec, env = doJSON(t, s, http.MethodPost, "/api/subscriptions/"+sub.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "CANCELED", got.Status)

	rec, env = doJSON(t, s, http.MethodPost, "/api/subscriptions/"+sub.ID+"/renewals", map[string]any{"period": "1-month"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, subscriptiondomain.ErrSubscriptionCanceled.Error(), env.Error.Type)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	s := newTestServer(t, "0")

	rec, env := doJSON(t, s, http.MethodGet, "/api/subscriptions/123456", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, subscriptiondomain.ErrSubscriptionNotFound.Error(), env.Error.Type)
}

func TestRenewSubscription(t *testing.T) {
	s := newTestServer(t, "0")
	sub := createSubscription(t, s, "49.99", "2024-06-30")

	rec, env := doJSON(t, s, http.MethodGet, "/api/subscriptions/"+sub.ID+"/renewal-quote?period=3-months", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote renewalQuoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	assert.Equal(t, "2024-09-30", quote.NewExpiryDate)

	rec, env = doJSON(t, s, http.MethodPost, "/api/subscriptions/"+sub.ID+"/renewals",
		map[string]any{"period": "3-months", "payment_method": "card"},
		"Idempotency-Key", "renew-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first renewalResponse
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "SUCCEEDED", first.Status)
	assert.Equal(t, "2024-06-30", first.PeriodStart)
	assert.Equal(t, "2024-09-30", first.PeriodEnd)
	assert.Equal(t, quote.Total, first.Total)
	require.NotNil(t, first.PaymentReference)

	rec, env = doJSON(t, s, http.MethodPost, "/api/subscriptions/"+sub.ID+"/renewals",
		map[string]any{"period": "3-months"},
		"Idempotency-Key", "renew-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var replay renewalResponse
	require.NoError(t, json.Unmarshal(env.Data, &replay))
	assert.Equal(t, first.ID, replay.ID)

	rec, env = doJSON(t, s, http.MethodGet, "/api/subscriptions/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got subscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "2024-09-30", got.CurrentEndDate)

	rec, env = doJSON(t, s, http.MethodGet, "/api/subscriptions/"+sub.ID+"/renewals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []renewalResponse
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
}

func TestRenewDeclined(t *testing.T) {
	s := newTestServer(t, "10")
	sub := createSubscription(t, s, "49.99", "2024-06-30")

	rec, env := doJSON(t, s, http.MethodPost, "/api/subscriptions/"+sub.ID+"/renewals", map[string]any{"period": "1-month"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, renewaldomain.ErrPaymentDeclined.Error(), env.Error.Type)

	var record renewalResponse
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, "FAILED", record.Status)
	require.NotNil(t, record.FailureReason)

	rec, env = doJSON(t, s, http.MethodGet, "/api/subscriptions/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got subscriptionResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "2024-06-30", got.CurrentEndDate)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "0")

	rec, _ := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
		"base_price":       "10",
		"period":           "1-month",
		"current_end_date": "2024-01-31",
	})

	rec, _ = doJSON(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `renewal_quotes_total{period="1-month"} 1`)
}

func TestCreateRenewalQuoteKeepsCallerCalendarDate(t *testing.T) {
	s := newTestServer(t, "0")

	for _, end := range []string{"2024-01-31", "2024-01-31T23:00:00-05:00", "2024-01-31T00:30:00+09:00"} {
		rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
			"base_price":       "100",
			"period":           "1-month",
			"current_end_date": end,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var quote renewalQuoteResponse
		require.NoError(t, json.Unmarshal(env.Data, &quote))
		assert.Equal(t, "2024-02-29", quote.NewExpiryDate, end)
	}
}

func TestCreateSubscriptionKeepsCallerCalendarDate(t *testing.T) {
	s := newTestServer(t, "0")

	sub := createSubscription(t, s, "10", "2024-06-30T22:00:00-04:00")
	assert.Equal(t, "2024-06-30", sub.CurrentEndDate)
}

func TestPeriodLiteralsAreCaseSensitive(t *testing.T) {
	s := newTestServer(t, "0")

	rec, env := doJSON(t, s, http.MethodPost, "/api/renewal-quotes", map[string]any{
		"base_price":       "100",
		"period":           "1-YEAR",
		"current_end_date": "2024-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "period", env.Error.Field)
}
