package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/railzwaylabs/renewal/internal/renewal/calculator"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type createRenewalQuoteRequest struct {
	BasePrice      *decimal.Decimal `json:"base_price"`
	Period         string           `json:"period"`
	CurrentEndDate string           `json:"current_end_date"`
	TaxRate        *decimal.Decimal `json:"tax_rate"`
}

type quoteAmounts struct {
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Taxable  string `json:"taxable"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

type renewalQuoteResponse struct {
	Period        string       `json:"period"`
	Months        int          `json:"months"`
	BasePrice     string       `json:"base_price"`
	DiscountRate  string       `json:"discount_rate"`
	TaxRate       string       `json:"tax_rate"`
	Subtotal      string       `json:"subtotal"`
	Discount      string       `json:"discount"`
	Taxable       string       `json:"taxable"`
	Tax           string       `json:"tax"`
	Total         string       `json:"total"`
	NewExpiryDate string       `json:"new_expiry_date"`
	Display       quoteAmounts `json:"display"`
}

func newRenewalQuoteResponse(q renewaldomain.RenewalQuote) renewalQuoteResponse {
	return renewalQuoteResponse{
		Period:        string(q.Period),
		Months:        q.Months,
		BasePrice:     q.BasePrice.String(),
		DiscountRate:  q.DiscountRate.String(),
		TaxRate:       q.TaxRate.String(),
		Subtotal:      q.Subtotal.String(),
		Discount:      q.Discount.String(),
		Taxable:       q.Taxable.String(),
		Tax:           q.Tax.String(),
		Total:         q.Total.String(),
		NewExpiryDate: q.NewExpiryDate.Format(dateLayout),
		Display: quoteAmounts{
			Subtotal: q.Subtotal.StringFixed(2),
			Discount: q.Discount.StringFixed(2),
			Taxable:  q.Taxable.StringFixed(2),
			Tax:      q.Tax.StringFixed(2),
			Total:    q.Total.StringFixed(2),
		},
	}
}

// @Summary      Quote a renewal
// @Tags         renewals
// @Accept       json
// @Produce      json
// @Success      200  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /renewal-quotes [post]
func (s *Server) CreateRenewalQuote(c *gin.Context) {
	var req createRenewalQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.BasePrice == nil {
		AbortWithError(c, newValidationError("base_price", "required", "base_price is required"))
		return
	}
	period, err := renewaldomain.ParsePeriod(req.Period)
	if err != nil {
		s.metrics.QuoteRejected(err.Error())
		AbortWithError(c, newValidationError("period", "invalid_period", "period must be one of 1-month, 3-months, 6-months, 1-year"))
		return
	}
	endDate, err := parseDate(req.CurrentEndDate)
	if err != nil {
		AbortWithError(c, newValidationError("current_end_date", "invalid_date", "current_end_date must be YYYY-MM-DD or RFC3339"))
		return
	}

	var opts []calculator.Option
	if req.TaxRate != nil {
		opts = append(opts, calculator.WithTaxRate(*req.TaxRate))
	}
	quote, err := calculator.Quote(*req.BasePrice, period, endDate, opts...)
	if err != nil {
		s.metrics.QuoteRejected(err.Error())
		AbortWithError(c, err)
		return
	}
	s.metrics.QuoteComputed(string(period))

	respondData(c, newRenewalQuoteResponse(quote))
}

// @Summary      Quote a subscription renewal
// @Tags         renewals
// @Produce      json
// @Param        id      path   string  true  "Subscription ID"
// @Param        period  query  string  true  "Renewal period"
// @Success      200  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /subscriptions/{id}/renewal-quote [get]
func (s *Server) GetRenewalQuote(c *gin.Context) {
	period, err := renewaldomain.ParsePeriod(c.Query("period"))
	if err != nil {
		AbortWithError(c, newValidationError("period", "invalid_period", "period must be one of 1-month, 3-months, 6-months, 1-year"))
		return
	}

	quote, err := s.renewalSvc.QuoteSubscription(c.Request.Context(), c.Param("id"), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, newRenewalQuoteResponse(quote))
}

type renewalResponse struct {
	ID               string         `json:"id"`
	SubscriptionID   string         `json:"subscription_id"`
	Period           string         `json:"period"`
	Status           string         `json:"status"`
	Currency         string         `json:"currency"`
	Subtotal         string         `json:"subtotal"`
	Discount         string         `json:"discount"`
	Tax              string         `json:"tax"`
	Total            string         `json:"total"`
	ChargedAmount    string         `json:"charged_amount"`
	PeriodStart      string         `json:"period_start"`
	PeriodEnd        string         `json:"period_end"`
	PaymentProvider  string         `json:"payment_provider"`
	PaymentReference *string        `json:"payment_reference,omitempty"`
	FailureReason    *string        `json:"failure_reason,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func newRenewalResponse(r renewaldomain.Renewal) renewalResponse {
	return renewalResponse{
		ID:               r.ID.String(),
		SubscriptionID:   r.SubscriptionID.String(),
		Period:           string(r.Period),
		Status:           string(r.Status),
		Currency:         r.Currency,
		Subtotal:         r.Subtotal.String(),
		Discount:         r.Discount.String(),
		Tax:              r.Tax.String(),
		Total:            r.Total.String(),
		ChargedAmount:    r.ChargedAmount.StringFixed(2),
		PeriodStart:      r.PeriodStart.Format(dateLayout),
		PeriodEnd:        r.PeriodEnd.Format(dateLayout),
		PaymentProvider:  r.PaymentProvider,
		PaymentReference: r.PaymentReference,
		FailureReason:    r.FailureReason,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
	}
}

type createRenewalRequest struct {
	Period        string         `json:"period"`
	PaymentMethod string         `json:"payment_method"`
	Metadata      map[string]any `json:"metadata"`
}

// @Summary      Renew a subscription
// @Tags         renewals
// @Accept       json
// @Produce      json
// @Param        id               path    string  true   "Subscription ID"
// @Param        Idempotency-Key  header  string  false  "Idempotency key"
// @Success      201  {object}  DataResponse
// @Failure      402  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /subscriptions/{id}/renewals [post]
func (s *Server) CreateRenewal(c *gin.Context) {
	var req createRenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period, err := renewaldomain.ParsePeriod(req.Period)
	if err != nil {
		AbortWithError(c, newValidationError("period", "invalid_period", "period must be one of 1-month, 3-months, 6-months, 1-year"))
		return
	}

	record, err := s.renewalSvc.Renew(c.Request.Context(), renewaldomain.RenewRequest{
		SubscriptionID: c.Param("id"),
		Period:         period,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IdempotencyKey: idempotencyKeyFromHeader(c),
		Metadata:       req.Metadata,
	})
	if err != nil {
		if errors.Is(err, renewaldomain.ErrPaymentDeclined) && record != nil {
			apiErr := toAPIError(err)
			c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr, "data": newRenewalResponse(*record)})
			return
		}
		AbortWithError(c, err)
		return
	}

	respondCreated(c, newRenewalResponse(*record))
}

// @Summary      List renewals of a subscription
// @Tags         renewals
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /subscriptions/{id}/renewals [get]
func (s *Server) ListRenewals(c *gin.Context) {
	items, err := s.renewalSvc.ListRenewals(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]renewalResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newRenewalResponse(item))
	}
	respondList(c, resp)
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, renewaldomain.ErrInvalidEndDate
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, renewaldomain.ErrInvalidEndDate
	}
	// Keep the calendar date the caller wrote; converting to UTC first can move it a day.
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func idempotencyKeyFromHeader(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}
