package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

type createSubscriptionRequest struct {
	CustomerRef    string           `json:"customer_ref"`
	PlanName       string           `json:"plan_name"`
	BasePrice      *decimal.Decimal `json:"base_price"`
	Currency       string           `json:"currency"`
	CurrentEndDate string           `json:"current_end_date"`
	BillingCycle   string           `json:"billing_cycle"`
	AutoRenewal    bool             `json:"auto_renewal"`
	Metadata       map[string]any   `json:"metadata"`
}

type updateAutoRenewalRequest struct {
	Enabled *bool `json:"enabled"`
}

type subscriptionResponse struct {
	ID             string         `json:"id"`
	CustomerRef    string         `json:"customer_ref"`
	PlanName       string         `json:"plan_name"`
	BasePrice      string         `json:"base_price"`
	Currency       string         `json:"currency"`
	CurrentEndDate string         `json:"current_end_date"`
	BillingCycle   string         `json:"billing_cycle"`
	AutoRenewal    bool           `json:"auto_renewal"`
	Status         string         `json:"status"`
	CanceledAt     *time.Time     `json:"canceled_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func newSubscriptionResponse(sub subscriptiondomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:             sub.ID.String(),
		CustomerRef:    sub.CustomerRef,
		PlanName:       sub.PlanName,
		BasePrice:      sub.BasePrice.String(),
		Currency:       sub.Currency,
		CurrentEndDate: sub.CurrentEndDate.Format(dateLayout),
		BillingCycle:   string(sub.BillingCycle),
		AutoRenewal:    sub.AutoRenewal,
		Status:         string(sub.Status),
		CanceledAt:     sub.CanceledAt,
		Metadata:       sub.Metadata,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
}

// @Summary      Create subscription
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /subscriptions [post]
func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.BasePrice == nil {
		AbortWithError(c, newValidationError("base_price", "required", "base_price is required"))
		return
	}
	endDate, err := parseDate(req.CurrentEndDate)
	if err != nil {
		AbortWithError(c, newValidationError("current_end_date", "invalid_date", "current_end_date must be YYYY-MM-DD or RFC3339"))
		return
	}

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		CustomerRef:    req.CustomerRef,
		PlanName:       req.PlanName,
		BasePrice:      *req.BasePrice,
		Currency:       req.Currency,
		CurrentEndDate: endDate,
		BillingCycle:   req.BillingCycle,
		AutoRenewal:    req.AutoRenewal,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, newSubscriptionResponse(sub))
}

// @Summary      List subscriptions
// @Tags         subscriptions
// @Produce      json
// @Param        status        query  string  false  "ACTIVE or CANCELED"
// @Param        customer_ref  query  string  false  "Customer reference"
// @Param        auto_renewal  query  bool    false  "Auto-renewal flag"
// @Success      200  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /subscriptions [get]
func (s *Server) ListSubscriptions(c *gin.Context) {
	req := subscriptiondomain.ListSubscriptionRequest{
		Status:      strings.TrimSpace(c.Query("status")),
		CustomerRef: strings.TrimSpace(c.Query("customer_ref")),
	}
	if raw := strings.TrimSpace(c.Query("auto_renewal")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("auto_renewal", "invalid_auto_renewal", "auto_renewal must be a boolean"))
			return
		}
		req.AutoRenewal = &v
	}

	items, err := s.subscriptionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]subscriptionResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newSubscriptionResponse(item))
	}
	respondList(c, resp)
}

// @Summary      Get subscription
// @Tags         subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /subscriptions/{id} [get]
func (s *Server) GetSubscriptionByID(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, newSubscriptionResponse(sub))
}

// @Summary      Toggle auto-renewal
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /subscriptions/{id}/auto-renewal [patch]
func (s *Server) UpdateAutoRenewal(c *gin.Context) {
	var req updateAutoRenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Enabled == nil {
		AbortWithError(c, newValidationError("enabled", "required", "enabled is required"))
		return
	}

	sub, err := s.subscriptionSvc.SetAutoRenewal(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, newSubscriptionResponse(sub))
}

// @Summary      Cancel subscription
// @Tags         subscriptions
// @Produce      json
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /subscriptions/{id}/cancel [post]
func (s *Server) CancelSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, newSubscriptionResponse(sub))
}
