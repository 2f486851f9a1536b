package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/railzwaylabs/renewal/internal/payment/domain"
	renewaldomain "github.com/railzwaylabs/renewal/internal/renewal/domain"
	subscriptiondomain "github.com/railzwaylabs/renewal/internal/subscription/domain"
)

type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Type: code, Field: field, Message: message}
}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Type: "invalid_request", Message: "invalid request"}
}

var errorStatus = []struct {
	err    error
	status int
}{
	{renewaldomain.ErrInvalidPeriod, http.StatusBadRequest},
	{renewaldomain.ErrInvalidPrice, http.StatusBadRequest},
	{renewaldomain.ErrInvalidTaxRate, http.StatusBadRequest},
	{renewaldomain.ErrInvalidEndDate, http.StatusBadRequest},
	{renewaldomain.ErrRenewalInProgress, http.StatusConflict},
	{renewaldomain.ErrIdempotencyConflict, http.StatusConflict},
	{renewaldomain.ErrPaymentDeclined, http.StatusPaymentRequired},
	{renewaldomain.ErrRenewalNotFound, http.StatusNotFound},

	{subscriptiondomain.ErrInvalidSubscription, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidCustomer, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidPlanName, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidBasePrice, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidCurrency, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidEndDate, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidBillingCycleType, http.StatusBadRequest},
	{subscriptiondomain.ErrInvalidStatus, http.StatusBadRequest},
	{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound},
	{subscriptiondomain.ErrSubscriptionCanceled, http.StatusConflict},

	{paymentdomain.ErrInvalidAmount, http.StatusBadRequest},
	{paymentdomain.ErrInvalidCurrency, http.StatusBadRequest},
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return &APIError{Status: e.status, Type: e.err.Error(), Message: e.err.Error()}
		}
	}
	return &APIError{Status: http.StatusInternalServerError, Type: "internal_error", Message: "internal error"}
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
