package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coresolution/billinghub/internal/authz"
	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	pgconfigdomain "github.com/coresolution/billinghub/internal/pgconfig/domain"
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Message }

var (
	ErrUnauthorized = &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrForbidden    = &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "insufficient permissions"}
)

func invalidRequestError(message string) *apiError {
	if message == "" {
		message = "invalid request body"
	}
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: message}
}

// errStatus maps a domain error onto the HTTP status the client should
// see. Unknown errors stay 500 so internals never leak.
func errStatus(err error) (int, string) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Code
	}

	switch {
	case errors.Is(err, billingdomain.ErrTenantNotFound),
		errors.Is(err, authz.ErrInvalidKey),
		errors.Is(err, authz.ErrKeyRevoked):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, billingdomain.ErrMalformedCallback),
		errors.Is(err, billingdomain.ErrUnsupportedProvider),
		errors.Is(err, pgconfigdomain.ErrRejectionReasonTooShort),
		errors.Is(err, pgconfigdomain.ErrMissingCredentials):
		return http.StatusBadRequest, "invalid_request"

	case errors.Is(err, billingdomain.ErrPaymentMethodNotFound),
		errors.Is(err, billingdomain.ErrPlanNotFound),
		errors.Is(err, billingdomain.ErrSubscriptionNotFound),
		errors.Is(err, billingdomain.ErrRegistrationNotFound),
		errors.Is(err, pgconfigdomain.ErrConfigNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, billingdomain.ErrPaymentMethodInUse),
		errors.Is(err, billingdomain.ErrSubscriptionNotPending),
		errors.Is(err, billingdomain.ErrSubscriptionTerminal),
		errors.Is(err, pgconfigdomain.ErrConfigNotPending),
		errors.Is(err, pgconfigdomain.ErrConfigNotApproved),
		errors.Is(err, pgconfigdomain.ErrNoActiveConfig):
		return http.StatusConflict, "conflict"

	case errors.Is(err, billingdomain.ErrExchangeRejected):
		return http.StatusUnprocessableEntity, "exchange_rejected"

	case errors.Is(err, billingdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, "gateway_unavailable"

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func AbortWithError(c *gin.Context, err error) {
	status, code := errStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
