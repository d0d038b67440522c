package server

import (
	"github.com/gin-gonic/gin"

	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

type beginRegistrationRequest struct {
	Provider      string `json:"provider"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// BeginRegistration starts the billing-auth handshake and returns the
// vendor redirect URL for the browser to follow.
// POST /api/billing/registrations
func (s *Server) BeginRegistration(c *gin.Context) {
	var req beginRegistrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError(""))
			return
		}
	}

	reg, err := s.registrationSvc.Begin(c.Request.Context(), domain.BeginRegistrationRequest{
		Provider:      domain.Provider(req.Provider),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, reg)
}

type exchangeRequest struct {
	Provider    string `json:"provider"`
	AuthKey     string `json:"auth_key" binding:"required"`
	CustomerKey string `json:"customer_key" binding:"required"`
}

// ExchangeAuthKey is the direct exchange endpoint for clients that
// already hold the vendor authKey. Idempotent: replays return the
// originally issued payment method.
// POST /api/billing/payment-methods/register
func (s *Server) ExchangeAuthKey(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(""))
		return
	}

	provider := domain.Provider(req.Provider)
	if provider == "" {
		provider = domain.Provider(s.cfg.Billing.DefaultProvider)
	}

	pm, replayed, err := s.registrationSvc.Exchange(c.Request.Context(), domain.ExchangeRequest{
		TenantID:    tenantID,
		Provider:    provider,
		AuthKey:     req.AuthKey,
		CustomerKey: req.CustomerKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"payment_method": pm, "replayed": replayed})
}

// HandleCallback is the vendor redirect target. The route path and
// query parameter names are registered with the PG vendor; changing
// them breaks the handshake.
// GET /billing/callback
func (s *Server) HandleCallback(c *gin.Context) {
	result, err := s.registrationSvc.HandleCallback(c.Request.Context(), domain.CallbackQuery{
		Status:       c.Query("status"),
		CustomerKey:  c.Query("customerKey"),
		TenantID:     c.Query("tenantId"),
		AuthKey:      c.Query("authKey"),
		ErrorCode:    c.Query("errorCode"),
		ErrorMessage: c.Query("errorMessage"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Both outcomes are terminal page states, not errors.
	respondData(c, result)
}
