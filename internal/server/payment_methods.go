package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

// ListPaymentMethods returns the tenant's stored payment methods,
// default first.
// GET /api/billing/payment-methods
func (s *Server) ListPaymentMethods(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	methods, err := s.paymentMethodSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, methods)
}

// SetDefaultPaymentMethod
// PUT /api/billing/payment-methods/:id/default
func (s *Server) SetDefaultPaymentMethod(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	pmID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrPaymentMethodNotFound)
		return
	}

	if err := s.paymentMethodSvc.SetDefault(c.Request.Context(), tenantID, pmID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeletePaymentMethod
// DELETE /api/billing/payment-methods/:id
func (s *Server) DeletePaymentMethod(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	pmID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrPaymentMethodNotFound)
		return
	}

	if err := s.paymentMethodSvc.Delete(c.Request.Context(), tenantID, pmID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
