package server

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

type createSubscriptionRequest struct {
	PlanID          string `json:"plan_id" binding:"required"`
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

// ListSubscriptions
// GET /api/billing/subscriptions
func (s *Server) ListSubscriptions(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	subs, err := s.subscriptionSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, subs)
}

// CreateSubscription enrolls the tenant in a plan; the subscription
// starts PENDING_ACTIVATION.
// POST /api/billing/subscriptions
func (s *Server) CreateSubscription(c *gin.Context) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(""))
		return
	}

	planID, err := snowflake.ParseString(req.PlanID)
	if err != nil {
		AbortWithError(c, domain.ErrPlanNotFound)
		return
	}
	pmID, err := snowflake.ParseString(req.PaymentMethodID)
	if err != nil {
		AbortWithError(c, domain.ErrPaymentMethodNotFound)
		return
	}

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), domain.CreateSubscriptionRequest{
		TenantID:        tenantID,
		PlanID:          planID,
		PaymentMethodID: pmID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, sub)
}

// ActivateSubscription
// POST /api/billing/subscriptions/:id/activate
func (s *Server) ActivateSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Activate)
}

// CancelSubscription
// POST /api/billing/subscriptions/:id/cancel
func (s *Server) CancelSubscription(c *gin.Context) {
	s.transitionSubscription(c, s.subscriptionSvc.Cancel)
}

func (s *Server) transitionSubscription(c *gin.Context, fn func(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*domain.Subscription, error)) {
	tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, domain.ErrTenantNotFound)
		return
	}

	subID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrSubscriptionNotFound)
		return
	}

	sub, err := fn(c.Request.Context(), tenantID, subID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, sub)
}
