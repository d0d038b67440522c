package server

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billingdomain "github.com/coresolution/billinghub/internal/billing/domain"
	"github.com/coresolution/billinghub/internal/pgconfig/domain"
	"github.com/coresolution/billinghub/internal/tenantcontext"
)

type submitPgConfigRequest struct {
	Provider   string `json:"pg_provider" binding:"required"`
	PgName     string `json:"pg_name" binding:"required"`
	MerchantID string `json:"merchant_id"`
	StoreID    string `json:"store_id"`
	APIKey     string `json:"api_key" binding:"required"`
	SecretKey  string `json:"secret_key" binding:"required"`
	TestMode   bool   `json:"test_mode"`
	Notes      string `json:"notes"`
}

// SubmitPgConfiguration lets a tenant submit PG credentials for
// platform review.
// POST /api/billing/pg-configurations
func (s *Server) SubmitPgConfiguration(c *gin.Context) {
	actor, ok := tenantcontext.ActorFromContext(c.Request.Context())
	if !ok || actor.TenantID == 0 {
		AbortWithError(c, billingdomain.ErrTenantNotFound)
		return
	}

	var req submitPgConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError(""))
		return
	}

	requestedBy := actor.Email
	if requestedBy == "" {
		requestedBy = actor.UserID
	}

	cfg, err := s.pgConfigSvc.Submit(c.Request.Context(), domain.SubmitRequest{
		TenantID:    actor.TenantID,
		Provider:    billingdomain.Provider(req.Provider),
		PgName:      req.PgName,
		MerchantID:  req.MerchantID,
		StoreID:     req.StoreID,
		APIKey:      req.APIKey,
		SecretKey:   req.SecretKey,
		TestMode:    req.TestMode,
		Notes:       req.Notes,
		RequestedBy: requestedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, cfg)
}

// --- Operator handlers ---

// ListPendingPgConfigurations
// GET /ops/pg-configurations?tenant_id=&provider=
func (s *Server) ListPendingPgConfigurations(c *gin.Context) {
	filter := domain.ListPendingFilter{
		Provider: billingdomain.Provider(c.Query("provider")),
	}
	if raw := c.Query("tenant_id"); raw != "" {
		tenantID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError("invalid tenant_id"))
			return
		}
		filter.TenantID = &tenantID
	}

	configs, err := s.pgConfigSvc.ListPending(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondList(c, configs)
}

// GetPgConfiguration
// GET /ops/pg-configurations/:id
func (s *Server) GetPgConfiguration(c *gin.Context) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	cfg, err := s.pgConfigSvc.Get(c.Request.Context(), configID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, cfg)
}

// TestPgConfigurationConnection runs a live credential probe.
// POST /ops/pg-configurations/:id/test-connection
func (s *Server) TestPgConfigurationConnection(c *gin.Context) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	result, err := s.pgConfigSvc.TestConnection(c.Request.Context(), configID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, result)
}

// DecryptPgConfigurationKeys reveals credentials for manual
// verification. Every call is written to the audit trail.
// POST /ops/pg-configurations/:id/decrypt-keys
func (s *Server) DecryptPgConfigurationKeys(c *gin.Context) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	keys, err := s.pgConfigSvc.DecryptKeys(c.Request.Context(), configID, opsActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, keys)
}

type approvePgConfigRequest struct {
	TestConnection bool   `json:"test_connection"`
	ApprovalNote   string `json:"approval_note"`
}

// ApprovePgConfiguration
// POST /ops/pg-configurations/:id/approve
func (s *Server) ApprovePgConfiguration(c *gin.Context) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	var req approvePgConfigRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError(""))
			return
		}
	}

	result, err := s.pgConfigSvc.Approve(c.Request.Context(), configID, domain.ApproveRequest{
		ApprovedBy:     opsActor(c),
		TestConnection: req.TestConnection,
		ApprovalNote:   req.ApprovalNote,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, result)
}

type rejectPgConfigRequest struct {
	RejectionReason string `json:"rejection_reason" binding:"required"`
}

// RejectPgConfiguration
// POST /ops/pg-configurations/:id/reject
func (s *Server) RejectPgConfiguration(c *gin.Context) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	var req rejectPgConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("rejection_reason is required"))
		return
	}

	cfg, err := s.pgConfigSvc.Reject(c.Request.Context(), configID, domain.RejectRequest{
		RejectedBy:      opsActor(c),
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, cfg)
}

// ActivatePgConfiguration
// POST /ops/pg-configurations/:id/activate
func (s *Server) ActivatePgConfiguration(c *gin.Context) {
	s.togglePgConfiguration(c, s.pgConfigSvc.Activate)
}

// DeactivatePgConfiguration
// POST /ops/pg-configurations/:id/deactivate
func (s *Server) DeactivatePgConfiguration(c *gin.Context) {
	s.togglePgConfiguration(c, s.pgConfigSvc.Deactivate)
}

func (s *Server) togglePgConfiguration(c *gin.Context, fn func(ctx context.Context, configID snowflake.ID, actor string) (*domain.Configuration, error)) {
	configID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrConfigNotFound)
		return
	}

	cfg, err := fn(c.Request.Context(), configID, opsActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, cfg)
}
