package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coresolution/billinghub/internal/tenantcontext"
)

const contextOpsActorKey = "ops_actor"

// TenantRequired resolves the tenant identity forwarded by the main
// application's gateway. Authentication itself happens upstream; this
// service only refuses to act without a tenant.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantIDStr := strings.TrimSpace(c.GetHeader("X-Tenant-Id"))
		if tenantIDStr == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		tenantID, err := snowflake.ParseString(tenantIDStr)
		if err != nil || tenantID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := tenantcontext.Actor{
			TenantID: tenantID,
			UserID:   strings.TrimSpace(c.GetHeader("X-User-Id")),
			Name:     strings.TrimSpace(c.GetHeader("X-User-Name")),
			Email:    strings.TrimSpace(c.GetHeader("X-User-Email")),
		}
		c.Request = c.Request.WithContext(tenantcontext.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// OpsKeyRequired authenticates operators on the /ops surface and
// authorizes the route against the casbin policy for the key's role.
func (s *Server) OpsKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.keys.Verify(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		allowed, err := s.enforcer.Enforce(key.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !allowed {
			s.log.Warn("ops request denied",
				zap.String("key_name", key.Name),
				zap.String("role", key.Role),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Set(contextOpsActorKey, key.Name)
		c.Next()
	}
}

// opsActor returns the authenticated operator's key name for audit
// attribution.
func opsActor(c *gin.Context) string {
	return c.GetString(contextOpsActorKey)
}
