package server

import (
	"github.com/gin-gonic/gin"
)

// ListPlans returns the active pricing plans.
// GET /api/billing/plans
func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, plans)
}
