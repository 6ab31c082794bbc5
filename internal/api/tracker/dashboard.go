package tracker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DashboardHandlers serves the compliance dashboard.
type DashboardHandlers struct {
	svc MetricsService
}

// NewDashboardHandlers creates a new DashboardHandlers instance
func NewDashboardHandlers(svc MetricsService) *DashboardHandlers {
	return &DashboardHandlers{svc: svc}
}

// @Summary      Get dashboard metrics
// @Description  Policy, approval, employee and acknowledgement counts plus the trailing compliance rate.
// @Tags         Dashboard
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.DashboardMetrics
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/dashboard/metrics [get]
// GetMetrics returns the dashboard for the caller's company
func (h *DashboardHandlers) GetMetrics(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	m, err := h.svc.GetMetrics(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
