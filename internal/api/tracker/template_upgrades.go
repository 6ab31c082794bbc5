package tracker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TemplateUpgradeHandlers serves template upgrade notices.
type TemplateUpgradeHandlers struct {
	svc TemplateUpgradeService
}

// NewTemplateUpgradeHandlers creates a new TemplateUpgradeHandlers instance
func NewTemplateUpgradeHandlers(svc TemplateUpgradeService) *TemplateUpgradeHandlers {
	return &TemplateUpgradeHandlers{svc: svc}
}

// CreateTemplateUpgradeRequest is the body of POST /api/template-upgrades.
type CreateTemplateUpgradeRequest struct {
	PolicyType       string `json:"policyType"`
	CurrentVersion   string `json:"currentVersion"`
	AvailableVersion string `json:"availableVersion"`
}

// @Summary      List template upgrades
// @Tags         Template Upgrades
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.TemplateUpgrade
// @Router       /api/template-upgrades [get]
func (h *TemplateUpgradeHandlers) List(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	out, err := h.svc.List(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Record template upgrade
// @Description  availableVersion must be newer than currentVersion.
// @Tags         Template Upgrades
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateTemplateUpgradeRequest  true  "Upgrade"
// @Success      201  {object}  models.TemplateUpgrade
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/template-upgrades [post]
func (h *TemplateUpgradeHandlers) Create(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreateTemplateUpgradeRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Create(c.Request.Context(), companyID, req.PolicyType, req.CurrentVersion, req.AvailableVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, u.ID, u)
}

// @Summary      Complete template upgrade
// @Tags         Template Upgrades
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Upgrade ID"
// @Success      200  {object}  models.TemplateUpgrade
// @Failure      404  {object}  map[string]interface{}  "Upgrade not found"
// @Failure      409  {object}  map[string]interface{}  "Already completed"
// @Router       /api/template-upgrades/{id}/complete [post]
func (h *TemplateUpgradeHandlers) Complete(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.Complete(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
