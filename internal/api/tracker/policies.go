package tracker

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/services"
)

// PolicyHandlers serves policies and their versions.
type PolicyHandlers struct {
	svc PolicyService
}

// NewPolicyHandlers creates a new PolicyHandlers instance
func NewPolicyHandlers(svc PolicyService) *PolicyHandlers {
	return &PolicyHandlers{svc: svc}
}

// CreatePolicyRequest is the body of POST /api/policies.
type CreatePolicyRequest struct {
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	Description    *string `json:"description"`
	IsTemplate     bool    `json:"isTemplate"`
	TemplateSource *string `json:"templateSource"`
}

// UpdatePolicyRequest is the body of PUT /api/policies/:id. Omitted fields
// keep their current value.
type UpdatePolicyRequest struct {
	Title          *string `json:"title"`
	Type           *string `json:"type"`
	Description    *string `json:"description"`
	IsTemplate     *bool   `json:"isTemplate"`
	TemplateSource *string `json:"templateSource"`
}

// CreateVersionRequest is the body of POST /api/policies/:id/versions.
type CreateVersionRequest struct {
	Version    string          `json:"version"`
	Content    string          `json:"content"`
	Status     string          `json:"status"`
	CreatedBy  int64           `json:"createdBy"`
	ConfigData json.RawMessage `json:"configData"`
}

// ApproveVersionRequest is the body of POST /api/versions/:id/approve.
type ApproveVersionRequest struct {
	ApprovedBy int64 `json:"approvedBy"`
}

// @Summary      List policies
// @Description  Lists the company's policies, newest first, each with its versions and latest version.
// @Tags         Policies
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.PolicyWithVersions
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/policies [get]
// ListPolicies lists the company's policies
func (h *PolicyHandlers) ListPolicies(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	policies, err := h.svc.ListPolicies(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

// @Summary      Get policy
// @Tags         Policies
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Policy ID"
// @Success      200  {object}  models.PolicyWithVersions
// @Failure      404  {object}  map[string]interface{}  "Policy not found"
// @Router       /api/policies/{id} [get]
// GetPolicy returns one policy with all versions and the latest one
func (h *PolicyHandlers) GetPolicy(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetPolicy(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Create policy
// @Tags         Policies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreatePolicyRequest  true  "Policy"
// @Success      201  {object}  models.Policy
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/policies [post]
// CreatePolicy creates a policy with no versions
func (h *PolicyHandlers) CreatePolicy(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreatePolicyRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.CreatePolicy(c.Request.Context(), companyID, services.CreatePolicyInput{
		Title:          req.Title,
		Type:           req.Type,
		Description:    req.Description,
		IsTemplate:     req.IsTemplate,
		TemplateSource: req.TemplateSource,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, p.ID, p)
}

// @Summary      Update policy
// @Tags         Policies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                  true  "Policy ID"
// @Param        body  body  UpdatePolicyRequest  true  "Fields to change"
// @Success      200  {object}  models.Policy
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      404  {object}  map[string]interface{}  "Policy not found"
// @Router       /api/policies/{id} [put]
// UpdatePolicy applies a partial update
func (h *PolicyHandlers) UpdatePolicy(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdatePolicyRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.UpdatePolicy(c.Request.Context(), companyID, id, services.UpdatePolicyInput{
		Title:          req.Title,
		Description:    req.Description,
		Type:           req.Type,
		IsTemplate:     req.IsTemplate,
		TemplateSource: req.TemplateSource,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      List policy versions
// @Tags         Policies
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Policy ID"
// @Success      200  {array}   models.PolicyVersion
// @Failure      404  {object}  map[string]interface{}  "Policy not found"
// @Router       /api/policies/{id}/versions [get]
func (h *PolicyHandlers) ListVersions(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	versions, err := h.svc.ListVersions(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// @Summary      Create policy version
// @Description  Adds a DRAFT (default) or PENDING version to a policy.
// @Tags         Policies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                   true  "Policy ID"
// @Param        body  body  CreateVersionRequest  true  "Version"
// @Success      201  {object}  models.PolicyVersion
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      404  {object}  map[string]interface{}  "Policy not found"
// @Router       /api/policies/{id}/versions [post]
func (h *PolicyHandlers) CreateVersion(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateVersionRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.svc.CreateVersion(c.Request.Context(), companyID, id, services.CreateVersionInput{
		Version:    req.Version,
		Content:    req.Content,
		Status:     req.Status,
		CreatedBy:  req.CreatedBy,
		ConfigData: req.ConfigData,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, v.ID, v)
}

// @Summary      Approve policy version
// @Tags         Policies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                    true  "Version ID"
// @Param        body  body  ApproveVersionRequest  true  "Approver"
// @Success      200  {object}  models.PolicyVersion
// @Failure      404  {object}  map[string]interface{}  "Version not found"
// @Failure      409  {object}  map[string]interface{}  "Version is deprecated"
// @Router       /api/versions/{id}/approve [post]
// ApproveVersion marks a version APPROVED by approvedBy
func (h *PolicyHandlers) ApproveVersion(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ApproveVersionRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.svc.ApproveVersion(c.Request.Context(), companyID, id, req.ApprovedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// SubmitVersion moves a DRAFT version to PENDING.
func (h *PolicyHandlers) SubmitVersion(c *gin.Context) {
	h.transition(c, h.svc.SubmitVersion)
}

// DeprecateVersion retires a version.
func (h *PolicyHandlers) DeprecateVersion(c *gin.Context) {
	h.transition(c, h.svc.DeprecateVersion)
}

func (h *PolicyHandlers) transition(c *gin.Context, fn func(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error)) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	v, err := fn(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
