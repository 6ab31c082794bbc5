package tracker

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
)

// CompanyHandlers handles company endpoints
type CompanyHandlers struct {
	companyRepo *repositories.CompanyRepository
}

// NewCompanyHandlers creates a new CompanyHandlers instance
func NewCompanyHandlers(companyRepo *repositories.CompanyRepository) *CompanyHandlers {
	return &CompanyHandlers{companyRepo: companyRepo}
}

// CreateCompanyRequest is the body of POST /api/companies.
type CreateCompanyRequest struct {
	Name string `json:"name"`
}

// @Summary      Get company
// @Description  Returns the caller's own company. Any other id is reported as not found.
// @Tags         Companies
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Company ID"
// @Success      200  {object}  models.Company
// @Failure      404  {object}  map[string]interface{}  "Company not found"
// @Router       /api/companies/{id} [get]
// GetCompanyHandler retrieves the caller's company
// GET /api/companies/:id
func (h *CompanyHandlers) GetCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if id != companyID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Company not found"})
			return
		}

		company, err := h.companyRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get company", "company_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve company",
			})
			return
		}
		if company == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Company not found"})
			return
		}

		c.JSON(http.StatusOK, company)
	}
}

// @Summary      Create company
// @Tags         Companies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateCompanyRequest  true  "Company"
// @Success      201  {object}  models.Company
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/companies [post]
// CreateCompanyHandler creates a company
// POST /api/companies
func (h *CompanyHandlers) CreateCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCompanyRequest
		if !bindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondError(c, compliance.NewValidationError("name", "is required"))
			return
		}

		company := &models.Company{Name: name}
		if err := h.companyRepo.Create(c.Request.Context(), company); err != nil {
			slog.Error("failed to create company", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create company",
			})
			return
		}

		created(c, company.ID, company)
	}
}
