package tracker

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/reports"
)

// AuditLogHandlers serves the audit trail and its exports.
type AuditLogHandlers struct {
	logs     reports.AuditSource
	exporter *reports.Exporter
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(logs reports.AuditSource, exporter *reports.Exporter) *AuditLogHandlers {
	return &AuditLogHandlers{logs: logs, exporter: exporter}
}

// @Summary      List audit logs
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      json
// @Param        action        query  string  false  "Action, e.g. policy.created"
// @Param        resourceType  query  string  false  "Resource type, e.g. policy_version"
// @Param        from          query  string  false  "Start (RFC3339 or YYYY-MM-DD)"
// @Param        to            query  string  false  "End (RFC3339 or YYYY-MM-DD, inclusive)"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        perPage       query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "auditLogs: []models.AuditLog, pagination: {page, perPage, total, totalPages}"
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/audit-logs [get]
// List returns one page of the company's audit trail, newest first
func (h *AuditLogHandlers) List(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	r, ok := parseRange(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filters := repositories.AuditFilters{CompanyID: companyID, StartDate: r.From, EndDate: r.To}
	if v := strings.TrimSpace(c.Query("action")); v != "" {
		filters.Action = &v
	}
	if v := strings.TrimSpace(c.Query("resourceType")); v != "" {
		filters.ResourceType = &v
	}

	logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
	if err != nil {
		respondError(c, compliance.Store("list audit logs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auditLogs": logs,
		"pagination": gin.H{
			"page":       page,
			"perPage":    perPage,
			"total":      total,
			"totalPages": (total + perPage - 1) / perPage,
		},
	})
}

// @Summary      Export audit logs
// @Description  Downloads the audit trail as CSV (default) or the full compliance workbook as XLSX.
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        format  query  string  false  "csv or xlsx"
// @Param        from    query  string  false  "Start (RFC3339 or YYYY-MM-DD)"
// @Param        to      query  string  false  "End (RFC3339 or YYYY-MM-DD, inclusive)"
// @Success      200  {file}    file
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/audit-logs/export [get]
// Export streams the audit trail as a file download. The body is rendered in
// memory first so a failure still produces a JSON error.
func (h *AuditLogHandlers) Export(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	r, ok := parseRange(c)
	if !ok {
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", reports.FormatCSV))
	var (
		buf         bytes.Buffer
		err         error
		filename    string
		contentType string
	)
	now := time.Now().UTC()
	switch format {
	case reports.FormatCSV:
		err = h.exporter.ExportAuditCSV(c.Request.Context(), companyID, r, &buf)
		filename, contentType = reports.AuditCSVFilename(now), "text/csv; charset=utf-8"
	case reports.FormatXLSX:
		err = h.exporter.WriteWorkbook(c.Request.Context(), companyID, r, &buf)
		filename, contentType = workbookFilename(now), reports.XLSXContentType
	default:
		respondError(c, compliance.NewValidationError("format", "must be csv or xlsx"))
		return
	}
	if err != nil {
		respondError(c, compliance.Store("export audit logs", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func workbookFilename(t time.Time) string {
	return "compliance-report-" + t.Format("2006-01-02") + ".xlsx"
}
