package tracker

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/middleware"
	"github.com/policytracker/policy-tracker/internal/reports"
	"github.com/policytracker/policy-tracker/internal/storage"
)

// ReportHandlers serves the compliance workbook and evidence archives.
type ReportHandlers struct {
	exporter *reports.Exporter
	archiver *reports.Archiver
	store    storage.Storage
}

// NewReportHandlers creates a new ReportHandlers instance
func NewReportHandlers(exporter *reports.Exporter, archiver *reports.Archiver, store storage.Storage) *ReportHandlers {
	return &ReportHandlers{exporter: exporter, archiver: archiver, store: store}
}

// CreateEvidenceRequest is the optional body of POST /api/reports/evidence.
type CreateEvidenceRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// @Summary      Download compliance workbook
// @Tags         Reports
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        from  query  string  false  "Start (RFC3339 or YYYY-MM-DD)"
// @Param        to    query  string  false  "End (RFC3339 or YYYY-MM-DD, inclusive)"
// @Success      200  {file}  file
// @Router       /api/reports/workbook [get]
func (h *ReportHandlers) Workbook(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	r, ok := parseRange(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exporter.WriteWorkbook(c.Request.Context(), companyID, r, &buf); err != nil {
		respondError(c, compliance.Store("build workbook", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, workbookFilename(time.Now().UTC())))
	c.Data(http.StatusOK, reports.XLSXContentType, buf.Bytes())
}

// @Summary      Archive evidence
// @Description  Builds the compliance workbook for the range and stores it in the evidence backend.
// @Tags         Reports
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateEvidenceRequest  false  "Range"
// @Success      201  {object}  reports.Archive
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/reports/evidence [post]
// CreateEvidence archives a workbook; an empty body covers all time
func (h *ReportHandlers) CreateEvidence(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreateEvidenceRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	r, ok := buildRange(c, req.From, req.To)
	if !ok {
		return
	}

	a, err := h.archiver.Archive(c.Request.Context(), companyID, r)
	if err != nil {
		respondError(c, compliance.Store("archive evidence", err))
		return
	}
	c.Set(middleware.AuditResourceIDKey, a.Path)
	c.JSON(http.StatusCreated, a)
}

// @Summary      List evidence archives
// @Tags         Reports
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  reports.Archive
// @Router       /api/reports/evidence [get]
func (h *ReportHandlers) ListEvidence(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	out, err := h.archiver.List(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, compliance.Store("list evidence", err))
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Download evidence archive
// @Tags         Reports
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        path  query  string  true  "Archive path as returned by the list endpoint"
// @Success      200  {file}    file
// @Failure      404  {object}  map[string]interface{}  "Archive not found"
// @Router       /api/reports/evidence/download [get]
// DownloadEvidence streams an archive owned by the caller's company
func (h *ReportHandlers) DownloadEvidence(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	p := c.Query("path")
	if !reports.Owns(companyID, p) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}

	rc, err := h.store.Download(c.Request.Context(), p)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}
	if err != nil {
		respondError(c, compliance.Store("download evidence", err))
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			slog.Warn("failed to close evidence reader", "path", p, "error", cerr)
		}
	}()

	c.DataFromReader(http.StatusOK, -1, reports.XLSXContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, path.Base(p)),
	})
}
