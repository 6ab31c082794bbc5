package tracker

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/middleware"
	"github.com/policytracker/policy-tracker/internal/reports"
)

// respondError maps the compliance error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var (
		ve *compliance.ValidationError
		nf *compliance.NotFoundError
		ac *compliance.AlreadyCompletedError
		it *compliance.InvalidTransitionError
		ce *compliance.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": ve.Fields})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.As(err, &ac):
		c.JSON(http.StatusConflict, gin.H{"error": ac.Error()})
	case errors.As(err, &it):
		c.JSON(http.StatusConflict, gin.H{"error": it.Error()})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{"error": ce.Error()})
	default:
		slog.Error("request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindJSON decodes the request body into dst and answers 400 on malformed input.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": []compliance.FieldError{{Field: "body", Message: err.Error()}},
		})
		return false
	}
	return true
}

// tenantID returns the tenant resolved by TenantMiddleware. A missing tenant
// means the route was mounted without it.
func tenantID(c *gin.Context) (int64, bool) {
	id, ok := middleware.CompanyID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Company could not be resolved"})
		return 0, false
	}
	return id, true
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid " + name,
			"details": []compliance.FieldError{{Field: name, Message: "must be a positive integer"}},
		})
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, compliance.NewValidationError(name, "must be a positive integer"))
		return nil, false
	}
	return &id, true
}

// parseTime accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// parseRange reads from/to as query parameters. A bare date for "to" covers
// the whole day.
func parseRange(c *gin.Context) (reports.Range, bool) {
	return buildRange(c, c.Query("from"), c.Query("to"))
}

func buildRange(c *gin.Context, from, to string) (reports.Range, bool) {
	var r reports.Range
	ve := &compliance.ValidationError{}
	if from = strings.TrimSpace(from); from != "" {
		t, err := parseTime(from)
		if err != nil {
			ve.Add("from", "must be RFC3339 or YYYY-MM-DD")
		} else {
			r.From = &t
		}
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := parseTime(to)
		if err != nil {
			ve.Add("to", "must be RFC3339 or YYYY-MM-DD")
		} else {
			if len(to) == len("2006-01-02") {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			r.To = &t
		}
	}
	if len(ve.Fields) == 0 {
		if err := r.Validate(); err != nil {
			ve.Add("to", err.Error())
		}
	}
	if err := ve.OrNil(); err != nil {
		respondError(c, err)
		return reports.Range{}, false
	}
	return r, true
}

// created answers 201 and names the new resource for the audit trail.
func created(c *gin.Context, id int64, body interface{}) {
	c.Set(middleware.AuditResourceIDKey, strconv.FormatInt(id, 10))
	c.JSON(http.StatusCreated, body)
}
