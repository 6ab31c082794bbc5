// audit.go records mutating API calls to the audit_logs table with a semantic
// action name, and forwards the same record to any configured shippers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/policytracker/policy-tracker/internal/audit"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

// AuditResourceIDKey lets a handler name the resource it created; otherwise
// the :id route parameter is used.
const AuditResourceIDKey = "audit_resource_id"

// AuditStore persists audit records.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditAction struct {
	action       string
	resourceType string
}

// auditActions maps "METHOD route-template" to the recorded action. Routes in
// this table are always recorded on success, reads included.
var auditActions = map[string]auditAction{
	"POST /api/companies":                             {"company.created", "company"},
	"POST /api/policies":                              {"policy.created", "policy"},
	"PUT /api/policies/:id":                           {"policy.updated", "policy"},
	"POST /api/policies/:id/versions":                 {"version.created", "policy_version"},
	"POST /api/versions/:id/approve":                  {"version.approved", "policy_version"},
	"POST /api/versions/:id/submit":                   {"version.submitted", "policy_version"},
	"POST /api/versions/:id/deprecate":                {"version.deprecated", "policy_version"},
	"POST /api/roles":                                 {"role.created", "role"},
	"POST /api/roles/:id/assignments":                 {"role.policy_assigned", "role_policy_assignment"},
	"POST /api/employees":                             {"employee.created", "employee"},
	"PATCH /api/employees/:id":                        {"employee.updated", "employee"},
	"POST /api/employees/:id/roles":                   {"employee.role_assigned", "employee_role"},
	"POST /api/acknowledgement-requests":              {"acknowledgement.requested", "acknowledgement_request"},
	"POST /api/acknowledgement-requests/:id/complete": {"acknowledgement.completed", "acknowledgement_request"},
	"POST /api/alert-escalations":                     {"escalation.created", "alert_escalation"},
	"POST /api/alert-escalations/:id/resolve":         {"escalation.resolved", "alert_escalation"},
	"POST /api/template-upgrades":                     {"template_upgrade.created", "template_upgrade"},
	"POST /api/template-upgrades/:id/complete":        {"template_upgrade.completed", "template_upgrade"},
	"GET /api/audit-logs/export":                      {"audit_log.exported", "audit_log"},
	"POST /api/reports/evidence":                      {"evidence.archived", "evidence_archive"},
	"POST /api/api-keys":                              {"api_key.created", "api_key"},
	"DELETE /api/api-keys/:id":                        {"api_key.deleted", "api_key"},
}

// ActionFor returns the semantic action and resource type for a route, or
// "METHOD path" with no resource type for unmapped routes.
func ActionFor(method, route string) (string, string) {
	if a, ok := auditActions[method+" "+route]; ok {
		return a.action, a.resourceType
	}
	return method + " " + route, ""
}

// AuditMiddleware records requests after the handler ran. By default only
// successful writes and the routes named in auditActions are recorded; cfg
// can add reads and failed requests. Records are written asynchronously so
// auditing never adds latency to the response.
func AuditMiddleware(store AuditStore, shipper audit.Shipper, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if cfg != nil && !cfg.Enabled {
			return
		}
		if c.Request.Method == http.MethodOptions {
			return
		}

		route := c.FullPath()
		if route == "" {
			return
		}
		_, mapped := auditActions[c.Request.Method+" "+route]
		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		status := c.Writer.Status()
		failed := status >= 400

		if isRead && !mapped && (cfg == nil || !cfg.LogReadOperations) {
			return
		}
		if failed && (cfg == nil || !cfg.LogFailedRequests) {
			return
		}

		entry := buildAuditLog(c, route, status)
		authMethod := c.GetString(ContextAuthMethod)
		requestID := c.GetString(RequestIDKey)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if store != nil {
				if err := store.CreateAuditLog(ctx, entry); err != nil {
					slog.Error("failed to write audit log", "action", entry.Action, "error", err)
				}
			}
			if shipper != nil {
				if err := shipper.Ship(ctx, toShipped(entry, authMethod, requestID, status)); err != nil {
					slog.Warn("failed to ship audit log", "action", entry.Action, "error", err)
				}
			}
		}()
	}
}

// buildAuditLog snapshots everything needed from the gin.Context; the
// context is recycled once the handler chain returns.
func buildAuditLog(c *gin.Context, route string, status int) *models.AuditLog {
	action, resourceType := ActionFor(c.Request.Method, route)

	entry := &models.AuditLog{
		ID:        uuid.New().String(),
		Action:    action,
		CreatedAt: time.Now().UTC(),
		Metadata: map[string]interface{}{
			"status_code": status,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		},
	}

	if id, ok := CompanyID(c); ok {
		entry.CompanyID = &id
	}
	if actor := Actor(c); actor != "" {
		entry.Actor = &actor
	}
	if m := c.GetString(ContextAuthMethod); m != "" {
		entry.Metadata["auth_method"] = m
	}
	if rid := c.GetString(RequestIDKey); rid != "" {
		entry.Metadata["request_id"] = rid
	}
	if resourceType != "" {
		entry.ResourceType = &resourceType
	}

	resourceID := c.GetString(AuditResourceIDKey)
	if resourceID == "" && strings.Contains(route, ":id") {
		resourceID = c.Param("id")
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}

	ip := c.ClientIP()
	if ip != "" {
		entry.IPAddress = &ip
	}
	return entry
}

func toShipped(l *models.AuditLog, authMethod, requestID string, status int) *audit.LogEntry {
	e := &audit.LogEntry{
		ID:         l.ID,
		Timestamp:  l.CreatedAt,
		Action:     l.Action,
		AuthMethod: authMethod,
		RequestID:  requestID,
		StatusCode: status,
		Metadata:   l.Metadata,
	}
	if l.CompanyID != nil {
		e.CompanyID = *l.CompanyID
	}
	if l.Actor != nil {
		e.Actor = *l.Actor
	}
	if l.ResourceType != nil {
		e.ResourceType = *l.ResourceType
	}
	if l.ResourceID != nil {
		e.ResourceID = *l.ResourceID
	}
	if l.IPAddress != nil {
		e.IPAddress = *l.IPAddress
	}
	return e
}
