package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/audit"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

// captureShipper collects audit log entries via a buffered channel.
type captureShipper struct {
	ch chan *audit.LogEntry
}

func newCaptureShipper(buf int) *captureShipper {
	return &captureShipper{ch: make(chan *audit.LogEntry, buf)}
}

func (s *captureShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	s.ch <- e
	return nil
}

func (s *captureShipper) Close() error { return nil }

// waitForEntry blocks until an entry arrives or the timeout fires.
func (s *captureShipper) waitForEntry(t *testing.T, timeout time.Duration) *audit.LogEntry {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for audit log entry")
		return nil
	}
}

// expectNone asserts nothing was shipped within a short grace period.
func (s *captureShipper) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Errorf("unexpected audit entry %q", e.Action)
	case <-time.After(100 * time.Millisecond):
	}
}

// captureStore collects rows written to the audit table.
type captureStore struct {
	ch chan *models.AuditLog
}

func (s *captureStore) CreateAuditLog(_ context.Context, l *models.AuditLog) error {
	s.ch <- l
	return nil
}

// newAuditRouter wires a fake tenant, the audit middleware and a few routes.
func newAuditRouter(store AuditStore, shipper audit.Shipper, cfg *config.AuditConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(func(c *gin.Context) {
		c.Set(ContextCompanyID, int64(7))
		c.Set(ContextAuthMethod, AuthMethodJWT)
		c.Set(ContextActor, "jwt:ops@example.com")
		c.Next()
	})
	r.Use(AuditMiddleware(store, shipper, cfg))

	api := r.Group("/api")
	api.POST("/policies", func(c *gin.Context) {
		c.Set(AuditResourceIDKey, "55")
		c.Status(http.StatusCreated)
	})
	api.POST("/versions/:id/approve", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.POST("/acknowledgement-requests/:id/complete", func(c *gin.Context) { c.Status(http.StatusConflict) })
	api.GET("/policies", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/audit-logs/export", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.PUT("/misc", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func send(r *gin.Engine, method, target string) {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.1.2.3:4444"
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func enabled() *config.AuditConfig { return &config.AuditConfig{Enabled: true} }

// ---------------------------------------------------------------------------
// Action mapping
// ---------------------------------------------------------------------------

func TestActionFor(t *testing.T) {
	tests := []struct {
		method, route, action, resource string
	}{
		{"POST", "/api/policies", "policy.created", "policy"},
		{"POST", "/api/versions/:id/approve", "version.approved", "policy_version"},
		{"POST", "/api/acknowledgement-requests/:id/complete", "acknowledgement.completed", "acknowledgement_request"},
		{"POST", "/api/alert-escalations/:id/resolve", "escalation.resolved", "alert_escalation"},
		{"DELETE", "/api/api-keys/:id", "api_key.deleted", "api_key"},
		{"PUT", "/api/misc", "PUT /api/misc", ""},
	}
	for _, tt := range tests {
		action, resource := ActionFor(tt.method, tt.route)
		if action != tt.action || resource != tt.resource {
			t.Errorf("ActionFor(%s %s) = %q, %q; want %q, %q", tt.method, tt.route, action, resource, tt.action, tt.resource)
		}
	}
}

// ---------------------------------------------------------------------------
// Recording rules
// ---------------------------------------------------------------------------

func TestAuditMiddleware_RecordsCreateWithHandlerResourceID(t *testing.T) {
	store := &captureStore{ch: make(chan *models.AuditLog, 1)}
	shipper := newCaptureShipper(1)
	r := newAuditRouter(store, shipper, enabled())

	send(r, http.MethodPost, "/api/policies")

	var row *models.AuditLog
	select {
	case row = <-store.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit row")
	}
	if row.Action != "policy.created" {
		t.Errorf("Action = %q", row.Action)
	}
	if row.CompanyID == nil || *row.CompanyID != 7 {
		t.Errorf("CompanyID = %v, want 7", row.CompanyID)
	}
	if row.ResourceID == nil || *row.ResourceID != "55" {
		t.Errorf("ResourceID = %v, want 55", row.ResourceID)
	}
	if row.Actor == nil || *row.Actor != "jwt:ops@example.com" {
		t.Errorf("Actor = %v", row.Actor)
	}
	if row.IPAddress == nil || *row.IPAddress != "10.1.2.3" {
		t.Errorf("IPAddress = %v", row.IPAddress)
	}

	shipped := shipper.waitForEntry(t, 2*time.Second)
	if shipped.ID != row.ID {
		t.Errorf("shipped ID %q differs from stored ID %q", shipped.ID, row.ID)
	}
	if shipped.StatusCode != http.StatusCreated || shipped.AuthMethod != AuthMethodJWT || shipped.RequestID == "" {
		t.Errorf("shipped = %+v", shipped)
	}
}

func TestAuditMiddleware_UsesRouteParamAsResourceID(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, enabled())

	send(r, http.MethodPost, "/api/versions/31/approve")

	e := shipper.waitForEntry(t, 2*time.Second)
	if e.Action != "version.approved" || e.ResourceID != "31" || e.ResourceType != "policy_version" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAuditMiddleware_SkipsPlainReads(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, enabled())

	send(r, http.MethodGet, "/api/policies")
	shipper.expectNone(t)
}

func TestAuditMiddleware_LogsReadsWhenConfigured(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, &config.AuditConfig{Enabled: true, LogReadOperations: true})

	send(r, http.MethodGet, "/api/policies")
	if e := shipper.waitForEntry(t, 2*time.Second); e.Action != "GET /api/policies" {
		t.Errorf("Action = %q", e.Action)
	}
}

func TestAuditMiddleware_ExportAlwaysRecorded(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, enabled())

	send(r, http.MethodGet, "/api/audit-logs/export")
	if e := shipper.waitForEntry(t, 2*time.Second); e.Action != "audit_log.exported" {
		t.Errorf("Action = %q", e.Action)
	}
}

func TestAuditMiddleware_FailedRequests(t *testing.T) {
	t.Run("skipped by default", func(t *testing.T) {
		shipper := newCaptureShipper(1)
		r := newAuditRouter(nil, shipper, enabled())
		send(r, http.MethodPost, "/api/acknowledgement-requests/9/complete")
		shipper.expectNone(t)
	})

	t.Run("recorded when configured", func(t *testing.T) {
		shipper := newCaptureShipper(1)
		r := newAuditRouter(nil, shipper, &config.AuditConfig{Enabled: true, LogFailedRequests: true})
		send(r, http.MethodPost, "/api/acknowledgement-requests/9/complete")
		e := shipper.waitForEntry(t, 2*time.Second)
		if e.StatusCode != http.StatusConflict {
			t.Errorf("StatusCode = %d, want 409", e.StatusCode)
		}
	})
}

func TestAuditMiddleware_Disabled(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, &config.AuditConfig{Enabled: false})

	send(r, http.MethodPost, "/api/policies")
	shipper.expectNone(t)
}

func TestAuditMiddleware_UnmappedWriteUsesMethodAndRoute(t *testing.T) {
	shipper := newCaptureShipper(1)
	r := newAuditRouter(nil, shipper, nil)

	send(r, http.MethodPut, "/api/misc")
	if e := shipper.waitForEntry(t, 2*time.Second); e.Action != "PUT /api/misc" || e.ResourceType != "" {
		t.Errorf("entry = %+v", e)
	}
}
