package tracker

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", compliance.NewValidationError("title", "is required"), http.StatusBadRequest},
		{"not found", &compliance.NotFoundError{Resource: "policy", ID: 1}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", &compliance.NotFoundError{Resource: "role", ID: 1}), http.StatusNotFound},
		{"already completed", &compliance.AlreadyCompletedError{RequestID: 1}, http.StatusConflict},
		{"transition", &compliance.InvalidTransitionError{VersionID: 1, From: models.VersionStatusApproved, To: models.VersionStatusDraft}, http.StatusConflict},
		{"conflict", &compliance.ConflictError{Message: "duplicate"}, http.StatusConflict},
		{"store", compliance.Store("list policies", errDB), http.StatusInternalServerError},
		{"plain", errDB, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestTenantID_Missing(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := tenantID(c); ok {
		t.Fatal("tenantID succeeded without a tenant")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2026-03-01T10:30:00Z", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"2026-03-01T10:30:00+02:00", time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), false},
		{"03/01/2026", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		wantOK   bool
		wantTo   time.Time
	}{
		{"empty", "", "", true, time.Time{}},
		{"bare date end covers the day", "2026-03-01", "2026-03-31", true,
			time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)},
		{"timestamp end kept", "", "2026-03-31T12:00:00Z", true, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)},
		{"inverted", "2026-04-01", "2026-03-01", false, time.Time{}},
		{"garbage", "yesterday", "", false, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			r, ok := buildRange(c, tt.from, tt.to)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (status %d)", ok, tt.wantOK, w.Code)
			}
			if !ok {
				if w.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", w.Code)
				}
				return
			}
			if tt.wantTo.IsZero() {
				if tt.to == "" && r.To != nil {
					t.Errorf("To = %v, want nil", r.To)
				}
				return
			}
			if r.To == nil || !r.To.Equal(tt.wantTo) {
				t.Errorf("To = %v, want %v", r.To, tt.wantTo)
			}
		})
	}
}
