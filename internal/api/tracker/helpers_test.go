package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/middleware"
	"github.com/policytracker/policy-tracker/internal/reports"
	"github.com/policytracker/policy-tracker/internal/storage/local"
)

const testCompany int64 = 7

var (
	errDB     = errors.New("connection reset by peer")
	fixedTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
)

// fixture wires every handler set: services are fakes, repository-backed
// handlers run against sqlmock and evidence goes to a temporary local store.
type fixture struct {
	policies *fakePolicies
	assign   *fakeAssignments
	acks     *fakeAcks
	metrics  *fakeMetrics
	upgrades *fakeUpgrades

	mock   sqlmock.Sqlmock
	store  *local.LocalStorage
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	store, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir()}, "https://tracker.example.com")
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	f := &fixture{
		policies: &fakePolicies{},
		assign:   &fakeAssignments{},
		acks:     &fakeAcks{},
		metrics:  &fakeMetrics{},
		upgrades: &fakeUpgrades{},
		mock:     mock,
		store:    store,
	}

	auditRepo := repositories.NewAuditRepository(sqlxDB)
	exporter := reports.NewExporter(auditRepo, f.acks)
	a := &API{
		Policies:         NewPolicyHandlers(f.policies),
		Assignments:      NewAssignmentHandlers(f.assign),
		Acknowledgements: NewAcknowledgementHandlers(f.acks),
		Dashboard:        NewDashboardHandlers(f.metrics),
		TemplateUpgrades: NewTemplateUpgradeHandlers(f.upgrades),
		Companies:        NewCompanyHandlers(repositories.NewCompanyRepository(sqlxDB)),
		AuditLogs:        NewAuditLogHandlers(auditRepo, exporter),
		Reports:          NewReportHandlers(exporter, reports.NewArchiver(exporter, store, time.Hour), store),
		APIKeys: NewAPIKeyHandlers(&config.AuthConfig{
			APIKeys: config.APIKeyConfig{Enabled: true, Prefix: "pt_"},
		}, repositories.NewAPIKeyRepository(sqlxDB)),
	}

	r := gin.New()
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.ContextCompanyID, testCompany)
		c.Next()
	})
	a.Register(api)
	f.router = r
	return f
}

// do sends body (a string is sent verbatim, anything else as JSON).
func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	decode(t, w, &m)
	return m
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d: body=%s", w.Code, want, w.Body.String())
	}
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
