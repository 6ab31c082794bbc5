package tracker

import (
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var companyCols = []string{"id", "name", "created_at", "updated_at"}

func TestGetCompanyHandler(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT id, name, created_at, updated_at FROM companies WHERE id = \\$1").
		WithArgs(testCompany).
		WillReturnRows(sqlmock.NewRows(companyCols).AddRow(testCompany, "Acme", fixedTime, fixedTime))

	w := f.do(t, http.MethodGet, "/api/companies/7", nil)

	expectStatus(t, w, http.StatusOK)
	if got := getJSON(t, w)["name"]; got != "Acme" {
		t.Errorf("name = %v", got)
	}
	expectationsMet(t, f.mock)
}

func TestGetCompanyHandler_OtherTenant(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/companies/8", nil)

	expectStatus(t, w, http.StatusNotFound)
	expectationsMet(t, f.mock)
}

func TestGetCompanyHandler_Missing(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("FROM companies").WillReturnRows(sqlmock.NewRows(companyCols))

	w := f.do(t, http.MethodGet, "/api/companies/7", nil)

	expectStatus(t, w, http.StatusNotFound)
}

func TestGetCompanyHandler_DBError(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("FROM companies").WillReturnError(errDB)

	w := f.do(t, http.MethodGet, "/api/companies/7", nil)

	expectStatus(t, w, http.StatusInternalServerError)
}

func TestCreateCompanyHandler(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("INSERT INTO companies").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(12), fixedTime, fixedTime))

	w := f.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "  Acme "})

	expectStatus(t, w, http.StatusCreated)
	body := getJSON(t, w)
	if body["id"] != float64(12) || body["name"] != "Acme" {
		t.Errorf("body = %v", body)
	}
	expectationsMet(t, f.mock)
}

func TestCreateCompanyHandler_NameRequired(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/companies", map[string]string{"name": " "})

	expectStatus(t, w, http.StatusBadRequest)
	expectationsMet(t, f.mock)
}
