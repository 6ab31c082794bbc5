package repositories

import (
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// aliasOf turns a select expression into the column name the driver reports.
func aliasOf(expr string) string {
	if i := strings.Index(expr, ` AS "`); i >= 0 {
		return strings.TrimSuffix(expr[i+5:], `"`)
	}
	if i := strings.Index(expr, "."); i >= 0 {
		return expr[i+1:]
	}
	return expr
}

func detailCols() []string {
	cols := make([]string, len(detailColumns))
	for i, c := range detailColumns {
		cols[i] = aliasOf(c)
	}
	return cols
}

var errDB = errors.New("connection refused")

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// addDetailRow appends a request joined with employee 10, version 20 and policy 30.
func addDetailRow(rows *sqlmock.Rows, id int64, due time.Time, completed interface{}) *sqlmock.Rows {
	return rows.AddRow(
		id, int64(10), int64(20), "MANUAL", due,
		completed, nil, nil, fixedNow, fixedNow,
		int64(10), int64(1), "ada@example.com", "Ada", "Lovelace", true, fixedNow, fixedNow, fixedNow,
		int64(20), int64(30), "v1.0", "content", "APPROVED", nil, int64(10), fixedNow, int64(10), fixedNow, fixedNow,
		int64(30), int64(1), "Security Policy", nil, "INFORMATION_SECURITY", false, nil, fixedNow, fixedNow,
	)
}
