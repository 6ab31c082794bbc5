package repositories

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestGetMetrics(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDashboardRepository(db)

	monthStart := fixedNow.AddDate(0, 0, -14)
	windowStart := fixedNow.AddDate(0, 0, -365)

	mock.ExpectQuery("WITH company_requests AS").
		WithArgs(int64(1), fixedNow, monthStart, windowStart).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_policies", "pending_approvals", "total_employees", "overdue_acknowledgements",
			"acknowledgements_this_month", "rate_completed", "rate_outstanding",
		}).AddRow(4, 1, 12, 3, 7, 9, 3))

	m, err := repo.GetMetrics(context.Background(), 1, fixedNow, monthStart, windowStart)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if m.TotalPolicies != 4 || m.PendingApprovals != 1 || m.TotalEmployees != 12 {
		t.Errorf("metrics = %+v", m)
	}
	if m.OverdueAcknowledgements != 3 || m.AcknowledgementsThisMonth != 7 {
		t.Errorf("metrics = %+v", m)
	}
	if m.RateCompleted != 9 || m.RateOutstanding != 3 {
		t.Errorf("rate inputs = %d/%d", m.RateCompleted, m.RateOutstanding)
	}
	expectationsMet(t, mock)
}
