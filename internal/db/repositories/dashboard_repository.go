// dashboard_repository.go implements DashboardRepository, computing every
// dashboard count for a company in a single round trip.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

// DashboardRepository handles aggregate compliance queries
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// GetMetrics returns the raw dashboard counts for a company. ComplianceRate is
// left for the caller; RateCompleted and RateOutstanding count requests for
// APPROVED, role-assigned versions created at or after windowStart.
func (r *DashboardRepository) GetMetrics(ctx context.Context, companyID int64, now, monthStart, windowStart time.Time) (*models.DashboardMetrics, error) {
	query := `
		WITH company_requests AS (
			SELECT ar.*
			FROM acknowledgement_requests ar
			JOIN employees e ON e.id = ar.employee_id
			WHERE e.company_id = $1
		),
		rated AS (
			SELECT cr.completed_at
			FROM company_requests cr
			JOIN policy_versions pv ON pv.id = cr.policy_version_id AND pv.status = 'APPROVED'
			WHERE cr.created_at >= $4
			  AND EXISTS (SELECT 1 FROM role_policy_assignments rpa WHERE rpa.policy_version_id = pv.id)
		)
		SELECT
			(SELECT COUNT(*) FROM policies WHERE company_id = $1) AS total_policies,
			(SELECT COUNT(*) FROM policy_versions pv JOIN policies p ON p.id = pv.policy_id
				WHERE p.company_id = $1 AND pv.status = 'PENDING') AS pending_approvals,
			(SELECT COUNT(*) FROM employees WHERE company_id = $1) AS total_employees,
			(SELECT COUNT(*) FROM company_requests WHERE completed_at IS NULL AND due_date < $2) AS overdue_acknowledgements,
			(SELECT COUNT(*) FROM company_requests WHERE completed_at >= $3) AS acknowledgements_this_month,
			(SELECT COUNT(*) FROM rated WHERE completed_at IS NOT NULL) AS rate_completed,
			(SELECT COUNT(*) FROM rated WHERE completed_at IS NULL) AS rate_outstanding
	`
	var m models.DashboardMetrics
	if err := r.db.GetContext(ctx, &m, query, companyID, now, monthStart, windowStart); err != nil {
		return nil, fmt.Errorf("failed to compute dashboard metrics: %w", err)
	}
	return &m, nil
}
