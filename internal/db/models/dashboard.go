package models

// DashboardMetrics summarises a company's compliance posture.
type DashboardMetrics struct {
	TotalPolicies             int     `db:"total_policies" json:"totalPolicies"`
	PendingApprovals          int     `db:"pending_approvals" json:"pendingApprovals"`
	ComplianceRate            float64 `db:"-" json:"complianceRate"`
	OverdueAcknowledgements   int     `db:"overdue_acknowledgements" json:"overdueAcknowledgements"`
	TotalEmployees            int     `db:"total_employees" json:"totalEmployees"`
	AcknowledgementsThisMonth int     `db:"acknowledgements_this_month" json:"acknowledgementsThisMonth"`

	// Inputs to ComplianceRate.
	RateCompleted   int `db:"rate_completed" json:"-"`
	RateOutstanding int `db:"rate_outstanding" json:"-"`
}
