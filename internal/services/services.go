// Package services implements the compliance workflows that coordinate several
// repositories: the policy version lifecycle, role and employee assignment with
// acknowledgement fan-out, request completion and escalation, and dashboard
// aggregation. Every operation takes the caller's company id explicitly and
// reports failures with the error types of package compliance.
package services

import (
	"context"
	"time"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
)

// Options carries the lifecycle settings shared by the services.
type Options struct {
	DefaultDueDays          int
	RateWindowDays          int
	AutoRequestOnAssignment bool
	// Now is the clock; nil means time.Now in UTC.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the compliance config section.
func OptionsFromConfig(c config.ComplianceConfig) Options {
	return Options{
		DefaultDueDays:          c.DefaultDueDays,
		RateWindowDays:          c.RateWindowDays,
		AutoRequestOnAssignment: c.AutoRequestOnAssignment,
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// PolicyStore is the persistence PolicyService needs.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *models.Policy) error
	GetPolicy(ctx context.Context, companyID, id int64) (*models.Policy, error)
	ListPolicies(ctx context.Context, companyID int64) ([]models.Policy, error)
	UpdatePolicy(ctx context.Context, p *models.Policy) error
	CreateVersion(ctx context.Context, v *models.PolicyVersion) error
	GetVersion(ctx context.Context, companyID, id int64) (*models.PolicyVersion, error)
	ListVersions(ctx context.Context, policyID int64) ([]models.PolicyVersion, error)
	ListVersionsForPolicies(ctx context.Context, policyIDs []int64) ([]models.PolicyVersion, error)
	ApproveVersion(ctx context.Context, companyID, id, approvedBy int64, at time.Time) (*models.PolicyVersion, error)
	SetVersionStatus(ctx context.Context, companyID, id int64, status models.VersionStatus, from []models.VersionStatus, at time.Time) (*models.PolicyVersion, error)
}

// VersionLookup resolves a policy version inside a company.
type VersionLookup interface {
	GetVersion(ctx context.Context, companyID, id int64) (*models.PolicyVersion, error)
}

// EmployeeLookup resolves an employee inside a company.
type EmployeeLookup interface {
	GetEmployee(ctx context.Context, companyID, id int64) (*models.Employee, error)
}

// RoleStore is the role persistence AssignmentService needs.
type RoleStore interface {
	CreateRole(ctx context.Context, role *models.Role) error
	GetRole(ctx context.Context, companyID, id int64) (*models.Role, error)
	ListRoles(ctx context.Context, companyID int64) ([]models.Role, error)
	// AssignPolicy writes the link and, when issue is set, the resulting
	// requests atomically.
	AssignPolicy(ctx context.Context, roleID, policyVersionID int64, issue *repositories.Issue) (*models.RolePolicyAssignment, bool, int64, error)
	ListAssignments(ctx context.Context, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error)
}

// EmployeeStore is the employee persistence the services need.
type EmployeeStore interface {
	CreateEmployee(ctx context.Context, e *models.Employee) error
	GetEmployee(ctx context.Context, companyID, id int64) (*models.Employee, error)
	ListEmployees(ctx context.Context, companyID int64) ([]models.Employee, error)
	SetActive(ctx context.Context, companyID, id int64, active bool) (*models.Employee, error)
	ListRolesForEmployees(ctx context.Context, employeeIDs []int64) ([]models.EmployeeRoleWithRole, error)
	AssignRole(ctx context.Context, employeeID, roleID int64, issue *repositories.Issue) (*models.EmployeeRole, bool, int64, error)
}

// AcknowledgementStore is the request persistence AcknowledgementService needs.
type AcknowledgementStore interface {
	CreateRequest(ctx context.Context, req *models.AcknowledgementRequest) error
	GetRequest(ctx context.Context, companyID, id int64) (*models.AcknowledgementRequest, error)
	ListRequests(ctx context.Context, companyID int64, f repositories.RequestFilters) ([]models.AcknowledgementRequestWithDetails, error)
	ListOverdue(ctx context.Context, companyID int64, now time.Time) ([]models.AcknowledgementRequestWithDetails, error)
	CompleteRequest(ctx context.Context, requestID int64, at time.Time, ipAddress, userAgent *string) (*models.AcknowledgementEvent, error)
	ListEvents(ctx context.Context, requestID int64) ([]models.AcknowledgementEvent, error)
	Escalate(ctx context.Context, requestID int64, escalatedTo string, at time.Time) (*models.AlertEscalation, error)
	ListEscalations(ctx context.Context, companyID int64) ([]models.AlertEscalation, error)
	GetEscalation(ctx context.Context, companyID, id int64) (*models.AlertEscalation, error)
	ResolveEscalation(ctx context.Context, id int64, at time.Time) (*models.AlertEscalation, error)
}

// MetricsStore computes the raw dashboard counts.
type MetricsStore interface {
	GetMetrics(ctx context.Context, companyID int64, now, monthStart, windowStart time.Time) (*models.DashboardMetrics, error)
}

// TemplateUpgradeStore is the persistence TemplateUpgradeService needs.
type TemplateUpgradeStore interface {
	Create(ctx context.Context, u *models.TemplateUpgrade) error
	List(ctx context.Context, companyID int64) ([]models.TemplateUpgrade, error)
	Get(ctx context.Context, companyID, id int64) (*models.TemplateUpgrade, error)
	Complete(ctx context.Context, companyID, id int64, at time.Time) (*models.TemplateUpgrade, error)
}
