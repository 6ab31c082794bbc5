package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/telemetry"
	"github.com/policytracker/policy-tracker/internal/validation"
)

// CreateEmployeeInput is the caller-supplied part of a new employee.
type CreateEmployeeInput struct {
	Email     string
	FirstName string
	LastName  string
	StartDate *time.Time
	// IsActive defaults to true when nil.
	IsActive *bool
}

// AssignmentService manages roles, employees and the links between roles,
// policy versions and employees. When AutoRequestOnAssignment is set, a new
// link issues acknowledgement requests to the affected employees.
type AssignmentService struct {
	roles     RoleStore
	employees EmployeeStore
	versions  VersionLookup
	opts      Options
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(roles RoleStore, employees EmployeeStore, versions VersionLookup, opts Options) *AssignmentService {
	return &AssignmentService{roles: roles, employees: employees, versions: versions, opts: opts}
}

func (s *AssignmentService) issue(trigger models.TriggerType) *repositories.Issue {
	return &repositories.Issue{Trigger: trigger, Due: compliance.DueDate(s.opts.now(), s.opts.DefaultDueDays)}
}

// CreateRole creates a role in the company.
func (s *AssignmentService) CreateRole(ctx context.Context, companyID int64, name string, description *string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, compliance.NewValidationError("name", "is required")
	}
	role := &models.Role{CompanyID: companyID, Name: name, Description: description}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return nil, compliance.Store("create role", err)
	}
	return role, nil
}

// ListRoles returns the company's roles.
func (s *AssignmentService) ListRoles(ctx context.Context, companyID int64) ([]models.Role, error) {
	roles, err := s.roles.ListRoles(ctx, companyID)
	if err != nil {
		return nil, compliance.Store("list roles", err)
	}
	return roles, nil
}

func (s *AssignmentService) loadRole(ctx context.Context, companyID, roleID int64) (*models.Role, error) {
	role, err := s.roles.GetRole(ctx, companyID, roleID)
	if err != nil {
		return nil, compliance.Store("get role", err)
	}
	if role == nil {
		return nil, &compliance.NotFoundError{Resource: "role", ID: roleID}
	}
	return role, nil
}

func (s *AssignmentService) loadEmployee(ctx context.Context, companyID, employeeID int64) (*models.Employee, error) {
	e, err := s.employees.GetEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, compliance.Store("get employee", err)
	}
	if e == nil {
		return nil, &compliance.NotFoundError{Resource: "employee", ID: employeeID}
	}
	return e, nil
}

// ListRoleAssignments returns the policy versions assigned to a role.
func (s *AssignmentService) ListRoleAssignments(ctx context.Context, companyID, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error) {
	if _, err := s.loadRole(ctx, companyID, roleID); err != nil {
		return nil, err
	}
	out, err := s.roles.ListAssignments(ctx, roleID)
	if err != nil {
		return nil, compliance.Store("list role assignments", err)
	}
	return out, nil
}

// AssignPolicyToRole links a policy version to a role. Re-assigning an
// existing pair returns the existing link with created=false. A newly
// assigned APPROVED version is requested from every active role holder in the
// same transaction as the link.
func (s *AssignmentService) AssignPolicyToRole(ctx context.Context, companyID, roleID, versionID int64) (*models.RolePolicyAssignment, bool, error) {
	if _, err := s.loadRole(ctx, companyID, roleID); err != nil {
		return nil, false, err
	}
	v, err := s.versions.GetVersion(ctx, companyID, versionID)
	if err != nil {
		return nil, false, compliance.Store("get policy version", err)
	}
	if v == nil {
		return nil, false, &compliance.NotFoundError{Resource: "policy version", ID: versionID}
	}

	var issue *repositories.Issue
	if s.opts.AutoRequestOnAssignment && v.Status == models.VersionStatusApproved {
		issue = s.issue(models.TriggerManual)
	}
	a, created, n, err := s.roles.AssignPolicy(ctx, roleID, versionID, issue)
	if err != nil {
		return nil, false, compliance.Store("assign policy to role", err)
	}
	s.recordIssued(models.TriggerManual, n, "role_id", roleID, "policy_version_id", versionID)
	return a, created, nil
}

// CreateEmployee adds an employee to the company. Email must be unique.
func (s *AssignmentService) CreateEmployee(ctx context.Context, companyID int64, in CreateEmployeeInput) (*models.Employee, error) {
	ve := &compliance.ValidationError{}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		ve.Add("email", "is required")
	} else if err := validation.ValidateEmail(email); err != nil {
		ve.Add("email", "is not a valid email address")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		ve.Add("firstName", "is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		ve.Add("lastName", "is required")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	start := s.opts.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	e := &models.Employee{
		CompanyID: companyID,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsActive:  active,
		StartDate: start,
	}
	if err := s.employees.CreateEmployee(ctx, e); err != nil {
		return nil, compliance.Store("create employee", err)
	}
	return e, nil
}

// ListEmployees returns the company's employees with their roles.
func (s *AssignmentService) ListEmployees(ctx context.Context, companyID int64) ([]models.EmployeeWithRoles, error) {
	employees, err := s.employees.ListEmployees(ctx, companyID)
	if err != nil {
		return nil, compliance.Store("list employees", err)
	}
	return s.attachRoles(ctx, employees)
}

// GetEmployee returns one employee with roles.
func (s *AssignmentService) GetEmployee(ctx context.Context, companyID, employeeID int64) (*models.EmployeeWithRoles, error) {
	e, err := s.loadEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	out, err := s.attachRoles(ctx, []models.Employee{*e})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *AssignmentService) attachRoles(ctx context.Context, employees []models.Employee) ([]models.EmployeeWithRoles, error) {
	out := make([]models.EmployeeWithRoles, 0, len(employees))
	if len(employees) == 0 {
		return out, nil
	}
	ids := make([]int64, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}
	roles, err := s.employees.ListRolesForEmployees(ctx, ids)
	if err != nil {
		return nil, compliance.Store("list employee roles", err)
	}
	byEmployee := make(map[int64][]models.EmployeeRoleWithRole, len(employees))
	for _, r := range roles {
		byEmployee[r.EmployeeID] = append(byEmployee[r.EmployeeID], r)
	}
	for _, e := range employees {
		rs := byEmployee[e.ID]
		if rs == nil {
			rs = []models.EmployeeRoleWithRole{}
		}
		out = append(out, models.EmployeeWithRoles{Employee: e, Roles: rs})
	}
	return out, nil
}

// SetEmployeeActive activates or deactivates an employee. Inactive employees
// keep their history but receive no new requests.
func (s *AssignmentService) SetEmployeeActive(ctx context.Context, companyID, employeeID int64, active bool) (*models.Employee, error) {
	e, err := s.employees.SetActive(ctx, companyID, employeeID, active)
	if err != nil {
		return nil, compliance.Store("update employee", err)
	}
	if e == nil {
		return nil, &compliance.NotFoundError{Resource: "employee", ID: employeeID}
	}
	return e, nil
}

// AssignRoleToEmployee gives an employee a role. Re-assigning returns the
// existing link with created=false. An active employee gaining a role is
// asked to acknowledge every APPROVED version assigned to it.
func (s *AssignmentService) AssignRoleToEmployee(ctx context.Context, companyID, employeeID, roleID int64) (*models.EmployeeRole, bool, error) {
	e, err := s.loadEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.loadRole(ctx, companyID, roleID); err != nil {
		return nil, false, err
	}

	var issue *repositories.Issue
	if s.opts.AutoRequestOnAssignment && e.IsActive {
		issue = s.issue(models.TriggerOnboard)
	}
	er, created, n, err := s.employees.AssignRole(ctx, employeeID, roleID, issue)
	if err != nil {
		return nil, false, compliance.Store("assign role", err)
	}
	s.recordIssued(models.TriggerOnboard, n, "employee_id", employeeID, "role_id", roleID)
	return er, created, nil
}

func (s *AssignmentService) recordIssued(trigger models.TriggerType, n int64, attrs ...any) {
	if n == 0 {
		return
	}
	telemetry.AcknowledgementRequestsCreatedTotal.WithLabelValues(string(trigger)).Add(float64(n))
	slog.Info("acknowledgement requests issued", append([]any{"trigger", trigger, "count", n}, attrs...)...)
}
