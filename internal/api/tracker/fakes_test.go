package tracker

import (
	"context"

	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/services"
)

// The fakes record the last call and return canned values or err.

type fakePolicies struct {
	err error

	policy   *models.Policy
	detail   *models.PolicyWithVersions
	list     []models.PolicyWithVersions
	version  *models.PolicyVersion
	versions []models.PolicyVersion

	company    int64
	id         int64
	approvedBy int64
	create     services.CreatePolicyInput
	update     services.UpdatePolicyInput
	newVersion services.CreateVersionInput
	calls      []string
}

func (f *fakePolicies) record(name string, companyID, id int64) {
	f.calls = append(f.calls, name)
	f.company, f.id = companyID, id
}

func (f *fakePolicies) CreatePolicy(_ context.Context, companyID int64, in services.CreatePolicyInput) (*models.Policy, error) {
	f.record("CreatePolicy", companyID, 0)
	f.create = in
	return f.policy, f.err
}

func (f *fakePolicies) UpdatePolicy(_ context.Context, companyID, policyID int64, in services.UpdatePolicyInput) (*models.Policy, error) {
	f.record("UpdatePolicy", companyID, policyID)
	f.update = in
	return f.policy, f.err
}

func (f *fakePolicies) GetPolicy(_ context.Context, companyID, policyID int64) (*models.PolicyWithVersions, error) {
	f.record("GetPolicy", companyID, policyID)
	return f.detail, f.err
}

func (f *fakePolicies) ListPolicies(_ context.Context, companyID int64) ([]models.PolicyWithVersions, error) {
	f.record("ListPolicies", companyID, 0)
	return f.list, f.err
}

func (f *fakePolicies) ListVersions(_ context.Context, companyID, policyID int64) ([]models.PolicyVersion, error) {
	f.record("ListVersions", companyID, policyID)
	return f.versions, f.err
}

func (f *fakePolicies) CreateVersion(_ context.Context, companyID, policyID int64, in services.CreateVersionInput) (*models.PolicyVersion, error) {
	f.record("CreateVersion", companyID, policyID)
	f.newVersion = in
	return f.version, f.err
}

func (f *fakePolicies) ApproveVersion(_ context.Context, companyID, versionID, approvedBy int64) (*models.PolicyVersion, error) {
	f.record("ApproveVersion", companyID, versionID)
	f.approvedBy = approvedBy
	return f.version, f.err
}

func (f *fakePolicies) SubmitVersion(_ context.Context, companyID, versionID int64) (*models.PolicyVersion, error) {
	f.record("SubmitVersion", companyID, versionID)
	return f.version, f.err
}

func (f *fakePolicies) DeprecateVersion(_ context.Context, companyID, versionID int64) (*models.PolicyVersion, error) {
	f.record("DeprecateVersion", companyID, versionID)
	return f.version, f.err
}

type fakeAssignments struct {
	err   error
	isNew bool

	role        *models.Role
	roles       []models.Role
	assignment  *models.RolePolicyAssignment
	assignments []models.RolePolicyAssignmentWithDetails
	employee    *models.Employee
	detail      *models.EmployeeWithRoles
	employees   []models.EmployeeWithRoles
	link        *models.EmployeeRole

	company     int64
	id          int64
	other       int64
	active      *bool
	roleName    string
	newEmployee services.CreateEmployeeInput
}

func (f *fakeAssignments) CreateRole(_ context.Context, companyID int64, name string, _ *string) (*models.Role, error) {
	f.company, f.roleName = companyID, name
	return f.role, f.err
}

func (f *fakeAssignments) ListRoles(_ context.Context, companyID int64) ([]models.Role, error) {
	f.company = companyID
	return f.roles, f.err
}

func (f *fakeAssignments) ListRoleAssignments(_ context.Context, companyID, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error) {
	f.company, f.id = companyID, roleID
	return f.assignments, f.err
}

func (f *fakeAssignments) AssignPolicyToRole(_ context.Context, companyID, roleID, versionID int64) (*models.RolePolicyAssignment, bool, error) {
	f.company, f.id, f.other = companyID, roleID, versionID
	return f.assignment, f.isNew, f.err
}

func (f *fakeAssignments) CreateEmployee(_ context.Context, companyID int64, in services.CreateEmployeeInput) (*models.Employee, error) {
	f.company, f.newEmployee = companyID, in
	return f.employee, f.err
}

func (f *fakeAssignments) ListEmployees(_ context.Context, companyID int64) ([]models.EmployeeWithRoles, error) {
	f.company = companyID
	return f.employees, f.err
}

func (f *fakeAssignments) GetEmployee(_ context.Context, companyID, employeeID int64) (*models.EmployeeWithRoles, error) {
	f.company, f.id = companyID, employeeID
	return f.detail, f.err
}

func (f *fakeAssignments) SetEmployeeActive(_ context.Context, companyID, employeeID int64, active bool) (*models.Employee, error) {
	f.company, f.id, f.active = companyID, employeeID, &active
	return f.employee, f.err
}

func (f *fakeAssignments) AssignRoleToEmployee(_ context.Context, companyID, employeeID, roleID int64) (*models.EmployeeRole, bool, error) {
	f.company, f.id, f.other = companyID, employeeID, roleID
	return f.link, f.isNew, f.err
}

type fakeAcks struct {
	err error

	request     *models.AcknowledgementRequest
	requests    []models.AcknowledgementRequestWithDetails
	event       *models.AcknowledgementEvent
	events      []models.AcknowledgementEvent
	escalation  *models.AlertEscalation
	escalations []models.AlertEscalation

	company     int64
	id          int64
	escalatedTo string
	create      services.CreateRequestInput
	complete    services.CompleteRequestInput
	filter      services.ListRequestsInput
}

func (f *fakeAcks) CreateRequest(_ context.Context, companyID int64, in services.CreateRequestInput) (*models.AcknowledgementRequest, error) {
	f.company, f.create = companyID, in
	return f.request, f.err
}

func (f *fakeAcks) CompleteRequest(_ context.Context, companyID, requestID int64, in services.CompleteRequestInput) (*models.AcknowledgementEvent, error) {
	f.company, f.id, f.complete = companyID, requestID, in
	return f.event, f.err
}

func (f *fakeAcks) ListRequests(_ context.Context, companyID int64, in services.ListRequestsInput) ([]models.AcknowledgementRequestWithDetails, error) {
	f.company, f.filter = companyID, in
	return f.requests, f.err
}

func (f *fakeAcks) ListEmployeeAcknowledgements(_ context.Context, companyID, employeeID int64) ([]models.AcknowledgementRequestWithDetails, error) {
	f.company, f.id = companyID, employeeID
	return f.requests, f.err
}

func (f *fakeAcks) ListOverdue(_ context.Context, companyID int64) ([]models.AcknowledgementRequestWithDetails, error) {
	f.company = companyID
	return f.requests, f.err
}

func (f *fakeAcks) ListEvents(_ context.Context, companyID, requestID int64) ([]models.AcknowledgementEvent, error) {
	f.company, f.id = companyID, requestID
	return f.events, f.err
}

func (f *fakeAcks) Escalate(_ context.Context, companyID, requestID int64, escalatedTo string) (*models.AlertEscalation, error) {
	f.company, f.id, f.escalatedTo = companyID, requestID, escalatedTo
	return f.escalation, f.err
}

func (f *fakeAcks) ListEscalations(_ context.Context, companyID int64) ([]models.AlertEscalation, error) {
	f.company = companyID
	return f.escalations, f.err
}

func (f *fakeAcks) ResolveEscalation(_ context.Context, companyID, escalationID int64) (*models.AlertEscalation, error) {
	f.company, f.id = companyID, escalationID
	return f.escalation, f.err
}

type fakeMetrics struct {
	metrics *models.DashboardMetrics
	err     error
	company int64
}

func (f *fakeMetrics) GetMetrics(_ context.Context, companyID int64) (*models.DashboardMetrics, error) {
	f.company = companyID
	return f.metrics, f.err
}

type fakeUpgrades struct {
	err      error
	upgrade  *models.TemplateUpgrade
	upgrades []models.TemplateUpgrade

	company int64
	id      int64
	args    []string
}

func (f *fakeUpgrades) Create(_ context.Context, companyID int64, policyType, current, available string) (*models.TemplateUpgrade, error) {
	f.company, f.args = companyID, []string{policyType, current, available}
	return f.upgrade, f.err
}

func (f *fakeUpgrades) List(_ context.Context, companyID int64) ([]models.TemplateUpgrade, error) {
	f.company = companyID
	return f.upgrades, f.err
}

func (f *fakeUpgrades) Complete(_ context.Context, companyID, id int64) (*models.TemplateUpgrade, error) {
	f.company, f.id = companyID, id
	return f.upgrade, f.err
}
