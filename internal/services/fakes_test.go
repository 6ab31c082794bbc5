package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		DefaultDueDays:          14,
		RateWindowDays:          365,
		AutoRequestOnAssignment: true,
		Now:                     func() time.Time { return testNow },
	}
}

// memStore is an in-memory stand-in for the repositories. It enforces the
// same company scoping and conditional updates the SQL does.
type memStore struct {
	mu sync.Mutex

	nextID      int64
	policies    map[int64]*models.Policy
	versions    map[int64]*models.PolicyVersion
	roles       map[int64]*models.Role
	employees   map[int64]*models.Employee
	assignments []models.RolePolicyAssignment
	empRoles    []models.EmployeeRole
	requests    map[int64]*models.AcknowledgementRequest
	events      []models.AcknowledgementEvent
	escalations map[int64]*models.AlertEscalation

	failWith error
	// failIssue makes the next assignment fan-out fail; the assignment is
	// then discarded as the transaction would be.
	failIssue error
}

func newMemStore() *memStore {
	return &memStore{
		policies:    map[int64]*models.Policy{},
		versions:    map[int64]*models.PolicyVersion{},
		roles:       map[int64]*models.Role{},
		employees:   map[int64]*models.Employee{},
		requests:    map[int64]*models.AcknowledgementRequest{},
		escalations: map[int64]*models.AlertEscalation{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

// ---- policies ----------------------------------------------------------------

func (m *memStore) CreatePolicy(_ context.Context, p *models.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	p.ID = m.id()
	p.CreatedAt, p.UpdatedAt = testNow, testNow
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *memStore) GetPolicy(_ context.Context, companyID, id int64) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.policies[id]
	if !ok || p.CompanyID != companyID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPolicies(_ context.Context, companyID int64) ([]models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Policy{}
	for _, p := range m.policies {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) UpdatePolicy(_ context.Context, p *models.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *memStore) CreateVersion(_ context.Context, v *models.PolicyVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = m.id()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = testNow
	}
	v.UpdatedAt = v.CreatedAt
	cp := *v
	m.versions[v.ID] = &cp
	return nil
}

func (m *memStore) versionInCompany(companyID, id int64) *models.PolicyVersion {
	v, ok := m.versions[id]
	if !ok {
		return nil
	}
	if p := m.policies[v.PolicyID]; p == nil || p.CompanyID != companyID {
		return nil
	}
	return v
}

func (m *memStore) GetVersion(_ context.Context, companyID, id int64) (*models.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	v := m.versionInCompany(companyID, id)
	if v == nil {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) ListVersions(ctx context.Context, policyID int64) ([]models.PolicyVersion, error) {
	return m.ListVersionsForPolicies(ctx, []int64{policyID})
}

func (m *memStore) ListVersionsForPolicies(_ context.Context, policyIDs []int64) ([]models.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range policyIDs {
		want[id] = true
	}
	out := []models.PolicyVersion{}
	for _, v := range m.versions {
		if want[v.PolicyID] {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) ApproveVersion(_ context.Context, companyID, id, approvedBy int64, at time.Time) (*models.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.versionInCompany(companyID, id)
	if v == nil || v.Status == models.VersionStatusDeprecated {
		return nil, nil
	}
	v.Status = models.VersionStatusApproved
	v.ApprovedBy = &approvedBy
	v.ApprovedAt = &at
	cp := *v
	return &cp, nil
}

func (m *memStore) SetVersionStatus(_ context.Context, companyID, id int64, status models.VersionStatus, from []models.VersionStatus, at time.Time) (*models.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.versionInCompany(companyID, id)
	if v == nil || !statusIn(v.Status, from) {
		return nil, nil
	}
	v.Status = status
	v.UpdatedAt = at
	cp := *v
	return &cp, nil
}

// ---- roles and employees -------------------------------------------------------

func (m *memStore) CreateRole(_ context.Context, role *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role.ID = m.id()
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memStore) GetRole(_ context.Context, companyID, id int64) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok || r.CompanyID != companyID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListRoles(_ context.Context, companyID int64) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Role{}
	for _, r := range m.roles {
		if r.CompanyID == companyID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) AssignPolicy(_ context.Context, roleID, versionID int64, issue *repositories.Issue) (*models.RolePolicyAssignment, bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.RoleID == roleID && a.PolicyVersionID == versionID {
			cp := a
			return &cp, false, 0, nil
		}
	}
	var issued int64
	if issue != nil {
		if err := m.takeIssueFailure(); err != nil {
			return nil, false, 0, err
		}
		issued = m.issueToRoleHolders(roleID, versionID, *issue)
	}
	a := models.RolePolicyAssignment{ID: m.id(), RoleID: roleID, PolicyVersionID: versionID, AssignedAt: testNow}
	m.assignments = append(m.assignments, a)
	return &a, true, issued, nil
}

func (m *memStore) ListAssignments(_ context.Context, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.RolePolicyAssignmentWithDetails{}
	for _, a := range m.assignments {
		if a.RoleID != roleID {
			continue
		}
		v := m.versions[a.PolicyVersionID]
		out = append(out, models.RolePolicyAssignmentWithDetails{
			RolePolicyAssignment: a,
			PolicyVersion:        models.PolicyVersionWithPolicy{PolicyVersion: *v, Policy: *m.policies[v.PolicyID]},
		})
	}
	return out, nil
}

func (m *memStore) CreateEmployee(_ context.Context, e *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.employees {
		if existing.Email == e.Email {
			return &compliance.ConflictError{Message: "an employee with email " + e.Email + " already exists"}
		}
	}
	e.ID = m.id()
	cp := *e
	m.employees[e.ID] = &cp
	return nil
}

func (m *memStore) GetEmployee(_ context.Context, companyID, id int64) (*models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok || e.CompanyID != companyID {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListEmployees(_ context.Context, companyID int64) ([]models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Employee{}
	for _, e := range m.employees {
		if e.CompanyID == companyID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SetActive(_ context.Context, companyID, id int64, active bool) (*models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok || e.CompanyID != companyID {
		return nil, nil
	}
	e.IsActive = active
	cp := *e
	return &cp, nil
}

func (m *memStore) ListRolesForEmployees(_ context.Context, ids []int64) ([]models.EmployeeRoleWithRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []models.EmployeeRoleWithRole{}
	for _, er := range m.empRoles {
		if want[er.EmployeeID] {
			out = append(out, models.EmployeeRoleWithRole{EmployeeRole: er, Role: *m.roles[er.RoleID]})
		}
	}
	return out, nil
}

func (m *memStore) AssignRole(_ context.Context, employeeID, roleID int64, issue *repositories.Issue) (*models.EmployeeRole, bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, er := range m.empRoles {
		if er.EmployeeID == employeeID && er.RoleID == roleID {
			cp := er
			return &cp, false, 0, nil
		}
	}
	var issued int64
	if issue != nil {
		if err := m.takeIssueFailure(); err != nil {
			return nil, false, 0, err
		}
		issued = m.issueRoleVersions(employeeID, roleID, *issue)
	}
	er := models.EmployeeRole{ID: m.id(), EmployeeID: employeeID, RoleID: roleID, AssignedAt: testNow}
	m.empRoles = append(m.empRoles, er)
	return &er, true, issued, nil
}

// ---- request fan-out -------------------------------------------------------------

func (m *memStore) hasOpenRequest(employeeID, versionID int64) bool {
	for _, r := range m.requests {
		if r.EmployeeID == employeeID && r.PolicyVersionID == versionID && r.CompletedAt == nil {
			return true
		}
	}
	return false
}

func (m *memStore) insertRequest(employeeID, versionID int64, trigger models.TriggerType, due time.Time) {
	id := m.id()
	m.requests[id] = &models.AcknowledgementRequest{
		ID: id, EmployeeID: employeeID, PolicyVersionID: versionID, TriggerType: trigger,
		DueDate: due, CreatedAt: testNow, UpdatedAt: testNow,
	}
}

func (m *memStore) takeIssueFailure() error {
	err := m.failIssue
	m.failIssue = nil
	return err
}

func (m *memStore) issueToRoleHolders(roleID, versionID int64, issue repositories.Issue) int64 {
	var n int64
	for _, er := range m.empRoles {
		if er.RoleID != roleID || !m.employees[er.EmployeeID].IsActive || m.hasOpenRequest(er.EmployeeID, versionID) {
			continue
		}
		m.insertRequest(er.EmployeeID, versionID, issue.Trigger, issue.Due)
		n++
	}
	return n
}

func (m *memStore) issueRoleVersions(employeeID, roleID int64, issue repositories.Issue) int64 {
	var n int64
	for _, a := range m.assignments {
		if a.RoleID != roleID || m.versions[a.PolicyVersionID].Status != models.VersionStatusApproved || m.hasOpenRequest(employeeID, a.PolicyVersionID) {
			continue
		}
		m.insertRequest(employeeID, a.PolicyVersionID, issue.Trigger, issue.Due)
		n++
	}
	return n
}

// ---- acknowledgement requests ------------------------------------------------------

func (m *memStore) CreateRequest(_ context.Context, req *models.AcknowledgementRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = m.id()
	req.CreatedAt, req.UpdatedAt = testNow, testNow
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memStore) requestInCompany(companyID, id int64) *models.AcknowledgementRequest {
	r, ok := m.requests[id]
	if !ok {
		return nil
	}
	if e := m.employees[r.EmployeeID]; e == nil || e.CompanyID != companyID {
		return nil
	}
	return r
}

func (m *memStore) GetRequest(_ context.Context, companyID, id int64) (*models.AcknowledgementRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.requestInCompany(companyID, id)
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) details(r *models.AcknowledgementRequest) models.AcknowledgementRequestWithDetails {
	v := m.versions[r.PolicyVersionID]
	return models.AcknowledgementRequestWithDetails{
		AcknowledgementRequest: *r,
		Employee:               *m.employees[r.EmployeeID],
		PolicyVersion:          models.PolicyVersionWithPolicy{PolicyVersion: *v, Policy: *m.policies[v.PolicyID]},
	}
}

func (m *memStore) ListRequests(_ context.Context, companyID int64, f repositories.RequestFilters) ([]models.AcknowledgementRequestWithDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AcknowledgementRequestWithDetails{}
	for id := range m.requests {
		r := m.requestInCompany(companyID, id)
		if r == nil {
			continue
		}
		switch f.Status {
		case repositories.FilterPending:
			if r.CompletedAt != nil || r.DueDate.Before(f.Now) {
				continue
			}
		case repositories.FilterCompleted:
			if r.CompletedAt == nil {
				continue
			}
		case repositories.FilterOverdue:
			if !compliance.IsOverdue(r.DueDate, r.CompletedAt, f.Now) {
				continue
			}
		case repositories.FilterEscalated:
			if r.EscalatedAt == nil {
				continue
			}
		}
		if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
			continue
		}
		if f.PolicyVersionID != nil && r.PolicyVersionID != *f.PolicyVersionID {
			continue
		}
		out = append(out, m.details(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) ListOverdue(_ context.Context, companyID int64, now time.Time) ([]models.AcknowledgementRequestWithDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AcknowledgementRequestWithDetails{}
	for id := range m.requests {
		r := m.requestInCompany(companyID, id)
		if r != nil && compliance.IsOverdue(r.DueDate, r.CompletedAt, now) {
			out = append(out, m.details(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (m *memStore) CompleteRequest(_ context.Context, requestID int64, at time.Time, ip, ua *string) (*models.AcknowledgementEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.requests[requestID]
	if r.CompletedAt != nil {
		return nil, &compliance.AlreadyCompletedError{RequestID: requestID}
	}
	r.CompletedAt = &at
	ev := models.AcknowledgementEvent{
		ID: m.id(), RequestID: requestID, EmployeeID: r.EmployeeID, PolicyVersionID: r.PolicyVersionID,
		AcknowledgedAt: at, IPAddress: ip, UserAgent: ua, CreatedAt: at,
	}
	m.events = append(m.events, ev)
	return &ev, nil
}

func (m *memStore) ListEvents(_ context.Context, requestID int64) ([]models.AcknowledgementEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AcknowledgementEvent{}
	for _, ev := range m.events {
		if ev.RequestID == requestID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) Escalate(_ context.Context, requestID int64, to string, at time.Time) (*models.AlertEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	esc := &models.AlertEscalation{ID: m.id(), RequestID: requestID, EscalatedTo: to, EscalatedAt: at, CreatedAt: at}
	m.escalations[esc.ID] = esc
	m.requests[requestID].EscalatedAt = &at
	cp := *esc
	return &cp, nil
}

func (m *memStore) ListEscalations(_ context.Context, companyID int64) ([]models.AlertEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AlertEscalation{}
	for _, esc := range m.escalations {
		if m.requestInCompany(companyID, esc.RequestID) != nil {
			out = append(out, *esc)
		}
	}
	return out, nil
}

func (m *memStore) GetEscalation(_ context.Context, companyID, id int64) (*models.AlertEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	esc, ok := m.escalations[id]
	if !ok || m.requestInCompany(companyID, esc.RequestID) == nil {
		return nil, nil
	}
	cp := *esc
	return &cp, nil
}

func (m *memStore) ResolveEscalation(_ context.Context, id int64, at time.Time) (*models.AlertEscalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	esc := m.escalations[id]
	if esc.ResolvedAt != nil {
		return nil, nil
	}
	esc.ResolvedAt = &at
	cp := *esc
	return &cp, nil
}

// ---- seeding helpers -------------------------------------------------------------

func (m *memStore) seedPolicy(companyID int64, title string) *models.Policy {
	p := &models.Policy{CompanyID: companyID, Title: title, Type: models.PolicyTypeInformationSecurity}
	_ = m.CreatePolicy(context.Background(), p)
	return p
}

func (m *memStore) seedVersion(policyID int64, label string, status models.VersionStatus) *models.PolicyVersion {
	v := &models.PolicyVersion{PolicyID: policyID, Version: label, Content: "content", Status: status, CreatedBy: 1}
	_ = m.CreateVersion(context.Background(), v)
	return v
}

func (m *memStore) seedEmployee(companyID int64, email string, active bool) *models.Employee {
	e := &models.Employee{CompanyID: companyID, Email: email, FirstName: "Test", LastName: "User", IsActive: active, StartDate: testNow}
	_ = m.CreateEmployee(context.Background(), e)
	return e
}

func (m *memStore) seedRequest(employeeID, versionID int64, due time.Time) *models.AcknowledgementRequest {
	r := &models.AcknowledgementRequest{EmployeeID: employeeID, PolicyVersionID: versionID, TriggerType: models.TriggerManual, DueDate: due}
	_ = m.CreateRequest(context.Background(), r)
	return r
}
