//go:build integration

package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/services"
)

// startPostgres runs a disposable PostgreSQL container and returns a migrated
// connection to it. Run with: go test -tags integration ./internal/services/
func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "tracker",
				"POSTGRES_PASSWORD": "tracker",
				"POSTGRES_DB":       "policy_tracker",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=tracker password=tracker dbname=policy_tracker sslmode=disable", host, port.Port())
	conn, err := db.Connect(dsn, 10, 2)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, "up"))
	return sqlx.NewDb(conn, "postgres")
}

// clock lets a test move the services' notion of now; zero means wall time.
type clock struct {
	mu sync.Mutex
	at time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.at.IsZero() {
		return time.Now().UTC()
	}
	return c.at
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.at = t
	c.mu.Unlock()
}

type stack struct {
	policies    *services.PolicyService
	assignments *services.AssignmentService
	acks        *services.AcknowledgementService
	dashboard   *services.DashboardService
	clock       *clock
	companyID   int64
}

func newStack(t *testing.T, sqlxDB *sqlx.DB) *stack {
	t.Helper()
	clk := &clock{}
	opts := services.Options{DefaultDueDays: 14, RateWindowDays: 365, AutoRequestOnAssignment: true, Now: clk.Now}

	policyRepo := repositories.NewPolicyRepository(sqlxDB)
	ackRepo := repositories.NewAcknowledgementRepository(sqlxDB)
	employeeRepo := repositories.NewEmployeeRepository(sqlxDB)

	company := &models.Company{Name: "Acme " + time.Now().Format(time.RFC3339Nano)}
	require.NoError(t, repositories.NewCompanyRepository(sqlxDB).Create(context.Background(), company))

	return &stack{
		policies:    services.NewPolicyService(policyRepo, employeeRepo, opts),
		assignments: services.NewAssignmentService(repositories.NewRoleRepository(sqlxDB), employeeRepo, policyRepo, opts),
		acks:        services.NewAcknowledgementService(ackRepo, employeeRepo, policyRepo, opts),
		dashboard:   services.NewDashboardService(repositories.NewDashboardRepository(sqlxDB), opts),
		clock:       clk,
		companyID:   company.ID,
	}
}

func (s *stack) employee(t *testing.T, email string) *models.Employee {
	t.Helper()
	e, err := s.assignments.CreateEmployee(context.Background(), s.companyID, services.CreateEmployeeInput{
		Email: email, FirstName: "Test", LastName: "Employee",
	})
	require.NoError(t, err)
	return e
}

func (s *stack) policyVersion(t *testing.T, title, policyType, status string, author int64) *models.PolicyVersion {
	t.Helper()
	ctx := context.Background()
	policy, err := s.policies.CreatePolicy(ctx, s.companyID, services.CreatePolicyInput{Title: title, Type: policyType})
	require.NoError(t, err)
	version, err := s.policies.CreateVersion(ctx, s.companyID, policy.ID, services.CreateVersionInput{
		Version: "1.0", Content: title + " content.", Status: status, CreatedBy: author,
	})
	require.NoError(t, err)
	return version
}

func TestIntegration_AcknowledgementLifecycle(t *testing.T) {
	sqlxDB := startPostgres(t)
	s := newStack(t, sqlxDB)
	ctx := context.Background()

	officer := s.employee(t, "officer@example.com")
	version := s.policyVersion(t, "Acceptable Use", "INFORMATION_SECURITY", "PENDING", officer.ID)

	_, err := s.policies.ApproveVersion(ctx, s.companyID, version.ID, 999999)
	var nf *compliance.NotFoundError
	require.True(t, errors.As(err, &nf), "unknown approver: %v", err)
	assert.Equal(t, "employee", nf.Resource)

	version, err = s.policies.ApproveVersion(ctx, s.companyID, version.ID, officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusApproved, version.Status)

	role, err := s.assignments.CreateRole(ctx, s.companyID, "Engineer", nil)
	require.NoError(t, err)
	employee, err := s.assignments.CreateEmployee(ctx, s.companyID, services.CreateEmployeeInput{
		Email: "Ada@Example.com", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", employee.Email)

	_, isNew, err := s.assignments.AssignRoleToEmployee(ctx, s.companyID, employee.ID, role.ID)
	require.NoError(t, err)
	assert.True(t, isNew)

	_, isNew, err = s.assignments.AssignPolicyToRole(ctx, s.companyID, role.ID, version.ID)
	require.NoError(t, err)
	assert.True(t, isNew)
	_, isNew, err = s.assignments.AssignPolicyToRole(ctx, s.companyID, role.ID, version.ID)
	require.NoError(t, err)
	assert.False(t, isNew, "second assignment is idempotent")

	requests, err := s.acks.ListEmployeeAcknowledgements(ctx, s.companyID, employee.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1, "assignment fans out exactly one open request")
	requestID := requests[0].ID

	ip := "203.0.113.9"
	event, err := s.acks.CompleteRequest(ctx, s.companyID, requestID, services.CompleteRequestInput{EmployeeID: employee.ID, IPAddress: &ip})
	require.NoError(t, err)
	assert.Equal(t, requestID, event.RequestID)

	_, err = s.acks.CompleteRequest(ctx, s.companyID, requestID, services.CompleteRequestInput{EmployeeID: employee.ID})
	var already *compliance.AlreadyCompletedError
	assert.True(t, errors.As(err, &already), "second completion: %v", err)

	_, err = s.acks.Escalate(ctx, s.companyID, requestID, "CTO")
	require.NoError(t, err, "completed requests may still be escalated")

	events, err := s.acks.ListEvents(ctx, s.companyID, requestID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// A past due date is accepted and the request is overdue at once.
	late, err := s.acks.CreateRequest(ctx, s.companyID, services.CreateRequestInput{
		EmployeeID: employee.ID, PolicyVersionID: version.ID, TriggerType: "MANUAL", DueDate: time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	overdue, err := s.acks.ListOverdue(ctx, s.companyID)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	_, err = s.acks.CompleteRequest(ctx, s.companyID, late.ID, services.CompleteRequestInput{EmployeeID: employee.ID})
	require.NoError(t, err)
	overdue, err = s.acks.ListOverdue(ctx, s.companyID)
	require.NoError(t, err)
	assert.Empty(t, overdue, "completion clears overdue")

	metrics, err := s.dashboard.GetMetrics(ctx, s.companyID)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalPolicies)
	assert.Equal(t, 2, metrics.TotalEmployees)
	assert.Equal(t, 0, metrics.OverdueAcknowledgements)
	assert.Equal(t, 2, metrics.AcknowledgementsThisMonth)
	assert.InDelta(t, 100.0, metrics.ComplianceRate, 0.001)
}

func TestIntegration_ConcurrentCompletionRecordsOneEvent(t *testing.T) {
	sqlxDB := startPostgres(t)
	s := newStack(t, sqlxDB)
	ctx := context.Background()

	employee := s.employee(t, "grace@example.com")
	version := s.policyVersion(t, "Data Retention", "DATA_PROTECTION", "", employee.ID)

	req, err := s.acks.CreateRequest(ctx, s.companyID, services.CreateRequestInput{
		EmployeeID: employee.ID, PolicyVersionID: version.ID, TriggerType: "MANUAL", DueDate: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	overdue, err := s.acks.ListOverdue(ctx, s.companyID)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, req.ID, overdue[0].ID)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.acks.CompleteRequest(ctx, s.companyID, req.ID, services.CompleteRequestInput{EmployeeID: employee.ID})
			var already *compliance.AlreadyCompletedError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &already):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	events, err := s.acks.ListEvents(ctx, s.companyID, req.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	overdue, err = s.acks.ListOverdue(ctx, s.companyID)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestIntegration_DashboardCounts(t *testing.T) {
	sqlxDB := startPostgres(t)
	s := newStack(t, sqlxDB)
	ctx := context.Background()

	staff := make([]*models.Employee, 5)
	for i := range staff {
		staff[i] = s.employee(t, fmt.Sprintf("staff%d@example.com", i))
	}
	author := staff[0].ID

	// One version left pending, two approved. The encryption version starts
	// PENDING so approving it must take it out of pendingApprovals.
	s.policyVersion(t, "Incident Response", "INCIDENT_RESPONSE", "PENDING", author)
	encryption := s.policyVersion(t, "Encryption", "CRYPTO", "PENDING", author)
	approved := s.policyVersion(t, "Information Security", "INFORMATION_SECURITY", "DRAFT", author)
	for _, id := range []int64{encryption.ID, approved.ID} {
		v, err := s.policies.ApproveVersion(ctx, s.companyID, id, author)
		require.NoError(t, err)
		require.Equal(t, models.VersionStatusApproved, v.Status)
	}

	request := func(e *models.Employee, due time.Time) *models.AcknowledgementRequest {
		r, err := s.acks.CreateRequest(ctx, s.companyID, services.CreateRequestInput{
			EmployeeID: e.ID, PolicyVersionID: approved.ID, TriggerType: "MANUAL", DueDate: due,
		})
		require.NoError(t, err)
		return r
	}
	now := time.Now().UTC()
	request(staff[0], now.AddDate(0, 0, -5))
	request(staff[1], now.AddDate(0, 0, -1))
	thisMonth := request(staff[2], now.AddDate(0, 0, 14))
	lastMonth := request(staff[3], now.AddDate(0, 0, 14))

	// Completed just before the month began: counted nowhere.
	s.clock.Set(compliance.MonthStart(now).Add(-time.Hour))
	_, err := s.acks.CompleteRequest(ctx, s.companyID, lastMonth.ID, services.CompleteRequestInput{EmployeeID: staff[3].ID})
	require.NoError(t, err)
	s.clock.Set(time.Time{})

	_, err = s.acks.CompleteRequest(ctx, s.companyID, thisMonth.ID, services.CompleteRequestInput{EmployeeID: staff[2].ID})
	require.NoError(t, err)

	metrics, err := s.dashboard.GetMetrics(ctx, s.companyID)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.TotalPolicies)
	assert.Equal(t, 1, metrics.PendingApprovals)
	assert.Equal(t, 5, metrics.TotalEmployees)
	assert.Equal(t, 2, metrics.OverdueAcknowledgements)
	assert.Equal(t, 1, metrics.AcknowledgementsThisMonth)
}
