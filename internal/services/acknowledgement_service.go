package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// Escalation sources recorded in metrics.
const (
	EscalationSourceAPI   = "api"
	EscalationSourceSweep = "sweep"
)

// CreateRequestInput is the caller-supplied part of a manual request.
type CreateRequestInput struct {
	EmployeeID      int64
	PolicyVersionID int64
	TriggerType     string
	DueDate         time.Time
}

// CompleteRequestInput identifies who completes a request and from where.
type CompleteRequestInput struct {
	EmployeeID int64
	IPAddress  *string
	UserAgent  *string
}

// ListRequestsInput filters a request listing.
type ListRequestsInput struct {
	Status          string
	EmployeeID      *int64
	PolicyVersionID *int64
}

// AcknowledgementService runs the acknowledgement lifecycle: issuing,
// completing, listing overdue and escalating requests.
type AcknowledgementService struct {
	store     AcknowledgementStore
	employees EmployeeStore
	versions  VersionLookup
	opts      Options
}

// NewAcknowledgementService creates a new acknowledgement service
func NewAcknowledgementService(store AcknowledgementStore, employees EmployeeStore, versions VersionLookup, opts Options) *AcknowledgementService {
	return &AcknowledgementService{store: store, employees: employees, versions: versions, opts: opts}
}

// CreateRequest issues a request for an employee to acknowledge a version.
// A due date in the past is accepted and yields an immediately overdue request.
func (s *AcknowledgementService) CreateRequest(ctx context.Context, companyID int64, in CreateRequestInput) (*models.AcknowledgementRequest, error) {
	ve := &compliance.ValidationError{}
	if in.EmployeeID <= 0 {
		ve.Add("employeeId", "is required")
	}
	if in.PolicyVersionID <= 0 {
		ve.Add("policyVersionId", "is required")
	}
	trigger := models.TriggerType(in.TriggerType)
	if in.TriggerType == "" {
		ve.Add("triggerType", "is required")
	} else if !trigger.Valid() {
		ve.Add("triggerType", "must be ONBOARD, PERIODIC or MANUAL")
	}
	if in.DueDate.IsZero() {
		ve.Add("dueDate", "is required")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	e, err := s.employees.GetEmployee(ctx, companyID, in.EmployeeID)
	if err != nil {
		return nil, compliance.Store("get employee", err)
	}
	if e == nil {
		return nil, &compliance.NotFoundError{Resource: "employee", ID: in.EmployeeID}
	}
	v, err := s.versions.GetVersion(ctx, companyID, in.PolicyVersionID)
	if err != nil {
		return nil, compliance.Store("get policy version", err)
	}
	if v == nil {
		return nil, &compliance.NotFoundError{Resource: "policy version", ID: in.PolicyVersionID}
	}

	req := &models.AcknowledgementRequest{
		EmployeeID:      in.EmployeeID,
		PolicyVersionID: in.PolicyVersionID,
		TriggerType:     trigger,
		DueDate:         in.DueDate.UTC(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, compliance.Store("create acknowledgement request", err)
	}
	telemetry.AcknowledgementRequestsCreatedTotal.WithLabelValues(string(trigger)).Inc()
	return req, nil
}

// CompleteRequest records the employee's acknowledgement. The completion
// timestamp and the event are written together; a second completion, even
// one racing the first, fails with AlreadyCompletedError.
func (s *AcknowledgementService) CompleteRequest(ctx context.Context, companyID, requestID int64, in CompleteRequestInput) (*models.AcknowledgementEvent, error) {
	if in.EmployeeID <= 0 {
		return nil, compliance.NewValidationError("employeeId", "is required")
	}
	req, err := s.loadRequest(ctx, companyID, requestID)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != in.EmployeeID {
		return nil, compliance.NewValidationError("employeeId", "does not match the request's employee")
	}
	if req.CompletedAt != nil {
		telemetry.AcknowledgementCompletionConflictsTotal.Inc()
		return nil, &compliance.AlreadyCompletedError{RequestID: requestID}
	}

	ev, err := s.store.CompleteRequest(ctx, requestID, s.opts.now(), trimmed(in.IPAddress), trimmed(in.UserAgent))
	if err != nil {
		var ac *compliance.AlreadyCompletedError
		if errors.As(err, &ac) {
			telemetry.AcknowledgementCompletionConflictsTotal.Inc()
		}
		return nil, compliance.Store("complete acknowledgement request", err)
	}
	telemetry.AcknowledgementsCompletedTotal.Inc()
	return ev, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *AcknowledgementService) loadRequest(ctx context.Context, companyID, requestID int64) (*models.AcknowledgementRequest, error) {
	req, err := s.store.GetRequest(ctx, companyID, requestID)
	if err != nil {
		return nil, compliance.Store("get acknowledgement request", err)
	}
	if req == nil {
		return nil, &compliance.NotFoundError{Resource: "acknowledgement request", ID: requestID}
	}
	return req, nil
}

// ListRequests returns the company's requests matching in, newest first.
func (s *AcknowledgementService) ListRequests(ctx context.Context, companyID int64, in ListRequestsInput) ([]models.AcknowledgementRequestWithDetails, error) {
	status := repositories.RequestStatusFilter(strings.ToLower(in.Status))
	switch status {
	case "", repositories.FilterPending, repositories.FilterCompleted, repositories.FilterOverdue, repositories.FilterEscalated:
	default:
		return nil, compliance.NewValidationError("status", "must be pending, completed, overdue or escalated")
	}

	now := s.opts.now()
	rows, err := s.store.ListRequests(ctx, companyID, repositories.RequestFilters{
		Status:          status,
		EmployeeID:      in.EmployeeID,
		PolicyVersionID: in.PolicyVersionID,
		Now:             now,
	})
	if err != nil {
		return nil, compliance.Store("list acknowledgement requests", err)
	}
	return decorate(rows, now), nil
}

// ListEmployeeAcknowledgements returns every request of one employee.
func (s *AcknowledgementService) ListEmployeeAcknowledgements(ctx context.Context, companyID, employeeID int64) ([]models.AcknowledgementRequestWithDetails, error) {
	e, err := s.employees.GetEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, compliance.Store("get employee", err)
	}
	if e == nil {
		return nil, &compliance.NotFoundError{Resource: "employee", ID: employeeID}
	}
	return s.ListRequests(ctx, companyID, ListRequestsInput{EmployeeID: &employeeID})
}

// ListOverdue returns the company's overdue requests, most overdue first.
func (s *AcknowledgementService) ListOverdue(ctx context.Context, companyID int64) ([]models.AcknowledgementRequestWithDetails, error) {
	now := s.opts.now()
	rows, err := s.store.ListOverdue(ctx, companyID, now)
	if err != nil {
		return nil, compliance.Store("list overdue requests", err)
	}
	return decorate(rows, now), nil
}

func decorate(rows []models.AcknowledgementRequestWithDetails, now time.Time) []models.AcknowledgementRequestWithDetails {
	for i := range rows {
		compliance.Decorate(&rows[i], now)
	}
	return rows
}

// ListEvents returns the completion events of a request.
func (s *AcknowledgementService) ListEvents(ctx context.Context, companyID, requestID int64) ([]models.AcknowledgementEvent, error) {
	if _, err := s.loadRequest(ctx, companyID, requestID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, requestID)
	if err != nil {
		return nil, compliance.Store("list acknowledgement events", err)
	}
	return events, nil
}

// Escalate records an escalation of a request to escalatedTo. A request may be
// escalated more than once, completed or not; each call adds a new escalation
// and moves escalated_at forward.
func (s *AcknowledgementService) Escalate(ctx context.Context, companyID, requestID int64, escalatedTo string) (*models.AlertEscalation, error) {
	escalatedTo = strings.TrimSpace(escalatedTo)
	if escalatedTo == "" {
		return nil, compliance.NewValidationError("escalatedTo", "is required")
	}
	if _, err := s.loadRequest(ctx, companyID, requestID); err != nil {
		return nil, err
	}

	esc, err := s.store.Escalate(ctx, requestID, escalatedTo, s.opts.now())
	if err != nil {
		return nil, compliance.Store("escalate acknowledgement request", err)
	}
	telemetry.AlertEscalationsTotal.WithLabelValues(EscalationSourceAPI).Inc()
	return esc, nil
}

// ListEscalations returns the company's escalations, most recent first.
func (s *AcknowledgementService) ListEscalations(ctx context.Context, companyID int64) ([]models.AlertEscalation, error) {
	out, err := s.store.ListEscalations(ctx, companyID)
	if err != nil {
		return nil, compliance.Store("list escalations", err)
	}
	return out, nil
}

// ResolveEscalation marks an escalation resolved. Resolving twice is a conflict.
func (s *AcknowledgementService) ResolveEscalation(ctx context.Context, companyID, escalationID int64) (*models.AlertEscalation, error) {
	esc, err := s.store.GetEscalation(ctx, companyID, escalationID)
	if err != nil {
		return nil, compliance.Store("get escalation", err)
	}
	if esc == nil {
		return nil, &compliance.NotFoundError{Resource: "escalation", ID: escalationID}
	}
	resolved, err := s.store.ResolveEscalation(ctx, escalationID, s.opts.now())
	if err != nil {
		return nil, compliance.Store("resolve escalation", err)
	}
	if resolved == nil {
		return nil, &compliance.ConflictError{Message: "escalation is already resolved"}
	}
	return resolved, nil
}
