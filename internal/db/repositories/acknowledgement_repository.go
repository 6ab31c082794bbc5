// acknowledgement_repository.go implements AcknowledgementRepository, providing
// acknowledgement requests, their completion events and escalations. Completion
// and escalation are each a single transaction; the conditional UPDATE on
// completed_at is what makes double completion impossible.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

const requestColumns = `id, employee_id, policy_version_id, trigger_type, due_date,
	completed_at, escalated_at, reminder_sent_at, created_at, updated_at`

const eventColumns = `id, request_id, employee_id, policy_version_id, acknowledged_at, ip_address, user_agent, created_at`

const escalationColumns = `id, request_id, escalated_to, escalated_at, resolved_at, created_at`

// detailColumns selects a request together with its employee, version and
// policy, aliased so sqlx can scan into AcknowledgementRequestWithDetails.
var detailColumns = []string{
	"ar.id", "ar.employee_id", "ar.policy_version_id", "ar.trigger_type", "ar.due_date",
	"ar.completed_at", "ar.escalated_at", "ar.reminder_sent_at", "ar.created_at", "ar.updated_at",
	`e.id AS "employee.id"`,
	`e.company_id AS "employee.company_id"`,
	`e.email AS "employee.email"`,
	`e.first_name AS "employee.first_name"`,
	`e.last_name AS "employee.last_name"`,
	`e.is_active AS "employee.is_active"`,
	`e.start_date AS "employee.start_date"`,
	`e.created_at AS "employee.created_at"`,
	`e.updated_at AS "employee.updated_at"`,
	`pv.id AS "policy_version.id"`,
	`pv.policy_id AS "policy_version.policy_id"`,
	`pv.version AS "policy_version.version"`,
	`pv.content AS "policy_version.content"`,
	`pv.status AS "policy_version.status"`,
	`pv.config_data AS "policy_version.config_data"`,
	`pv.approved_by AS "policy_version.approved_by"`,
	`pv.approved_at AS "policy_version.approved_at"`,
	`pv.created_by AS "policy_version.created_by"`,
	`pv.created_at AS "policy_version.created_at"`,
	`pv.updated_at AS "policy_version.updated_at"`,
	`p.id AS "policy_version.policy.id"`,
	`p.company_id AS "policy_version.policy.company_id"`,
	`p.title AS "policy_version.policy.title"`,
	`p.description AS "policy_version.policy.description"`,
	`p.type AS "policy_version.policy.type"`,
	`p.is_template AS "policy_version.policy.is_template"`,
	`p.template_source AS "policy_version.policy.template_source"`,
	`p.created_at AS "policy_version.policy.created_at"`,
	`p.updated_at AS "policy_version.policy.updated_at"`,
}

// RequestStatusFilter narrows a request listing by derived state.
type RequestStatusFilter string

const (
	FilterPending   RequestStatusFilter = "pending"
	FilterCompleted RequestStatusFilter = "completed"
	FilterOverdue   RequestStatusFilter = "overdue"
	FilterEscalated RequestStatusFilter = "escalated"
)

// RequestFilters contains filters for listing acknowledgement requests
type RequestFilters struct {
	Status          RequestStatusFilter
	EmployeeID      *int64
	PolicyVersionID *int64
	// Now is the reference time for pending/overdue filters.
	Now time.Time
}

// AcknowledgementRepository handles acknowledgement database operations
type AcknowledgementRepository struct {
	db *sqlx.DB
}

// NewAcknowledgementRepository creates a new acknowledgement repository
func NewAcknowledgementRepository(db *sqlx.DB) *AcknowledgementRepository {
	return &AcknowledgementRepository{db: db}
}

// CreateRequest inserts an acknowledgement request
func (r *AcknowledgementRepository) CreateRequest(ctx context.Context, req *models.AcknowledgementRequest) error {
	query := `
		INSERT INTO acknowledgement_requests (employee_id, policy_version_id, trigger_type, due_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		req.EmployeeID, req.PolicyVersionID, req.TriggerType, req.DueDate,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create acknowledgement request: %w", err)
	}
	return nil
}

// Issue asks an assignment to create acknowledgement requests in the same
// transaction as the assignment row.
type Issue struct {
	Trigger models.TriggerType
	Due     time.Time
}

// issueToRoleHolders requests versionID from every active holder of roleID
// that has no open request for it. Returns the number created.
func issueToRoleHolders(ctx context.Context, ex sqlx.ExecerContext, roleID, versionID int64, issue Issue) (int64, error) {
	query := `
		INSERT INTO acknowledgement_requests (employee_id, policy_version_id, trigger_type, due_date)
		SELECT er.employee_id, $2, $3, $4
		FROM employee_roles er
		JOIN employees e ON e.id = er.employee_id AND e.is_active
		WHERE er.role_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM acknowledgement_requests ar
			WHERE ar.employee_id = er.employee_id
			  AND ar.policy_version_id = $2
			  AND ar.completed_at IS NULL
		  )
	`
	res, err := ex.ExecContext(ctx, query, roleID, versionID, issue.Trigger, issue.Due)
	if err != nil {
		return 0, fmt.Errorf("failed to create requests for role holders: %w", err)
	}
	return res.RowsAffected()
}

// issueRoleVersions requests from employeeID every APPROVED version assigned
// to roleID that the employee has no open request for.
func issueRoleVersions(ctx context.Context, ex sqlx.ExecerContext, employeeID, roleID int64, issue Issue) (int64, error) {
	query := `
		INSERT INTO acknowledgement_requests (employee_id, policy_version_id, trigger_type, due_date)
		SELECT $1, rpa.policy_version_id, $3, $4
		FROM role_policy_assignments rpa
		JOIN policy_versions pv ON pv.id = rpa.policy_version_id AND pv.status = 'APPROVED'
		WHERE rpa.role_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM acknowledgement_requests ar
			WHERE ar.employee_id = $1
			  AND ar.policy_version_id = rpa.policy_version_id
			  AND ar.completed_at IS NULL
		  )
	`
	res, err := ex.ExecContext(ctx, query, employeeID, roleID, issue.Trigger, issue.Due)
	if err != nil {
		return 0, fmt.Errorf("failed to create requests for role versions: %w", err)
	}
	return res.RowsAffected()
}

// GetRequest retrieves a request whose employee belongs to the company, or nil
func (r *AcknowledgementRepository) GetRequest(ctx context.Context, companyID, id int64) (*models.AcknowledgementRequest, error) {
	var req models.AcknowledgementRequest
	query := `
		SELECT ar.id, ar.employee_id, ar.policy_version_id, ar.trigger_type, ar.due_date,
		       ar.completed_at, ar.escalated_at, ar.reminder_sent_at, ar.created_at, ar.updated_at
		FROM acknowledgement_requests ar
		JOIN employees e ON e.id = ar.employee_id
		WHERE ar.id = $1 AND e.company_id = $2
	`
	err := r.db.GetContext(ctx, &req, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acknowledgement request: %w", err)
	}
	return &req, nil
}

func detailsQuery(companyID int64) squirrel.SelectBuilder {
	return psql.Select(detailColumns...).
		From("acknowledgement_requests ar").
		Join("employees e ON e.id = ar.employee_id").
		Join("policy_versions pv ON pv.id = ar.policy_version_id").
		Join("policies p ON p.id = pv.policy_id").
		Where(squirrel.Eq{"e.company_id": companyID})
}

func (r *AcknowledgementRepository) selectDetails(ctx context.Context, q squirrel.SelectBuilder) ([]models.AcknowledgementRequestWithDetails, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build acknowledgement query: %w", err)
	}
	out := []models.AcknowledgementRequestWithDetails{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list acknowledgement requests: %w", err)
	}
	return out, nil
}

// ListRequests returns the company's requests matching filters, newest first
func (r *AcknowledgementRepository) ListRequests(ctx context.Context, companyID int64, f RequestFilters) ([]models.AcknowledgementRequestWithDetails, error) {
	q := detailsQuery(companyID)

	switch f.Status {
	case FilterPending:
		q = q.Where(squirrel.Eq{"ar.completed_at": nil}).Where(squirrel.GtOrEq{"ar.due_date": f.Now})
	case FilterCompleted:
		q = q.Where(squirrel.NotEq{"ar.completed_at": nil})
	case FilterOverdue:
		q = q.Where(squirrel.Eq{"ar.completed_at": nil}).Where(squirrel.Lt{"ar.due_date": f.Now})
	case FilterEscalated:
		q = q.Where(squirrel.NotEq{"ar.escalated_at": nil})
	}
	if f.EmployeeID != nil {
		q = q.Where(squirrel.Eq{"ar.employee_id": *f.EmployeeID})
	}
	if f.PolicyVersionID != nil {
		q = q.Where(squirrel.Eq{"ar.policy_version_id": *f.PolicyVersionID})
	}

	return r.selectDetails(ctx, q.OrderBy("ar.created_at DESC", "ar.id DESC"))
}

// ListOverdue returns incomplete requests past due at now, most overdue first
func (r *AcknowledgementRepository) ListOverdue(ctx context.Context, companyID int64, now time.Time) ([]models.AcknowledgementRequestWithDetails, error) {
	q := detailsQuery(companyID).
		Where(squirrel.Eq{"ar.completed_at": nil}).
		Where(squirrel.Lt{"ar.due_date": now}).
		OrderBy("ar.due_date ASC", "ar.id ASC")
	return r.selectDetails(ctx, q)
}

// GetRequestDetails retrieves a single request with details, or nil
func (r *AcknowledgementRepository) GetRequestDetails(ctx context.Context, companyID, id int64) (*models.AcknowledgementRequestWithDetails, error) {
	rows, err := r.selectDetails(ctx, detailsQuery(companyID).Where(squirrel.Eq{"ar.id": id}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CompleteRequest stamps completed_at and writes the acknowledgement event in
// one transaction. If the request was completed concurrently the update
// matches no rows and an AlreadyCompletedError is returned.
func (r *AcknowledgementRepository) CompleteRequest(ctx context.Context, requestID int64, at time.Time, ipAddress, userAgent *string) (*models.AcknowledgementEvent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var employeeID, versionID int64
	update := `
		UPDATE acknowledgement_requests
		SET completed_at = $1, updated_at = $1
		WHERE id = $2 AND completed_at IS NULL
		RETURNING employee_id, policy_version_id
	`
	err = tx.QueryRowxContext(ctx, update, at, requestID).Scan(&employeeID, &versionID)
	if err == sql.ErrNoRows {
		return nil, &compliance.AlreadyCompletedError{RequestID: requestID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete acknowledgement request: %w", err)
	}

	var ev models.AcknowledgementEvent
	insert := `
		INSERT INTO acknowledgement_events (request_id, employee_id, policy_version_id, acknowledged_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + eventColumns
	if err := tx.GetContext(ctx, &ev, insert, requestID, employeeID, versionID, at, ipAddress, userAgent); err != nil {
		if isUniqueViolation(err) {
			return nil, &compliance.AlreadyCompletedError{RequestID: requestID}
		}
		return nil, fmt.Errorf("failed to record acknowledgement event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acknowledgement: %w", err)
	}
	return &ev, nil
}

// ListEvents returns the completion events of a request
func (r *AcknowledgementRepository) ListEvents(ctx context.Context, requestID int64) ([]models.AcknowledgementEvent, error) {
	events := []models.AcknowledgementEvent{}
	query := `SELECT ` + eventColumns + ` FROM acknowledgement_events WHERE request_id = $1 ORDER BY acknowledged_at DESC`
	if err := r.db.SelectContext(ctx, &events, query, requestID); err != nil {
		return nil, fmt.Errorf("failed to list acknowledgement events: %w", err)
	}
	return events, nil
}

// Escalate records an escalation and stamps escalated_at in one transaction
func (r *AcknowledgementRepository) Escalate(ctx context.Context, requestID int64, escalatedTo string, at time.Time) (*models.AlertEscalation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var esc models.AlertEscalation
	insert := `
		INSERT INTO alert_escalations (request_id, escalated_to, escalated_at)
		VALUES ($1, $2, $3)
		RETURNING ` + escalationColumns
	if err := tx.GetContext(ctx, &esc, insert, requestID, escalatedTo, at); err != nil {
		return nil, fmt.Errorf("failed to create escalation: %w", err)
	}

	update := `UPDATE acknowledgement_requests SET escalated_at = $1, updated_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, update, at, requestID); err != nil {
		return nil, fmt.Errorf("failed to mark request escalated: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit escalation: %w", err)
	}
	return &esc, nil
}

// ListEscalations returns the company's escalations, most recent first
func (r *AcknowledgementRepository) ListEscalations(ctx context.Context, companyID int64) ([]models.AlertEscalation, error) {
	out := []models.AlertEscalation{}
	query := `
		SELECT ae.id, ae.request_id, ae.escalated_to, ae.escalated_at, ae.resolved_at, ae.created_at
		FROM alert_escalations ae
		JOIN acknowledgement_requests ar ON ar.id = ae.request_id
		JOIN employees e ON e.id = ar.employee_id
		WHERE e.company_id = $1
		ORDER BY ae.escalated_at DESC, ae.id DESC
	`
	if err := r.db.SelectContext(ctx, &out, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	return out, nil
}

// GetEscalation retrieves an escalation within the company, or nil
func (r *AcknowledgementRepository) GetEscalation(ctx context.Context, companyID, id int64) (*models.AlertEscalation, error) {
	var esc models.AlertEscalation
	query := `
		SELECT ae.id, ae.request_id, ae.escalated_to, ae.escalated_at, ae.resolved_at, ae.created_at
		FROM alert_escalations ae
		JOIN acknowledgement_requests ar ON ar.id = ae.request_id
		JOIN employees e ON e.id = ar.employee_id
		WHERE ae.id = $1 AND e.company_id = $2
	`
	err := r.db.GetContext(ctx, &esc, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	return &esc, nil
}

// ResolveEscalation stamps resolved_at if it is unset. Returns nil when the
// escalation was already resolved.
func (r *AcknowledgementRepository) ResolveEscalation(ctx context.Context, id int64, at time.Time) (*models.AlertEscalation, error) {
	var esc models.AlertEscalation
	query := `
		UPDATE alert_escalations SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL
		RETURNING ` + escalationColumns
	err := r.db.GetContext(ctx, &esc, query, at, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve escalation: %w", err)
	}
	return &esc, nil
}

// ---------------------------------------------------------------------------
// Background job queries (cross-company)
// ---------------------------------------------------------------------------

// CountOverdue returns the number of overdue requests across all companies
func (r *AcknowledgementRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM acknowledgement_requests WHERE completed_at IS NULL AND due_date < $1`
	if err := r.db.GetContext(ctx, &n, query, now); err != nil {
		return 0, fmt.Errorf("failed to count overdue requests: %w", err)
	}
	return n, nil
}

// ListUnescalatedOverdue returns open, never-escalated requests due before cutoff
func (r *AcknowledgementRepository) ListUnescalatedOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.AcknowledgementRequest, error) {
	out := []models.AcknowledgementRequest{}
	query := `
		SELECT ` + requestColumns + `
		FROM acknowledgement_requests
		WHERE completed_at IS NULL AND escalated_at IS NULL AND due_date < $1
		ORDER BY due_date ASC, id ASC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &out, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list unescalated overdue requests: %w", err)
	}
	return out, nil
}

// ListReminderTargets returns open requests of active employees due before
// windowEnd that have not been reminded yet.
func (r *AcknowledgementRepository) ListReminderTargets(ctx context.Context, windowEnd time.Time, limit int) ([]models.ReminderTarget, error) {
	out := []models.ReminderTarget{}
	query := `
		SELECT ar.id AS request_id, ar.due_date, e.email, e.first_name, p.title AS policy_title, pv.version
		FROM acknowledgement_requests ar
		JOIN employees e ON e.id = ar.employee_id AND e.is_active
		JOIN policy_versions pv ON pv.id = ar.policy_version_id
		JOIN policies p ON p.id = pv.policy_id
		WHERE ar.completed_at IS NULL AND ar.reminder_sent_at IS NULL AND ar.due_date < $1
		ORDER BY ar.due_date ASC, ar.id ASC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &out, query, windowEnd, limit); err != nil {
		return nil, fmt.Errorf("failed to list reminder targets: %w", err)
	}
	return out, nil
}

// MarkReminderSent records that a reminder email went out for a request
func (r *AcknowledgementRepository) MarkReminderSent(ctx context.Context, requestID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE acknowledgement_requests SET reminder_sent_at = $1 WHERE id = $2`, at, requestID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// CreatePeriodicRenewals issues PERIODIC requests to active employees whose
// most recent acknowledgement of an assigned APPROVED version completed before
// renewBefore and who have no open request for it.
func (r *AcknowledgementRepository) CreatePeriodicRenewals(ctx context.Context, renewBefore, due time.Time) (int64, error) {
	query := `
		INSERT INTO acknowledgement_requests (employee_id, policy_version_id, trigger_type, due_date)
		SELECT DISTINCT er.employee_id, rpa.policy_version_id, 'PERIODIC', $2::timestamptz
		FROM employee_roles er
		JOIN employees e ON e.id = er.employee_id AND e.is_active
		JOIN role_policy_assignments rpa ON rpa.role_id = er.role_id
		JOIN policy_versions pv ON pv.id = rpa.policy_version_id AND pv.status = 'APPROVED'
		WHERE (
			SELECT MAX(ar.completed_at) FROM acknowledgement_requests ar
			WHERE ar.employee_id = er.employee_id AND ar.policy_version_id = rpa.policy_version_id
		) < $1
		AND NOT EXISTS (
			SELECT 1 FROM acknowledgement_requests ar
			WHERE ar.employee_id = er.employee_id
			  AND ar.policy_version_id = rpa.policy_version_id
			  AND ar.completed_at IS NULL
		)
	`
	res, err := r.db.ExecContext(ctx, query, renewBefore, due)
	if err != nil {
		return 0, fmt.Errorf("failed to create periodic renewals: %w", err)
	}
	return res.RowsAffected()
}
