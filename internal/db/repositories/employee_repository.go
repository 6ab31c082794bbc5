// employee_repository.go implements EmployeeRepository, providing employee
// records, their role memberships and activation state.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

const employeeColumns = `id, company_id, email, first_name, last_name, is_active, start_date, created_at, updated_at`

// EmployeeRepository handles employee database operations
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// CreateEmployee inserts an employee. A duplicate email yields a ConflictError.
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, e *models.Employee) error {
	query := `
		INSERT INTO employees (company_id, email, first_name, last_name, is_active, start_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		e.CompanyID, e.Email, e.FirstName, e.LastName, e.IsActive, e.StartDate,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return &compliance.ConflictError{Message: fmt.Sprintf("an employee with email %s already exists", e.Email)}
	}
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee of the company, or nil
func (r *EmployeeRepository) GetEmployee(ctx context.Context, companyID, id int64) (*models.Employee, error) {
	var e models.Employee
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1 AND company_id = $2`
	err := r.db.GetContext(ctx, &e, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &e, nil
}

// ListEmployees returns the company's employees, newest first
func (r *EmployeeRepository) ListEmployees(ctx context.Context, companyID int64) ([]models.Employee, error) {
	employees := []models.Employee{}
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &employees, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, nil
}

// SetActive toggles an employee's active flag, returning nil if not found
func (r *EmployeeRepository) SetActive(ctx context.Context, companyID, id int64, active bool) (*models.Employee, error) {
	var e models.Employee
	query := `
		UPDATE employees SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND company_id = $3
		RETURNING ` + employeeColumns
	err := r.db.GetContext(ctx, &e, query, active, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update employee: %w", err)
	}
	return &e, nil
}

// ListRolesForEmployees returns role memberships for a set of employees
func (r *EmployeeRepository) ListRolesForEmployees(ctx context.Context, employeeIDs []int64) ([]models.EmployeeRoleWithRole, error) {
	out := []models.EmployeeRoleWithRole{}
	if len(employeeIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT
			er.id, er.employee_id, er.role_id, er.assigned_at,
			r.id AS "role.id",
			r.company_id AS "role.company_id",
			r.name AS "role.name",
			r.description AS "role.description",
			r.created_at AS "role.created_at",
			r.updated_at AS "role.updated_at"
		FROM employee_roles er
		JOIN roles r ON r.id = er.role_id
		WHERE er.employee_id = ANY($1)
		ORDER BY er.assigned_at, er.id
	`
	if err := r.db.SelectContext(ctx, &out, query, pq.Array(employeeIDs)); err != nil {
		return nil, fmt.Errorf("failed to list employee roles: %w", err)
	}
	return out, nil
}

// AssignRole gives an employee a role. Re-assigning returns the existing row
// with created=false. When issue is set, a new link also requests every
// APPROVED version assigned to the role, in the same transaction.
func (r *EmployeeRepository) AssignRole(ctx context.Context, employeeID, roleID int64, issue *Issue) (*models.EmployeeRole, bool, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var er models.EmployeeRole
	insert := `
		INSERT INTO employee_roles (employee_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (employee_id, role_id) DO NOTHING
		RETURNING id, employee_id, role_id, assigned_at
	`
	err = tx.GetContext(ctx, &er, insert, employeeID, roleID)
	if err == sql.ErrNoRows {
		existing := `
			SELECT id, employee_id, role_id, assigned_at
			FROM employee_roles
			WHERE employee_id = $1 AND role_id = $2
		`
		if err := tx.GetContext(ctx, &er, existing, employeeID, roleID); err != nil {
			return nil, false, 0, fmt.Errorf("failed to load existing employee role: %w", err)
		}
		return &er, false, 0, nil
	}
	if err != nil {
		return nil, false, 0, fmt.Errorf("failed to assign role: %w", err)
	}

	var issued int64
	if issue != nil {
		if issued, err = issueRoleVersions(ctx, tx, employeeID, roleID, *issue); err != nil {
			return nil, false, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, 0, fmt.Errorf("failed to commit employee role: %w", err)
	}
	return &er, true, issued, nil
}
