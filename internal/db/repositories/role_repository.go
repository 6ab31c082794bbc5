// role_repository.go implements RoleRepository, providing role creation and the
// idempotent role-to-policy-version assignment with its request fan-out.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

const roleColumns = `id, company_id, name, description, created_at, updated_at`

// RoleRepository handles role and role assignment database operations
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// CreateRole inserts a role and fills in its generated fields
func (r *RoleRepository) CreateRole(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (company_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, role.CompanyID, role.Name, role.Description).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role owned by the company, or nil
func (r *RoleRepository) GetRole(ctx context.Context, companyID, id int64) (*models.Role, error) {
	var role models.Role
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1 AND company_id = $2`
	err := r.db.GetContext(ctx, &role, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns the company's roles, newest first
func (r *RoleRepository) ListRoles(ctx context.Context, companyID int64) ([]models.Role, error) {
	roles := []models.Role{}
	query := `SELECT ` + roleColumns + ` FROM roles WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &roles, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// AssignPolicy links a policy version to a role. Re-assigning an existing pair
// returns the existing row with created=false and writes nothing. When issue is
// set, a new link also requests the version from the role's active holders;
// both writes commit or roll back together.
func (r *RoleRepository) AssignPolicy(ctx context.Context, roleID, policyVersionID int64, issue *Issue) (*models.RolePolicyAssignment, bool, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var a models.RolePolicyAssignment
	insert := `
		INSERT INTO role_policy_assignments (role_id, policy_version_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, policy_version_id) DO NOTHING
		RETURNING id, role_id, policy_version_id, assigned_at
	`
	err = tx.GetContext(ctx, &a, insert, roleID, policyVersionID)
	if err == sql.ErrNoRows {
		existing := `
			SELECT id, role_id, policy_version_id, assigned_at
			FROM role_policy_assignments
			WHERE role_id = $1 AND policy_version_id = $2
		`
		if err := tx.GetContext(ctx, &a, existing, roleID, policyVersionID); err != nil {
			return nil, false, 0, fmt.Errorf("failed to load existing role assignment: %w", err)
		}
		return &a, false, 0, nil
	}
	if err != nil {
		return nil, false, 0, fmt.Errorf("failed to assign policy to role: %w", err)
	}

	var issued int64
	if issue != nil {
		if issued, err = issueToRoleHolders(ctx, tx, roleID, policyVersionID, *issue); err != nil {
			return nil, false, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, 0, fmt.Errorf("failed to commit role assignment: %w", err)
	}
	return &a, true, issued, nil
}

// ListAssignments returns a role's policy versions with their policies
func (r *RoleRepository) ListAssignments(ctx context.Context, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error) {
	out := []models.RolePolicyAssignmentWithDetails{}
	query := `
		SELECT
			rpa.id, rpa.role_id, rpa.policy_version_id, rpa.assigned_at,
			pv.id AS "policy_version.id",
			pv.policy_id AS "policy_version.policy_id",
			pv.version AS "policy_version.version",
			pv.content AS "policy_version.content",
			pv.status AS "policy_version.status",
			pv.config_data AS "policy_version.config_data",
			pv.approved_by AS "policy_version.approved_by",
			pv.approved_at AS "policy_version.approved_at",
			pv.created_by AS "policy_version.created_by",
			pv.created_at AS "policy_version.created_at",
			pv.updated_at AS "policy_version.updated_at",
			p.id AS "policy_version.policy.id",
			p.company_id AS "policy_version.policy.company_id",
			p.title AS "policy_version.policy.title",
			p.description AS "policy_version.policy.description",
			p.type AS "policy_version.policy.type",
			p.is_template AS "policy_version.policy.is_template",
			p.template_source AS "policy_version.policy.template_source",
			p.created_at AS "policy_version.policy.created_at",
			p.updated_at AS "policy_version.policy.updated_at"
		FROM role_policy_assignments rpa
		JOIN policy_versions pv ON pv.id = rpa.policy_version_id
		JOIN policies p ON p.id = pv.policy_id
		WHERE rpa.role_id = $1
		ORDER BY rpa.assigned_at DESC, rpa.id DESC
	`
	if err := r.db.SelectContext(ctx, &out, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	return out, nil
}
