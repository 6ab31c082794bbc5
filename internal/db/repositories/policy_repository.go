// policy_repository.go implements PolicyRepository, providing queries for
// policies and their versions, including the conditional status updates that
// keep version transitions forward-only.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

const policyColumns = `id, company_id, title, description, type, is_template, template_source, created_at, updated_at`

const versionColumns = `pv.id, pv.policy_id, pv.version, pv.content, pv.status, pv.config_data,
	pv.approved_by, pv.approved_at, pv.created_by, pv.created_at, pv.updated_at`

// PolicyRepository handles policy and policy version database operations
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// CreatePolicy inserts a policy and fills in its generated fields
func (r *PolicyRepository) CreatePolicy(ctx context.Context, p *models.Policy) error {
	query := `
		INSERT INTO policies (company_id, title, description, type, is_template, template_source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.CompanyID, p.Title, p.Description, p.Type, p.IsTemplate, p.TemplateSource,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy owned by the company, or nil
func (r *PolicyRepository) GetPolicy(ctx context.Context, companyID, id int64) (*models.Policy, error) {
	var p models.Policy
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1 AND company_id = $2`
	err := r.db.GetContext(ctx, &p, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return &p, nil
}

// ListPolicies returns the company's policies, newest first
func (r *PolicyRepository) ListPolicies(ctx context.Context, companyID int64) ([]models.Policy, error) {
	policies := []models.Policy{}
	query := `SELECT ` + policyColumns + ` FROM policies WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &policies, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// UpdatePolicy writes the mutable fields of p
func (r *PolicyRepository) UpdatePolicy(ctx context.Context, p *models.Policy) error {
	query := `
		UPDATE policies
		SET title = $1, description = $2, type = $3, is_template = $4, template_source = $5, updated_at = NOW()
		WHERE id = $6 AND company_id = $7
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.Title, p.Description, p.Type, p.IsTemplate, p.TemplateSource, p.ID, p.CompanyID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	return nil
}

// CreateVersion inserts a policy version and fills in its generated fields
func (r *PolicyRepository) CreateVersion(ctx context.Context, v *models.PolicyVersion) error {
	query := `
		INSERT INTO policy_versions (policy_id, version, content, status, config_data, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		v.PolicyID, v.Version, v.Content, v.Status, v.ConfigData, v.CreatedBy,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create policy version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version whose policy belongs to the company, or nil
func (r *PolicyRepository) GetVersion(ctx context.Context, companyID, id int64) (*models.PolicyVersion, error) {
	var v models.PolicyVersion
	query := `
		SELECT ` + versionColumns + `
		FROM policy_versions pv
		JOIN policies p ON p.id = pv.policy_id
		WHERE pv.id = $1 AND p.company_id = $2
	`
	err := r.db.GetContext(ctx, &v, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy version: %w", err)
	}
	return &v, nil
}

// ListVersions returns every version of a policy, newest first
func (r *PolicyRepository) ListVersions(ctx context.Context, policyID int64) ([]models.PolicyVersion, error) {
	return r.ListVersionsForPolicies(ctx, []int64{policyID})
}

// ListVersionsForPolicies returns the versions of several policies in one query
func (r *PolicyRepository) ListVersionsForPolicies(ctx context.Context, policyIDs []int64) ([]models.PolicyVersion, error) {
	versions := []models.PolicyVersion{}
	if len(policyIDs) == 0 {
		return versions, nil
	}
	query := `
		SELECT ` + versionColumns + `
		FROM policy_versions pv
		WHERE pv.policy_id = ANY($1)
		ORDER BY pv.created_at DESC, pv.id DESC
	`
	if err := r.db.SelectContext(ctx, &versions, query, pq.Array(policyIDs)); err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	return versions, nil
}

// ApproveVersion marks a version APPROVED unless it is DEPRECATED. It returns
// nil when no row matched, either because the version does not exist in the
// company or because it is deprecated.
func (r *PolicyRepository) ApproveVersion(ctx context.Context, companyID, id, approvedBy int64, at time.Time) (*models.PolicyVersion, error) {
	query := `
		UPDATE policy_versions pv
		SET status = 'APPROVED', approved_by = $1, approved_at = $2, updated_at = $2
		FROM policies p
		WHERE pv.id = $3 AND p.id = pv.policy_id AND p.company_id = $4
		  AND pv.status <> 'DEPRECATED'
		RETURNING ` + versionColumns
	return r.updateVersion(ctx, query, approvedBy, at, id, companyID)
}

// SetVersionStatus moves a version to status when its current status is one of
// from. It returns nil when no row matched.
func (r *PolicyRepository) SetVersionStatus(ctx context.Context, companyID, id int64, status models.VersionStatus, from []models.VersionStatus, at time.Time) (*models.PolicyVersion, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	query := `
		UPDATE policy_versions pv
		SET status = $1, updated_at = $2
		FROM policies p
		WHERE pv.id = $3 AND p.id = pv.policy_id AND p.company_id = $4
		  AND pv.status = ANY($5)
		RETURNING ` + versionColumns
	return r.updateVersion(ctx, query, status, at, id, companyID, pq.Array(allowed))
}

func (r *PolicyRepository) updateVersion(ctx context.Context, query string, args ...interface{}) (*models.PolicyVersion, error) {
	var v models.PolicyVersion
	err := r.db.GetContext(ctx, &v, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update policy version: %w", err)
	}
	return &v, nil
}
