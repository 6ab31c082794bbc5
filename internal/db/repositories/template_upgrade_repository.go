// template_upgrade_repository.go implements TemplateUpgradeRepository, tracking
// notices that a newer template exists for one of a company's policy types.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

const templateUpgradeColumns = `id, company_id, policy_type, current_version, available_version, notified_at, upgrade_completed_at, created_at`

// TemplateUpgradeRepository handles template upgrade database operations
type TemplateUpgradeRepository struct {
	db *sqlx.DB
}

// NewTemplateUpgradeRepository creates a new template upgrade repository
func NewTemplateUpgradeRepository(db *sqlx.DB) *TemplateUpgradeRepository {
	return &TemplateUpgradeRepository{db: db}
}

// Create inserts a template upgrade notice
func (r *TemplateUpgradeRepository) Create(ctx context.Context, u *models.TemplateUpgrade) error {
	query := `
		INSERT INTO template_upgrades (company_id, policy_type, current_version, available_version)
		VALUES ($1, $2, $3, $4)
		RETURNING id, notified_at, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, u.CompanyID, u.PolicyType, u.CurrentVersion, u.AvailableVersion).
		Scan(&u.ID, &u.NotifiedAt, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template upgrade: %w", err)
	}
	return nil
}

// List returns the company's template upgrades, newest first
func (r *TemplateUpgradeRepository) List(ctx context.Context, companyID int64) ([]models.TemplateUpgrade, error) {
	out := []models.TemplateUpgrade{}
	query := `SELECT ` + templateUpgradeColumns + ` FROM template_upgrades WHERE company_id = $1 ORDER BY notified_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &out, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list template upgrades: %w", err)
	}
	return out, nil
}

// Get retrieves a template upgrade within the company, or nil
func (r *TemplateUpgradeRepository) Get(ctx context.Context, companyID, id int64) (*models.TemplateUpgrade, error) {
	var u models.TemplateUpgrade
	query := `SELECT ` + templateUpgradeColumns + ` FROM template_upgrades WHERE id = $1 AND company_id = $2`
	err := r.db.GetContext(ctx, &u, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template upgrade: %w", err)
	}
	return &u, nil
}

// Complete stamps upgrade_completed_at if unset, returning nil otherwise
func (r *TemplateUpgradeRepository) Complete(ctx context.Context, companyID, id int64, at time.Time) (*models.TemplateUpgrade, error) {
	var u models.TemplateUpgrade
	query := `
		UPDATE template_upgrades SET upgrade_completed_at = $1
		WHERE id = $2 AND company_id = $3 AND upgrade_completed_at IS NULL
		RETURNING ` + templateUpgradeColumns
	err := r.db.GetContext(ctx, &u, query, at, id, companyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete template upgrade: %w", err)
	}
	return &u, nil
}
