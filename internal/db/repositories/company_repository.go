// company_repository.go implements CompanyRepository, providing creation and
// lookup of tenant companies.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

// CompanyRepository handles company database operations
type CompanyRepository struct {
	db *sqlx.DB
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sqlx.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a company and fills in its generated fields
func (r *CompanyRepository) Create(ctx context.Context, c *models.Company) error {
	query := `
		INSERT INTO companies (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query, c.Name).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetByID retrieves a company by ID, returning nil when it does not exist
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	var c models.Company
	err := r.db.GetContext(ctx, &c, `SELECT id, name, created_at, updated_at FROM companies WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}
