// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, creation, listing, deletion and last-used timestamp updates.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

const apiKeyColumns = `id, company_id, name, key_hash, key_prefix, expires_at, last_used_at, created_at`

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateAPIKey creates a new API key
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	query := `
		INSERT INTO api_keys (company_id, name, key_hash, key_prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, k.CompanyID, k.Name, k.KeyHash, k.KeyPrefix, k.ExpiresAt).
		Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetAPIKeysByPrefix returns every key sharing a display prefix; the caller
// compares bcrypt hashes to find the match.
func (r *APIKeyRepository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`
	if err := r.db.SelectContext(ctx, &keys, query, prefix); err != nil {
		return nil, fmt.Errorf("failed to look up api keys: %w", err)
	}
	return keys, nil
}

// ListAPIKeys returns a company's keys, newest first
func (r *APIKeyRepository) ListAPIKeys(ctx context.Context, companyID int64) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE company_id = $1 ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &keys, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// UpdateLastUsed stamps the key's last use
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("failed to update api key usage: %w", err)
	}
	return nil
}

// DeleteAPIKey removes a company's key, reporting whether it existed
func (r *APIKeyRepository) DeleteAPIKey(ctx context.Context, companyID, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete api key: %w", err)
	}
	return n > 0, nil
}
