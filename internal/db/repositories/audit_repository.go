// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries with filtered, paginated listing.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

var auditColumns = []string{
	"id", "company_id", "actor", "action", "resource_type", "resource_id", "metadata", "ip_address", "created_at",
}

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	CompanyID    int64
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
}

func (f AuditFilters) apply(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	q = q.Where(squirrel.Eq{"company_id": f.CompanyID})
	if f.Action != nil {
		q = q.Where(squirrel.Eq{"action": *f.Action})
	}
	if f.ResourceType != nil {
		q = q.Where(squirrel.Eq{"resource_type": *f.ResourceType})
	}
	if f.StartDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.StartDate})
	}
	if f.EndDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.EndDate})
	}
	return q
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	var metadataJSON []byte
	if log.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, company_id, actor, action, resource_type, resource_id, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.CompanyID,
		log.Actor,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		metadataJSON,
		log.IPAddress,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs retrieves audit logs with optional filters and pagination.
// A limit of 0 returns every matching row.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	countSQL, countArgs, err := filters.apply(psql.Select("COUNT(*)").From("audit_logs")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	q := filters.apply(psql.Select(auditColumns...).From("audit_logs")).OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit)).Offset(uint64(offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

func scanAuditLog(rows *sql.Rows) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var metadataJSON []byte

	err := rows.Scan(
		&log.ID,
		&log.CompanyID,
		&log.Actor,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&metadataJSON,
		&log.IPAddress,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &log.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
	}
	return log, nil
}
