// Package reports builds the exports auditors ask for: the audit trail as
// CSV, a compliance workbook as XLSX, and evidence archives of that workbook
// written to the configured storage backend.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/services"
)

// AuditSource reads the audit trail.
type AuditSource interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AckSource reads acknowledgement requests and escalations.
type AckSource interface {
	ListRequests(ctx context.Context, companyID int64, in services.ListRequestsInput) ([]models.AcknowledgementRequestWithDetails, error)
	ListEscalations(ctx context.Context, companyID int64) ([]models.AlertEscalation, error)
}

// Range bounds an export. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside r, both ends inclusive.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// Validate rejects an inverted range.
func (r Range) Validate() error {
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return fmt.Errorf("range end %s is before start %s", r.To.Format(time.RFC3339), r.From.Format(time.RFC3339))
	}
	return nil
}

// AuditEvent is one row of the audit export.
type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityName string    `json:"entityName"`
	User       string    `json:"user"`
	IPAddress  string    `json:"ipAddress"`
	Details    string    `json:"details"`
}

// Exporter assembles report data for one company at a time.
type Exporter struct {
	audit AuditSource
	acks  AckSource
}

func NewExporter(audit AuditSource, acks AckSource) *Exporter {
	return &Exporter{audit: audit, acks: acks}
}

// AuditEvents returns the company's audit trail in r, newest first.
func (e *Exporter) AuditEvents(ctx context.Context, companyID int64, r Range) ([]AuditEvent, error) {
	logs, _, err := e.audit.ListAuditLogs(ctx, repositories.AuditFilters{
		CompanyID: companyID,
		StartDate: r.From,
		EndDate:   r.To,
	}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	events := make([]AuditEvent, 0, len(logs))
	for _, l := range logs {
		events = append(events, toEvent(l))
	}
	return events, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toEvent(l *models.AuditLog) AuditEvent {
	return AuditEvent{
		Timestamp:  l.CreatedAt.UTC(),
		Action:     l.Action,
		EntityType: deref(l.ResourceType),
		EntityName: deref(l.ResourceID),
		User:       deref(l.Actor),
		IPAddress:  deref(l.IPAddress),
		Details:    details(l.Metadata),
	}
}

// details flattens audit metadata into "key=value" pairs in key order.
func details(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, " ")
}
