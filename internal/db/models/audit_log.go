// Package models - audit_log.go defines the AuditLog model recording who changed
// what, when, and from where.
package models

import "time"

// AuditLog represents one recorded mutation
type AuditLog struct {
	ID           string                 `json:"id"`
	CompanyID    *int64                 `json:"companyId"`
	Actor        *string                `json:"actor"`        // "jwt:<subject>", "apikey:<prefix>", "header"
	Action       string                 `json:"action"`       // "policy.created", "acknowledgement.completed"
	ResourceType *string                `json:"resourceType"` // "policy", "policy_version", "acknowledgement_request"
	ResourceID   *string                `json:"resourceId"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    *string                `json:"ipAddress"`
	CreatedAt    time.Time              `json:"createdAt"`
}
