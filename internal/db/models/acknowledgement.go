// Package models - acknowledgement.go defines acknowledgement requests, the
// immutable events that complete them, and escalations raised when they run late.
package models

import "time"

// TriggerType records why an acknowledgement request was issued.
type TriggerType string

const (
	TriggerOnboard  TriggerType = "ONBOARD"
	TriggerPeriodic TriggerType = "PERIODIC"
	TriggerManual   TriggerType = "MANUAL"
)

// Valid reports whether t is a known trigger.
func (t TriggerType) Valid() bool {
	return t == TriggerOnboard || t == TriggerPeriodic || t == TriggerManual
}

// AcknowledgementRequest asks one employee to acknowledge one policy version
// by a due date. CompletedAt and EscalatedAt are never cleared once set.
type AcknowledgementRequest struct {
	ID              int64       `db:"id" json:"id"`
	EmployeeID      int64       `db:"employee_id" json:"employeeId"`
	PolicyVersionID int64       `db:"policy_version_id" json:"policyVersionId"`
	TriggerType     TriggerType `db:"trigger_type" json:"triggerType"`
	DueDate         time.Time   `db:"due_date" json:"dueDate"`
	CompletedAt     *time.Time  `db:"completed_at" json:"completedAt"`
	EscalatedAt     *time.Time  `db:"escalated_at" json:"escalatedAt"`
	ReminderSentAt  *time.Time  `db:"reminder_sent_at" json:"reminderSentAt,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// AcknowledgementRequestWithDetails is the read model returned by the API. The
// derived fields are computed at read time and never stored.
type AcknowledgementRequestWithDetails struct {
	AcknowledgementRequest
	Employee      Employee                `db:"employee" json:"employee"`
	PolicyVersion PolicyVersionWithPolicy `db:"policy_version" json:"policyVersion"`

	Status      string `db:"-" json:"status"`
	Escalated   bool   `db:"-" json:"escalated"`
	Severity    string `db:"-" json:"severity"`
	DaysOverdue int    `db:"-" json:"daysOverdue"`
}

// AcknowledgementEvent is the audit record written when a request is completed.
type AcknowledgementEvent struct {
	ID              int64     `db:"id" json:"id"`
	RequestID       int64     `db:"request_id" json:"requestId"`
	EmployeeID      int64     `db:"employee_id" json:"employeeId"`
	PolicyVersionID int64     `db:"policy_version_id" json:"policyVersionId"`
	AcknowledgedAt  time.Time `db:"acknowledged_at" json:"acknowledgedAt"`
	IPAddress       *string   `db:"ip_address" json:"ipAddress"`
	UserAgent       *string   `db:"user_agent" json:"userAgent"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// AlertEscalation records that an overdue request was raised to someone.
type AlertEscalation struct {
	ID          int64      `db:"id" json:"id"`
	RequestID   int64      `db:"request_id" json:"requestId"`
	EscalatedTo string     `db:"escalated_to" json:"escalatedTo"`
	EscalatedAt time.Time  `db:"escalated_at" json:"escalatedAt"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolvedAt"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// ReminderTarget is an open request joined with the fields a reminder email needs.
type ReminderTarget struct {
	RequestID   int64     `db:"request_id"`
	DueDate     time.Time `db:"due_date"`
	Email       string    `db:"email"`
	FirstName   string    `db:"first_name"`
	PolicyTitle string    `db:"policy_title"`
	Version     string    `db:"version"`
}
