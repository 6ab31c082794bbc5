// Package compliance holds the pure rules of the acknowledgement lifecycle:
// overdue detection, severity classification, version status transitions,
// latest-version selection and the compliance rate. Nothing here touches the
// database; callers pass the clock in explicitly.
package compliance

import (
	"math"
	"time"

	"github.com/policytracker/policy-tracker/internal/db/models"
)

// RequestStatus is the derived state of an acknowledgement request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusCompleted RequestStatus = "COMPLETED"
	StatusOverdue   RequestStatus = "OVERDUE"
)

// Severity grades how late an overdue request is.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

const (
	highAfterDays     = 7
	criticalAfterDays = 14
)

// IsOverdue reports whether a request with the given due date and completion
// time is overdue at now.
func IsOverdue(dueDate time.Time, completedAt *time.Time, now time.Time) bool {
	return completedAt == nil && dueDate.Before(now)
}

// DaysOverdue is the number of whole days since the due date, or 0 when the
// due date has not passed.
func DaysOverdue(dueDate, now time.Time) int {
	if !dueDate.Before(now) {
		return 0
	}
	return int(math.Floor(now.Sub(dueDate).Hours() / 24))
}

// ClassifySeverity grades a request. Requests that are not overdue are NONE;
// more than 14 days late is CRITICAL, more than 7 is HIGH, anything else
// overdue (including less than a day) is MEDIUM.
func ClassifySeverity(dueDate time.Time, completedAt *time.Time, now time.Time) Severity {
	if !IsOverdue(dueDate, completedAt, now) {
		return SeverityNone
	}
	switch days := DaysOverdue(dueDate, now); {
	case days > criticalAfterDays:
		return SeverityCritical
	case days > highAfterDays:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// StatusOf derives the lifecycle state of r at now.
func StatusOf(r *models.AcknowledgementRequest, now time.Time) RequestStatus {
	switch {
	case r.CompletedAt != nil:
		return StatusCompleted
	case IsOverdue(r.DueDate, r.CompletedAt, now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// Decorate fills the derived read-time fields of d.
func Decorate(d *models.AcknowledgementRequestWithDetails, now time.Time) {
	r := &d.AcknowledgementRequest
	d.Status = string(StatusOf(r, now))
	d.Escalated = r.EscalatedAt != nil
	d.Severity = string(ClassifySeverity(r.DueDate, r.CompletedAt, now))
	if d.Status == string(StatusOverdue) {
		d.DaysOverdue = DaysOverdue(r.DueDate, now)
	} else {
		d.DaysOverdue = 0
	}
}

// DueDate returns the due date for a request issued at from.
func DueDate(from time.Time, days int) time.Time {
	return from.AddDate(0, 0, days)
}

var statusRank = map[models.VersionStatus]int{
	models.VersionStatusDraft:      0,
	models.VersionStatusPending:    1,
	models.VersionStatusApproved:   2,
	models.VersionStatusDeprecated: 3,
}

// CanTransition reports whether a version may move from one status to another.
// Moves are forward only; skipping ahead is allowed, and re-approving an
// approved version is permitted so a new approver can be recorded.
func CanTransition(from, to models.VersionStatus) bool {
	f, okFrom := statusRank[from]
	t, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	if from == models.VersionStatusApproved && to == models.VersionStatusApproved {
		return true
	}
	return t > f
}

// LatestVersion returns the version with the greatest CreatedAt, breaking ties
// by the highest ID. It returns nil for an empty slice.
func LatestVersion(versions []models.PolicyVersion) *models.PolicyVersion {
	var latest *models.PolicyVersion
	for i := range versions {
		v := &versions[i]
		if latest == nil ||
			v.CreatedAt.After(latest.CreatedAt) ||
			(v.CreatedAt.Equal(latest.CreatedAt) && v.ID > latest.ID) {
			latest = v
		}
	}
	return latest
}

// ComplianceRate is completed / (completed + outstanding) as a percentage
// rounded to one decimal place. With nothing issued the rate is 100.
func ComplianceRate(completed, outstanding int) float64 {
	total := completed + outstanding
	if total <= 0 {
		return 100
	}
	rate := float64(completed) / float64(total) * 100
	return math.Round(rate*10) / 10
}

// MonthStart returns midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
