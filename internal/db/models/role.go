package models

import "time"

// Role groups employees that must acknowledge the same policy versions.
type Role struct {
	ID          int64     `db:"id" json:"id"`
	CompanyID   int64     `db:"company_id" json:"companyId"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// RolePolicyAssignment links a role to a policy version.
type RolePolicyAssignment struct {
	ID              int64     `db:"id" json:"id"`
	RoleID          int64     `db:"role_id" json:"roleId"`
	PolicyVersionID int64     `db:"policy_version_id" json:"policyVersionId"`
	AssignedAt      time.Time `db:"assigned_at" json:"assignedAt"`
}

// RolePolicyAssignmentWithDetails carries the assigned version and its policy.
type RolePolicyAssignmentWithDetails struct {
	RolePolicyAssignment
	PolicyVersion PolicyVersionWithPolicy `db:"policy_version" json:"policyVersion"`
}
