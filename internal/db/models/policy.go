// Package models - policy.go defines policies, their immutable versions and the
// enumerations that constrain them.
package models

import "time"

// PolicyType classifies a policy by SOC 2 control area.
type PolicyType string

const (
	PolicyTypeInformationSecurity PolicyType = "INFORMATION_SECURITY"
	PolicyTypeAcceptableUse       PolicyType = "ACCEPTABLE_USE"
	PolicyTypeCrypto              PolicyType = "CRYPTO"
	PolicyTypeDataProtection      PolicyType = "DATA_PROTECTION"
	PolicyTypeIncidentResponse    PolicyType = "INCIDENT_RESPONSE"
	PolicyTypeCustom              PolicyType = "CUSTOM"
)

// Valid reports whether t is one of the known policy types.
func (t PolicyType) Valid() bool {
	switch t {
	case PolicyTypeInformationSecurity, PolicyTypeAcceptableUse, PolicyTypeCrypto,
		PolicyTypeDataProtection, PolicyTypeIncidentResponse, PolicyTypeCustom:
		return true
	}
	return false
}

// TemplateSource records where a template policy came from.
type TemplateSource string

const (
	TemplateSourceSprinto TemplateSource = "SPRINTO"
	TemplateSourceCustom  TemplateSource = "CUSTOM"
)

// Valid reports whether s is a known template source.
func (s TemplateSource) Valid() bool {
	return s == TemplateSourceSprinto || s == TemplateSourceCustom
}

// VersionStatus is the approval state of a policy version. It only moves
// forward: DRAFT -> PENDING -> APPROVED -> DEPRECATED.
type VersionStatus string

const (
	VersionStatusDraft      VersionStatus = "DRAFT"
	VersionStatusPending    VersionStatus = "PENDING"
	VersionStatusApproved   VersionStatus = "APPROVED"
	VersionStatusDeprecated VersionStatus = "DEPRECATED"
)

// Policy is a named document owned by a company.
type Policy struct {
	ID             int64           `db:"id" json:"id"`
	CompanyID      int64           `db:"company_id" json:"companyId"`
	Title          string          `db:"title" json:"title"`
	Description    *string         `db:"description" json:"description"`
	Type           PolicyType      `db:"type" json:"type"`
	IsTemplate     bool            `db:"is_template" json:"isTemplate"`
	TemplateSource *TemplateSource `db:"template_source" json:"templateSource"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// PolicyVersion is one revision of a policy's content.
type PolicyVersion struct {
	ID         int64         `db:"id" json:"id"`
	PolicyID   int64         `db:"policy_id" json:"policyId"`
	Version    string        `db:"version" json:"version"`
	Content    string        `db:"content" json:"content"`
	Status     VersionStatus `db:"status" json:"status"`
	ConfigData JSONB         `db:"config_data" json:"configData"`
	ApprovedBy *int64        `db:"approved_by" json:"approvedBy"`
	ApprovedAt *time.Time    `db:"approved_at" json:"approvedAt"`
	CreatedBy  int64         `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updatedAt"`
}

// PolicyWithVersions is a policy with every version and the latest one picked out.
type PolicyWithVersions struct {
	Policy
	Versions      []PolicyVersion `json:"versions"`
	LatestVersion *PolicyVersion  `json:"latestVersion"`
}

// PolicyVersionWithPolicy nests the owning policy under a version.
type PolicyVersionWithPolicy struct {
	PolicyVersion
	Policy Policy `db:"policy" json:"policy"`
}
