package models

import "time"

// TemplateUpgrade notes that a newer template version exists for a policy type.
type TemplateUpgrade struct {
	ID                 int64      `db:"id" json:"id"`
	CompanyID          int64      `db:"company_id" json:"companyId"`
	PolicyType         PolicyType `db:"policy_type" json:"policyType"`
	CurrentVersion     string     `db:"current_version" json:"currentVersion"`
	AvailableVersion   string     `db:"available_version" json:"availableVersion"`
	NotifiedAt         time.Time  `db:"notified_at" json:"notifiedAt"`
	UpgradeCompletedAt *time.Time `db:"upgrade_completed_at" json:"upgradeCompletedAt"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
}
