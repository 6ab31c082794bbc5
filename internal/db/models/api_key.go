package models

import "time"

// APIKey is a machine credential bound to a single company. Only the bcrypt
// hash of the key is stored; the raw key is shown once at creation.
type APIKey struct {
	ID         int64      `db:"id" json:"id"`
	CompanyID  int64      `db:"company_id" json:"companyId"`
	Name       string     `db:"name" json:"name"`
	KeyHash    string     `db:"key_hash" json:"-"`
	KeyPrefix  string     `db:"key_prefix" json:"keyPrefix"` // first 10 chars, for display and lookup
	ExpiresAt  *time.Time `db:"expires_at" json:"expiresAt"`
	LastUsedAt *time.Time `db:"last_used_at" json:"lastUsedAt"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
