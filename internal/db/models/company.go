// Package models defines the persisted types of the policy tracker.
// Each type corresponds to a database table and carries `db` tags for sqlx row
// scanning and camelCase `json` tags for the HTTP API.
package models

import "time"

// Company is the tenant every other record is scoped to.
type Company struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
