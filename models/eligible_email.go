package models

import "time"

// EligibleEmail mirrors one row of the externally maintained eligibility sheet.
// Only the sheets sync worker writes this table.
type EligibleEmail struct {
	Email    string    `gorm:"primaryKey" json:"email"` // normalized (case-folded, trimmed)
	SyncedAt time.Time `gorm:"not null" json:"synced_at"`
}
