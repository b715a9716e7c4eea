package models

import "time"

type CodeStatus string

const (
	CodeAvailable CodeStatus = "available"
	CodeClaimed   CodeStatus = "claimed"
	// CodeRetired was delivered to a participant who was later deleted. It
	// stays out of the pool until an operator releases it explicitly.
	CodeRetired CodeStatus = "retired"
)

// PromoCode is one single-use discount code of the shared pool.
// Position is the row the code was imported from and defines claim order.
type PromoCode struct {
	ID          string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Code        string     `gorm:"uniqueIndex;not null" json:"code"`
	Position    int        `gorm:"index;not null" json:"position"`
	Status      CodeStatus `gorm:"not null;default:'available';index" json:"status"`
	ClaimedBy   *int64     `gorm:"uniqueIndex" json:"claimed_by,omitempty"` // participant user id
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	SheetSynced bool       `gorm:"default:false" json:"sheet_synced"` // claimed status written back to the sheet
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *PromoCode) IsAvailable() bool {
	return c.Status == CodeAvailable
}
