package models

import "time"

// Stage is the registration step a participant is currently at.
type Stage string

const (
	StageAwaitingEmail        Stage = "awaiting_email"
	StageAwaitingINN          Stage = "awaiting_inn"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	StageCompleted            Stage = "completed"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageAwaitingEmail, StageAwaitingINN, StageAwaitingConfirmation, StageCompleted:
		return true
	}
	return false
}

// Participant is one Telegram account going through the registration flow.
// PromoCode is non-nil exactly when Stage is StageCompleted.
type Participant struct {
	UserID           int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"` // Telegram user id
	TelegramUsername *string    `json:"telegram_username,omitempty"`
	Email            *string    `gorm:"index" json:"email,omitempty"`
	INN              *string    `gorm:"column:inn;uniqueIndex" json:"inn,omitempty"`
	PromoCode        *string    `gorm:"uniqueIndex" json:"promo_code,omitempty"`
	Stage            Stage      `gorm:"not null;default:'awaiting_email';index" json:"stage"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt      *time.Time `gorm:"index" json:"completed_at,omitempty"`
}

func (p *Participant) IsCompleted() bool {
	return p.Stage == StageCompleted
}

func (p *Participant) EmailValue() string {
	if p.Email == nil {
		return ""
	}
	return *p.Email
}

func (p *Participant) INNValue() string {
	if p.INN == nil {
		return ""
	}
	return *p.INN
}

func (p *Participant) PromoCodeValue() string {
	if p.PromoCode == nil {
		return ""
	}
	return *p.PromoCode
}

func (p *Participant) Handle() string {
	if p.TelegramUsername == nil {
		return ""
	}
	return *p.TelegramUsername
}

// ParticipantUpdate lists the fields a ledger update may change. Nil fields are left alone.
type ParticipantUpdate struct {
	TelegramUsername *string
	Email            *string
	Stage            *Stage
}

// Empty reports whether the update changes nothing.
func (u ParticipantUpdate) Empty() bool {
	return u.TelegramUsername == nil && u.Email == nil && u.Stage == nil
}
