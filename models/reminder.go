package models

import "time"

type ReminderType string

const (
	ReminderIncomplete1h  ReminderType = "incomplete_1h"
	ReminderIncomplete24h ReminderType = "incomplete_24h"
	ReminderIncomplete3d  ReminderType = "incomplete_3d"
	ReminderPromo         ReminderType = "promo_reminder"
)

// ReminderLog records that a reminder of a given type was delivered, so each
// type goes out at most once per participant.
type ReminderLog struct {
	UserID       int64        `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ReminderType ReminderType `gorm:"primaryKey" json:"reminder_type"`
	SentAt       time.Time    `gorm:"autoCreateTime" json:"sent_at"`
}
