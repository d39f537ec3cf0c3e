package models

import (
	"time"
)

// KolLink maps a Telegram-issued invite link URL to the KOL who owns it.
// Rows are written once by /createlink and never mutated.
type KolLink struct {
	InviteLink string `gorm:"primaryKey;size:512"`
	KolName    string `gorm:"size:255;index;not null"`
	CreatedAt  time.Time
}

func (KolLink) TableName() string {
	return "kol_links"
}
