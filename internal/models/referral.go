package models

import (
	"time"
)

// Referral is the tracking row for a single group member who joined through a
// KOL invite link. TelegramID is the primary key, so a re-join overwrites the
// previous row instead of duplicating it.
type Referral struct {
	TelegramID  int64  `gorm:"primaryKey"`
	KolName     string `gorm:"size:255;index"`
	DisplayName string `gorm:"size:255"`
	JoinedAt    time.Time
	Verified    bool       `gorm:"default:false"`
	VerifiedAt  *time.Time // nil until the user presses the verify button
}

func (Referral) TableName() string {
	return "referrals"
}
