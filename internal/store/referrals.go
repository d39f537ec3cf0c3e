package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kol-referral-bot/internal/models"
)

// ErrNotFound is returned when a lookup matches no row, or when a conditional
// write finds no row in the required state.
var ErrNotFound = errors.New("record not found")

// ReferralStore is the persistence surface for referral tracking rows.
type ReferralStore interface {
	// Upsert writes the row for ref.TelegramID, replacing any existing one.
	Upsert(ctx context.Context, ref *models.Referral) error
	Get(ctx context.Context, telegramID int64) (*models.Referral, error)
	// MarkVerified flips verified false→true for telegramID and returns the
	// updated row. The predicate `verified = false` is part of the UPDATE, so
	// under concurrent duplicate calls exactly one caller gets the row back;
	// the rest get ErrNotFound and must re-read to tell "already verified"
	// from "row gone".
	MarkVerified(ctx context.Context, telegramID int64, at time.Time) (*models.Referral, error)
	// Delete removes the row if present and reports how many rows went away.
	Delete(ctx context.Context, telegramID int64) (int64, error)
	// CountVerified counts verified rows, optionally filtered by a
	// case-insensitive KOL name match. Empty kolName means no filter.
	CountVerified(ctx context.Context, kolName string) (int64, error)
	// HasReferrals reports whether any row (verified or not) ever matched the
	// given KOL name.
	HasReferrals(ctx context.Context, kolName string) (bool, error)
}

type referralStore struct {
	db *gorm.DB
}

func NewReferralStore(db *gorm.DB) ReferralStore {
	return &referralStore{db: db}
}

func (s *referralStore) Upsert(ctx context.Context, ref *models.Referral) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			UpdateAll: true,
		}).
		Create(ref).Error
}

func (s *referralStore) Get(ctx context.Context, telegramID int64) (*models.Referral, error) {
	var ref models.Referral
	err := s.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (s *referralStore) MarkVerified(ctx context.Context, telegramID int64, at time.Time) (*models.Referral, error) {
	ref := models.Referral{TelegramID: telegramID}
	res := s.db.WithContext(ctx).
		Model(&ref).
		Clauses(clause.Returning{}).
		Where("verified = ?", false).
		Updates(map[string]interface{}{"verified": true, "verified_at": at})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &ref, nil
}

func (s *referralStore) Delete(ctx context.Context, telegramID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Delete(&models.Referral{})
	return res.RowsAffected, res.Error
}

func (s *referralStore) CountVerified(ctx context.Context, kolName string) (int64, error) {
	q := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("verified = ?", true)
	if kolName != "" {
		q = q.Where("kol_name ILIKE ?", kolName)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (s *referralStore) HasReferrals(ctx context.Context, kolName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("kol_name ILIKE ?", kolName).
		Count(&count).Error
	return count > 0, err
}
