package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kol-referral-bot/internal/models"
)

const (
	linkCachePrefix = "kol_link:"
	linkCacheTTL    = 24 * time.Hour
)

// LinkStore is the persistence surface for the invite-link registry.
type LinkStore interface {
	Create(ctx context.Context, link *models.KolLink) error
	// GetByURL resolves an invite-link URL to its KOL. Every join event hits
	// this, so lookups go through Redis first; cache failures fall back to
	// the database silently.
	GetByURL(ctx context.Context, url string) (*models.KolLink, error)
	List(ctx context.Context) ([]models.KolLink, error)
}

type linkStore struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.Logger
}

func NewLinkStore(db *gorm.DB, rdb *redis.Client, log *zap.Logger) LinkStore {
	return &linkStore{db: db, rdb: rdb, log: log}
}

func (s *linkStore) Create(ctx context.Context, link *models.KolLink) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return err
	}
	s.cacheSet(ctx, link)
	return nil
}

func (s *linkStore) GetByURL(ctx context.Context, url string) (*models.KolLink, error) {
	if kolName, err := s.rdb.Get(ctx, linkCachePrefix+url).Result(); err == nil {
		return &models.KolLink{InviteLink: url, KolName: kolName}, nil
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn("link cache read failed", zap.Error(err))
	}

	var link models.KolLink
	err := s.db.WithContext(ctx).
		Where("invite_link = ?", url).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, &link)
	return &link, nil
}

func (s *linkStore) List(ctx context.Context) ([]models.KolLink, error) {
	var links []models.KolLink
	err := s.db.WithContext(ctx).
		Order("kol_name, created_at").
		Find(&links).Error
	return links, err
}

func (s *linkStore) cacheSet(ctx context.Context, link *models.KolLink) {
	if err := s.rdb.Set(ctx, linkCachePrefix+link.InviteLink, link.KolName, linkCacheTTL).Err(); err != nil {
		s.log.Warn("link cache write failed", zap.Error(err))
	}
}
