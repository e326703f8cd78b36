package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/verification/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, record *domain.OneTimeToken) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, id string) (*domain.OneTimeToken, error) {
	var record domain.OneTimeToken
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) ConsumeOnce(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.OneTimeToken{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) SupersedeUnused(ctx context.Context, userID snowflake.ID, kind domain.Kind) error {
	return r.db.WithContext(ctx).
		Model(&domain.OneTimeToken{}).
		Where("user_id = ? AND kind = ? AND used = ?", userID, kind, false).
		Update("used", true).Error
}

func (r *repo) CountRequestedSince(ctx context.Context, userID snowflake.ID, kind domain.Kind, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OneTimeToken{}).
		Where("user_id = ? AND kind = ? AND requested_at > ?", userID, kind, since).
		Count(&count).Error
	return count, err
}
