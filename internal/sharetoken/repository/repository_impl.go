package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/sharetoken/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) RevokeActive(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ShareToken{}).
		Where("invoice_id = ? AND revoked_at IS NULL", invoiceID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *domain.ShareToken) error {
	return db.WithContext(ctx).Create(token).Error
}

// FindActiveByHash compares expiry against now from the caller's clock, never the database's.
func (r *repo) FindActiveByHash(ctx context.Context, db *gorm.DB, hash string, now time.Time) (*domain.ShareToken, error) {
	var row domain.ShareToken
	err := db.WithContext(ctx).
		Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", hash, now).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
