package store

import (
	"context"
	"time"

	"clinic-portal-server/internal/models"

	"gorm.io/gorm"
)

type refreshTokenStore struct {
	db *gorm.DB
}

// NewRefreshTokenStore returns a RefreshTokenStore backed by gorm.
func NewRefreshTokenStore(db *gorm.DB) RefreshTokenStore {
	return &refreshTokenStore{db: db}
}

func (s *refreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	return translate(s.db.WithContext(ctx).Create(token).Error)
}

func (s *refreshTokenStore) FindUsable(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	var stored models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_revoked = ? AND expires_at > ?", token, false, now).
		First(&stored).Error
	if err != nil {
		return nil, translate(err)
	}
	return &stored, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token string) error {
	result := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return translate(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStale
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error)
}

func (s *refreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ? OR is_revoked = ?", now, true).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return result.RowsAffected, nil
}
