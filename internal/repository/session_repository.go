package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"

	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error)
	Touch(ctx context.Context, id uint, at time.Time) error
	RevokeByHash(ctx context.Context, hash string, at time.Time) error
	RevokeByAccountID(ctx context.Context, accountID uint, at time.Time) error
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *GormSessionRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", hash, now).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) Touch(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).Update("last_seen_at", at).Error
}

func (r *GormSessionRepository) RevokeByHash(ctx context.Context, hash string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", at).Error
}

func (r *GormSessionRepository) RevokeByAccountID(ctx context.Context, accountID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", at).Error
}

// PurgeStale deletes sessions that expired or were revoked before the cutoff.
func (r *GormSessionRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", before, before).
		Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}
