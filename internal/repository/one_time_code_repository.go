package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"

	"gorm.io/gorm"
)

type OneTimeCodeRepository interface {
	Create(ctx context.Context, code *domain.OneTimeCode) error
	DeleteUnused(ctx context.Context, email string, purpose domain.CodePurpose) (int64, error)
	FindLatestUnused(ctx context.Context, email string, purpose domain.CodePurpose) (*domain.OneTimeCode, error)
	Consume(ctx context.Context, id uint) error
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

type GormOneTimeCodeRepository struct {
	db *gorm.DB
}

func NewOneTimeCodeRepository(db *gorm.DB) OneTimeCodeRepository {
	return &GormOneTimeCodeRepository{db: db}
}

// Create returns ErrCodeConflict when (email, purpose) already has an unused
// code.
func (r *GormOneTimeCodeRepository) Create(ctx context.Context, code *domain.OneTimeCode) error {
	code.Email = domain.NormalizeEmail(code.Email)
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrCodeConflict
		}
		return err
	}
	return nil
}

func (r *GormOneTimeCodeRepository) DeleteUnused(ctx context.Context, email string, purpose domain.CodePurpose) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND used = ?", domain.NormalizeEmail(email), purpose, false).
		Delete(&domain.OneTimeCode{})
	return res.RowsAffected, res.Error
}

// FindLatestUnused ignores expiry so callers can tell an expired code from a
// missing one.
func (r *GormOneTimeCodeRepository) FindLatestUnused(ctx context.Context, email string, purpose domain.CodePurpose) (*domain.OneTimeCode, error) {
	var code domain.OneTimeCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND used = ?", domain.NormalizeEmail(email), purpose, false).
		Order("created_at DESC").Order("id DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// Consume flips used from false to true. It returns ErrCodeNotFound when the
// code is gone or was already consumed.
func (r *GormOneTimeCodeRepository) Consume(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&domain.OneTimeCode{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// PurgeStale deletes consumed codes and codes that expired before the cutoff.
func (r *GormOneTimeCodeRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("used = ? OR expires_at < ?", true, before).
		Delete(&domain.OneTimeCode{})
	return res.RowsAffected, res.Error
}
