package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"

	"gorm.io/gorm"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.Account, error)
	FindByHandle(ctx context.Context, handle string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	UpdateNames(ctx context.Context, id uint, firstName, lastName string) error
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id uint, at time.Time) error
	UpdateAvatarKey(ctx context.Context, id uint, key string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

type GormAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) FindByID(ctx context.Context, id uint) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByHandle matches case-insensitively through the normalized handle key.
func (r *GormAccountRepository) FindByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return r.first(ctx, "handle_key = ?", domain.NormalizeHandle(handle))
}

func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "email = ?", domain.NormalizeEmail(email))
}

// Create returns ErrDuplicateAccount when the handle or email is taken.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	account.HandleKey = domain.NormalizeHandle(account.Handle)
	if account.Email != nil {
		email := domain.NormalizeEmail(*account.Email)
		account.Email = &email
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return err
	}
	return nil
}

func (r *GormAccountRepository) UpdateNames(ctx context.Context, id uint, firstName, lastName string) error {
	return r.update(ctx, id, map[string]any{"first_name": firstName, "last_name": lastName})
}

func (r *GormAccountRepository) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": passwordHash})
}

func (r *GormAccountRepository) MarkEmailVerified(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]any{"email_verified": true, "email_verified_at": at})
}

func (r *GormAccountRepository) UpdateAvatarKey(ctx context.Context, id uint, key string) error {
	return r.update(ctx, id, map[string]any{"avatar_key": key})
}

func (r *GormAccountRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]any{"last_login_at": at})
}

func (r *GormAccountRepository) first(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *GormAccountRepository) update(ctx context.Context, id uint, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
