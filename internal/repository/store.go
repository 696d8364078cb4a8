package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that must share a transaction.
type Store interface {
	Accounts() AccountRepository
	Codes() OneTimeCodeRepository
	// WithinTransaction runs fn against a transactional Store. Returning an
	// error from fn rolls back every write made through it.
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Accounts() AccountRepository { return NewAccountRepository(s.db) }

func (s *GormStore) Codes() OneTimeCodeRepository { return NewOneTimeCodeRepository(s.db) }

func (s *GormStore) WithinTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
