package database

import (
	"github.com/ayolclub/travel-auth/internal/domain"

	"gorm.io/gorm"
)

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&domain.Account{},
		&domain.OneTimeCode{},
		&domain.Session{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
