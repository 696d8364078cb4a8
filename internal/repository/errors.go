package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
	ErrCodeNotFound     = errors.New("one-time code not found")
	ErrCodeConflict     = errors.New("an unused one-time code already exists")
	ErrSessionNotFound  = errors.New("session not found")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
