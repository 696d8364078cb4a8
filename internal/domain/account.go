package domain

import (
	"strings"
	"time"
)

// Account is a local user account. Telegram-bound accounts have no email
// and no password; email-signup accounts use the email as handle.
type Account struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Handle          string     `gorm:"size:191;not null" json:"handle"`
	HandleKey       string     `gorm:"size:191;not null;uniqueIndex:idx_accounts_handle_key" json:"-"`
	Email           *string    `gorm:"size:255;uniqueIndex:idx_accounts_email" json:"email,omitempty"`
	FirstName       string     `gorm:"size:150" json:"first_name"`
	LastName        string     `gorm:"size:150" json:"last_name"`
	PasswordHash    string     `gorm:"size:1024" json:"-"`
	EmailVerified   bool       `gorm:"not null;default:false" json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	AvatarKey       string     `gorm:"size:1024" json:"-"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (a *Account) HasUsablePassword() bool {
	return a.PasswordHash != ""
}

func (a *Account) EmailAddress() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}

// DisplayName prefers the first name, then the full name, then the handle.
func (a *Account) DisplayName() string {
	full := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if a.FirstName != "" {
		return a.FirstName
	}
	if full != "" {
		return full
	}
	return a.Handle
}

// NormalizeHandle returns the case-insensitive key used for uniqueness.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
