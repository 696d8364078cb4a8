package domain

import (
	"time"

	"gorm.io/gorm"
)

type CodePurpose string

const (
	CodePurposeSignup CodePurpose = "signup"
	CodePurposeReset  CodePurpose = "reset"
)

const DefaultCodeTTL = 15 * time.Minute

func (p CodePurpose) Valid() bool {
	return p == CodePurposeSignup || p == CodePurposeReset
}

// CodePayload is carried by a code until it is consumed. PasswordHash is an
// encoded argon2id hash, never a cleartext password.
type CodePayload struct {
	Name         string `json:"name,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// OneTimeCode rows are unique per (email, purpose) while unused, so two
// concurrent requests cannot both leave a live code behind.
type OneTimeCode struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Email     string      `gorm:"size:255;not null;index:idx_one_time_codes_email_purpose,priority:1;uniqueIndex:idx_one_time_codes_unused,priority:1,where:used = false" json:"email"`
	Purpose   CodePurpose `gorm:"size:16;not null;index:idx_one_time_codes_email_purpose,priority:2;uniqueIndex:idx_one_time_codes_unused,priority:2,where:used = false" json:"purpose"`
	CodeHash  string      `gorm:"size:64;not null" json:"-"`
	Payload   CodePayload `gorm:"type:text;serializer:json" json:"-"`
	CreatedAt time.Time   `gorm:"not null;index" json:"created_at"`
	ExpiresAt time.Time   `gorm:"not null;index" json:"expires_at"`
	Used      bool        `gorm:"not null;default:false" json:"used"`
}

func (c *OneTimeCode) BeforeCreate(*gorm.DB) error {
	c.ApplyDefaults(time.Now().UTC())
	return nil
}

// ApplyDefaults fills CreatedAt and ExpiresAt when they are unset.
func (c *OneTimeCode) ApplyDefaults(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = c.CreatedAt.Add(DefaultCodeTTL)
	}
}

func (c *OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *OneTimeCode) IsValid(now time.Time) bool {
	return !c.Used && !c.Expired(now)
}
