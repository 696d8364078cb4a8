package domain

import "time"

type Session struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AccountID  uint       `gorm:"not null;index" json:"account_id"`
	TokenHash  string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	UserAgent  string     `gorm:"size:512" json:"user_agent"`
	IP         string     `gorm:"size:64" json:"ip"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
