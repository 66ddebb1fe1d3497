package models

import "time"

// PasswordResetToken is a single-use reset link. Only the hash of the
// emailed token is stored.
type PasswordResetToken struct {
	BaseModel
	UserID    string     `gorm:"size:36;not null;index" json:"userId"`
	TokenHash string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	ClientIP  string     `gorm:"size:64" json:"clientIp,omitempty"`
}

// Usable reports whether the token can still reset a password at now.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
