package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is an issued refresh JWT. Only the SHA-256 of the token is
// stored; rotation revokes the previous row.
type RefreshToken struct {
	BaseModel
	UserID    string     `gorm:"size:36;index" json:"userId"`
	TokenHash string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsRevoked bool       `gorm:"default:false" json:"isRevoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	ClientIP  string     `gorm:"size:64" json:"clientIp,omitempty"`
	UserAgent string     `gorm:"size:255" json:"userAgent,omitempty"`
}

// HashToken returns the lookup key stored for a bearer secret such as a
// refresh or password reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
