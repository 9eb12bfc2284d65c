package models

import "time"

// RefreshToken is a long-lived login credential exchanged for access tokens.
type RefreshToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64    `gorm:"not null;index"`                        // Owning user.
	TokenHash string    `gorm:"type:varchar(64);not null;uniqueIndex"` // SHA-256 of the opaque token.
	ExpiresAt time.Time `gorm:"not null;index"`                        // Token is rejected after this instant.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
