package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a message delivered to a user's inbox.
type Notification struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64         `gorm:"not null;index"`             // Recipient user ID.
	Kind    string         `gorm:"type:varchar(32);not null"`  // Notification kind, e.g. GROUP_UPDATE.
	Title   string         `gorm:"type:varchar(255);not null"` // Short title.
	Message string         `gorm:"type:text;not null"`         // Body text.
	Data    datatypes.JSON `gorm:"type:jsonb"`                 // Structured payload.
	ReadAt  *time.Time     // Set once the user reads it.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
