package models

import "time"

// UserRole identifies what a user may do on the marketplace.
type UserRole string

// UserRole constants define marketplace roles.
const (
	// UserRoleMember joins groups and pays deposits.
	UserRoleMember UserRole = "MEMBER"
	// UserRoleSupplier lists products and opens groups for them.
	UserRoleSupplier UserRole = "SUPPLIER"
	// UserRoleAdmin moderates products and manages every group.
	UserRoleAdmin UserRole = "ADMIN"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleMember, UserRoleSupplier, UserRoleAdmin:
		return true
	default:
		return false
	}
}

// User represents a marketplace account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string  `gorm:"type:varchar(255);not null;uniqueIndex"` // Unique email address.
	Phone        *string `gorm:"type:varchar(32);uniqueIndex"`           // Optional unique phone number.
	PasswordHash string  `gorm:"type:text;not null"`                     // Bcrypt password hash.
	FirstName    string  `gorm:"type:varchar(100);not null"`             // Given name.
	LastName     string  `gorm:"type:varchar(100);not null"`             // Family name.

	Role UserRole `gorm:"type:varchar(16);not null;default:'MEMBER';index"` // Marketplace role.

	IsVerified bool `gorm:"not null;default:false"` // Whether the OTP check succeeded.
	IsActive   bool `gorm:"not null;default:true"`  // Whether the user can sign in.

	OTPSecret   string     `gorm:"type:varchar(64)"` // TOTP secret used for verification codes.
	LastLoginAt *time.Time // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
