package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of a deposit or final payment.
type PaymentStatus string

// PaymentStatus constants define payment states.
const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// GroupMember records one user's participation in a group.
// Rows are never deleted; LeftAt marks a departure.
type GroupMember struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	GroupID uint64 `gorm:"not null;index"`    // Related group ID.
	UserID  uint64 `gorm:"not null;index"`    // Related user ID.
	User    User   `gorm:"foreignKey:UserID"` // Related user.

	DepositPaid        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`             // Deposit charged at join.
	DepositStatus      PaymentStatus   `gorm:"type:varchar(16);not null;default:'PENDING';index"` // Deposit state.
	FinalPaid          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`             // Final balance charged.
	FinalPaymentStatus PaymentStatus   `gorm:"type:varchar(16);not null;default:'PENDING'"`       // Final balance state.

	PaymentMethod    string `gorm:"type:varchar(32)"`   // Method used for the deposit.
	PaymentReference string `gorm:"type:varchar(64)"`   // Provider reference of the deposit charge.
	RefundAttempts   int    `gorm:"not null;default:0"` // Failed refund attempts so far.

	JoinedAt time.Time  `gorm:"not null"` // Join timestamp.
	LeftAt   *time.Time `gorm:"index"`    // Departure timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Active reports whether the member has not left the group.
func (m *GroupMember) Active() bool {
	return m != nil && m.LeftAt == nil
}
