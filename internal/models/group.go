package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GroupStatus represents the lifecycle state of a buying group.
type GroupStatus string

// GroupStatus constants define group lifecycle states.
const (
	// GroupStatusOpen accepts joins and leaves.
	GroupStatusOpen GroupStatus = "OPEN"
	// GroupStatusClosed reached its threshold; members owe their final balance.
	GroupStatusClosed GroupStatus = "CLOSED"
	// GroupStatusCompleted has every final balance paid.
	GroupStatusCompleted GroupStatus = "COMPLETED"
	// GroupStatusFailed expired below its threshold; deposits are refunded.
	GroupStatusFailed GroupStatus = "FAILED"
	// GroupStatusCancelled was withdrawn by its creator or an admin.
	GroupStatusCancelled GroupStatus = "CANCELLED"
)

// Valid reports whether the status is known.
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupStatusOpen, GroupStatusClosed, GroupStatusCompleted, GroupStatusFailed, GroupStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next keeps transitions monotonic.
func (s GroupStatus) CanTransitionTo(next GroupStatus) bool {
	switch s {
	case GroupStatusOpen:
		return next == GroupStatusClosed || next == GroupStatusFailed || next == GroupStatusCancelled
	case GroupStatusClosed:
		return next == GroupStatusCompleted
	default:
		return false
	}
}

// DiscountTier unlocks a discount once a group reaches Participants members.
type DiscountTier struct {
	Participants    int             `json:"participants"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// Group is a time-boxed collective purchase of one product.
type Group struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProductID uint64  `gorm:"not null;index"`       // Related product ID.
	Product   Product `gorm:"foreignKey:ProductID"` // Related product.

	Name string `gorm:"type:varchar(255);not null"` // Display name.

	MinParticipants     int `gorm:"not null"`           // Threshold for success.
	MaxParticipants     int `gorm:"not null"`           // Capacity.
	CurrentParticipants int `gorm:"not null;default:0"` // Active members.

	EndDate time.Time `gorm:"not null;index:idx_groups_status_end,priority:2"` // Deadline.

	BasePrice     decimal.Decimal                    `gorm:"type:decimal(12,2);not null;default:0"` // Product group base price at creation.
	CurrentPrice  decimal.Decimal                    `gorm:"type:decimal(12,2);not null;default:0"` // Price at the current participant count.
	DiscountCurve datatypes.JSONType[[]DiscountTier] `gorm:"type:jsonb;not null"`                   // Discount tiers.

	Status      GroupStatus `gorm:"type:varchar(16);not null;default:'OPEN';index:idx_groups_status_end,priority:1"` // Lifecycle state.
	CompletedAt *time.Time  // Set when the group closes successfully.

	CreatedBy uint64 `gorm:"not null;index"`     // Creator user ID.
	Version   int64  `gorm:"not null;default:0"` // Incremented on every conditional write.

	Members []GroupMember `gorm:"foreignKey:GroupID"` // Memberships, active and departed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Tiers returns the group's discount curve.
func (g *Group) Tiers() []DiscountTier {
	if g == nil {
		return nil
	}
	return g.DiscountCurve.Data()
}

// TableName avoids the GROUPS keyword in raw SQL.
func (Group) TableName() string {
	return "buying_groups"
}
