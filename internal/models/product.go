package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus represents the moderation state of a product.
type ProductStatus string

// ProductStatus constants define product moderation states.
const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusPending  ProductStatus = "PENDING"
	ProductStatusApproved ProductStatus = "APPROVED"
	ProductStatusRejected ProductStatus = "REJECTED"
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// Product is a supplier item that groups can be opened for.
type Product struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SupplierID uint64 `gorm:"not null;index"`        // Owning supplier user ID.
	Supplier   User   `gorm:"foreignKey:SupplierID"` // Owning supplier.

	Name        string `gorm:"type:varchar(255);not null"` // Product name.
	Description string `gorm:"type:text"`                  // Product description.

	PriceSolo      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Price when bought alone.
	PriceGroupBase decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"` // Undiscounted group price.

	Status ProductStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"` // Moderation state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
