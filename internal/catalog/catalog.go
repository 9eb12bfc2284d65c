// Package catalog manages supplier products and their moderation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	minProductNameLength = 3
	defaultPageSize      = 20
	maxPageSize          = 100
)

// Service implements product operations.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// New constructs a Service.
func New(conn *gorm.DB, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: conn, now: now}
}

// ProductInput is the create payload.
type ProductInput struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	PriceSolo      decimal.Decimal `json:"priceSolo"`
	PriceGroupBase decimal.Decimal `json:"priceGroupBase"`
}

// Filter narrows a product listing.
type Filter struct {
	Status     models.ProductStatus
	SupplierID uint64
	Search     string
	Page       int
	Limit      int
}

// ProductView is the public representation of a product.
type ProductView struct {
	ID             uint64               `json:"id"`
	SupplierID     uint64               `json:"supplierId"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	PriceSolo      decimal.Decimal      `json:"priceSolo"`
	PriceGroupBase decimal.Decimal      `json:"priceGroupBase"`
	Status         models.ProductStatus `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// NewProductView builds the public view of p.
func NewProductView(p *models.Product) ProductView {
	return ProductView{
		ID:             p.ID,
		SupplierID:     p.SupplierID,
		Name:           p.Name,
		Description:    p.Description,
		PriceSolo:      p.PriceSolo,
		PriceGroupBase: p.PriceGroupBase,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// Page is one page of products.
type Page struct {
	Products []ProductView `json:"products"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
}

// CreateProduct stores a product pending moderation.
func (s *Service) CreateProduct(ctx context.Context, supplierID uint64, in ProductInput) (*models.Product, error) {
	const op = "catalog.CreateProduct"
	name := strings.TrimSpace(in.Name)
	if len([]rune(name)) < minProductNameLength {
		return nil, apperr.Validation(op, "name must be at least %d characters", minProductNameLength)
	}
	if !in.PriceSolo.IsPositive() || !in.PriceGroupBase.IsPositive() {
		return nil, apperr.Validation(op, "prices must be positive")
	}
	if in.PriceGroupBase.GreaterThan(in.PriceSolo) {
		return nil, apperr.Validation(op, "priceGroupBase cannot exceed priceSolo")
	}

	now := s.now()
	product := models.Product{
		SupplierID:     supplierID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		PriceSolo:      pricing.Round(in.PriceSolo),
		PriceGroupBase: pricing.Round(in.PriceGroupBase),
		Status:         models.ProductStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if errCreate := s.db.WithContext(ctx).Omit("Supplier").Create(&product).Error; errCreate != nil {
		return nil, fmt.Errorf("%s: insert product: %w", op, errCreate)
	}
	log.WithFields(log.Fields{"product_id": product.ID, "supplier_id": supplierID}).Info("product submitted")
	return &product, nil
}

// Review approves or rejects a pending product.
func (s *Service) Review(ctx context.Context, productID uint64, approve bool) (*models.Product, error) {
	const op = "catalog.Review"
	next := models.ProductStatusRejected
	if approve {
		next = models.ProductStatusApproved
	}
	return s.transition(ctx, op, productID, next, models.ProductStatusPending)
}

// Archive withdraws a product from the catalog. Suppliers may only archive
// their own products; actorID 0 skips the ownership check.
func (s *Service) Archive(ctx context.Context, productID, actorID uint64) (*models.Product, error) {
	const op = "catalog.Archive"
	if actorID != 0 {
		product, errGet := s.Get(ctx, productID)
		if errGet != nil {
			return nil, errGet
		}
		if product.SupplierID != actorID {
			return nil, apperr.New(apperr.KindForbidden, op, "product belongs to another supplier")
		}
	}
	return s.transition(ctx, op, productID, models.ProductStatusArchived,
		models.ProductStatusPending, models.ProductStatusApproved, models.ProductStatusRejected, models.ProductStatusDraft)
}

func (s *Service) transition(ctx context.Context, op string, productID uint64, next models.ProductStatus, from ...models.ProductStatus) (*models.Product, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND status IN ?", productID, from).
		Updates(map[string]any{"status": next, "updated_at": s.now()})
	if res.Error != nil {
		return nil, fmt.Errorf("%s: update product: %w", op, res.Error)
	}
	product, errGet := s.Get(ctx, productID)
	if errGet != nil {
		return nil, errGet
	}
	if res.RowsAffected == 0 {
		return nil, apperr.InvalidState(op, "product %d is %s", productID, product.Status)
	}
	log.WithFields(log.Fields{"product_id": productID, "status": next}).Info("product status changed")
	return product, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, productID uint64) (*models.Product, error) {
	var product models.Product
	if errFind := s.db.WithContext(ctx).Where("id = ?", productID).Take(&product).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("catalog.Get", "product %d not found", productID)
		}
		return nil, fmt.Errorf("catalog.Get: %w", errFind)
	}
	return &product, nil
}

// List returns one page of products, newest first.
func (s *Service) List(ctx context.Context, filter Filter) (*Page, error) {
	const op = "catalog.List"
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	q := s.db.WithContext(ctx).Model(&models.Product{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SupplierID != 0 {
		q = q.Where("supplier_id = ?", filter.SupplierID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(q, "name"), db.LikePattern(q, search))
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		return nil, fmt.Errorf("%s: count: %w", op, errCount)
	}
	var products []models.Product
	if errFind := q.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&products).Error; errFind != nil {
		return nil, fmt.Errorf("%s: list: %w", op, errFind)
	}
	views := make([]ProductView, 0, len(products))
	for i := range products {
		views = append(views, NewProductView(&products[i]))
	}
	return &Page{Products: views, Total: total, Page: page, Limit: limit}, nil
}
