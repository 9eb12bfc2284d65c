package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateInput describes a new group.
type CreateInput struct {
	ProductID       uint64                `json:"productId"`
	Name            string                `json:"name"`
	MinParticipants int                   `json:"minParticipants"`
	MaxParticipants int                   `json:"maxParticipants"`
	EndDate         time.Time             `json:"endDate"`
	DiscountCurve   []models.DiscountTier `json:"discountCurve"`
}

// CreateGroup opens a new group on an approved product.
func (s *Service) CreateGroup(ctx context.Context, input CreateInput, creatorID uint64) (view *GroupView, err error) {
	const op = "lifecycle.CreateGroup"
	ctx, span := startSpan(ctx, op, userAttr(creatorID))
	defer func() { endSpan(span, err) }()

	now := s.now()
	name := strings.TrimSpace(input.Name)
	if errValidate := validateGroupShape(op, name, input.MinParticipants, input.MaxParticipants, s.minCapacity, input.EndDate, now); errValidate != nil {
		return nil, errValidate
	}
	if errCurve := pricing.ValidateCurve(input.DiscountCurve); errCurve != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, errCurve, "invalid discount curve")
	}

	var product models.Product
	if errFind := s.db.WithContext(ctx).Where("id = ?", input.ProductID).Take(&product).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "product %d not found", input.ProductID)
		}
		return nil, fmt.Errorf("%s: load product: %w", op, errFind)
	}
	if product.Status != models.ProductStatusApproved {
		return nil, apperr.InvalidState(op, "product %d is not approved (status %s)", product.ID, product.Status)
	}

	base := pricing.Round(product.PriceGroupBase)
	group := models.Group{
		ProductID:       product.ID,
		Name:            name,
		MinParticipants: input.MinParticipants,
		MaxParticipants: input.MaxParticipants,
		EndDate:         input.EndDate.UTC(),
		BasePrice:       base,
		CurrentPrice:    pricing.Round(pricing.ComputePrice(base, 0, input.DiscountCurve)),
		DiscountCurve:   datatypes.NewJSONType(input.DiscountCurve),
		Status:          models.GroupStatusOpen,
		CreatedBy:       creatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := s.db.WithContext(ctx).Omit("Product", "Members").Create(&group).Error; errCreate != nil {
		return nil, fmt.Errorf("%s: insert group: %w", op, errCreate)
	}
	group.Product = product

	log.WithFields(log.Fields{
		"group_id":   group.ID,
		"product_id": product.ID,
		"creator_id": creatorID,
	}).Info("group created")

	created := newGroupView(&group, now)
	return &created, nil
}

func validateGroupShape(op, name string, minParticipants, maxParticipants, minCapacity int, endDate, now time.Time) error {
	if len([]rune(name)) < minGroupNameLength {
		return apperr.Validation(op, "name must be at least %d characters", minGroupNameLength)
	}
	if minParticipants < minGroupParticipants {
		return apperr.Validation(op, "minParticipants must be at least %d", minGroupParticipants)
	}
	if maxParticipants < minParticipants {
		return apperr.Validation(op, "maxParticipants must be greater than or equal to minParticipants")
	}
	if maxParticipants < minCapacity {
		return apperr.Validation(op, "maxParticipants must be at least %d", minCapacity)
	}
	if !endDate.After(now) {
		return apperr.Validation(op, "endDate must be in the future")
	}
	return nil
}
