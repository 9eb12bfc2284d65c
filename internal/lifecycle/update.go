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
)

// GroupPatch is a partial update. Nil fields are left unchanged.
type GroupPatch struct {
	Name            *string               `json:"name"`
	MaxParticipants *int                  `json:"maxParticipants"`
	EndDate         *time.Time            `json:"endDate"`
	DiscountCurve   []models.DiscountTier `json:"discountCurve"`
}

// Empty reports whether the patch changes nothing.
func (p GroupPatch) Empty() bool {
	return p.Name == nil && p.MaxParticipants == nil && p.EndDate == nil && p.DiscountCurve == nil
}

// UpdateGroup applies patch to an open group and reprices it.
func (s *Service) UpdateGroup(ctx context.Context, groupID uint64, patch GroupPatch, actorID uint64) (view *GroupView, err error) {
	const op = "lifecycle.UpdateGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID), userAttr(actorID))
	defer func() { endSpan(span, err) }()

	if patch.Empty() {
		return nil, apperr.Validation(op, "no fields to update")
	}
	if patch.DiscountCurve != nil {
		if errCurve := pricing.ValidateCurve(patch.DiscountCurve); errCurve != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, errCurve, "invalid discount curve")
		}
	}

	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, errLock
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		view, err = s.tryUpdate(ctx, op, groupID, patch)
		if errors.Is(err, errStaleGroup) {
			continue
		}
		if err == nil {
			log.WithFields(log.Fields{"group_id": groupID, "actor_id": actorID}).Info("group updated")
		}
		return view, err
	}
	return nil, apperr.Conflict(op, "group %d is busy, retry later", groupID)
}

func (s *Service) tryUpdate(ctx context.Context, op string, groupID uint64, patch GroupPatch) (*GroupView, error) {
	group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
	if errLoad != nil {
		return nil, errLoad
	}
	if group.Status != models.GroupStatusOpen {
		return nil, apperr.InvalidState(op, "cannot update a group that is %s", group.Status)
	}

	now := s.now()
	name := group.Name
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
	}
	maxParticipants := group.MaxParticipants
	if patch.MaxParticipants != nil {
		maxParticipants = *patch.MaxParticipants
	}
	endDate := group.EndDate
	if patch.EndDate != nil {
		endDate = patch.EndDate.UTC()
	}
	if errValidate := validateGroupShape(op, name, group.MinParticipants, maxParticipants, s.minCapacity, endDate, now); errValidate != nil {
		return nil, errValidate
	}
	if maxParticipants < group.CurrentParticipants {
		return nil, apperr.Validation(op, "maxParticipants cannot be below the current participant count %d", group.CurrentParticipants)
	}
	tiers := group.Tiers()
	if patch.DiscountCurve != nil {
		tiers = patch.DiscountCurve
	}
	price := pricing.Round(pricing.ComputePrice(group.BasePrice, group.CurrentParticipants, tiers))

	updates := map[string]any{
		"name":             name,
		"max_participants": maxParticipants,
		"end_date":         endDate,
		"current_price":    price,
	}
	curve := datatypes.NewJSONType(tiers)
	if patch.DiscountCurve != nil {
		updates["discount_curve"] = curve
	}
	if errCAS := casGroup(s.db.WithContext(ctx), group, models.GroupStatusOpen, now, updates); errCAS != nil {
		if errors.Is(errCAS, errStaleGroup) {
			return nil, errCAS
		}
		return nil, fmt.Errorf("%s: update group: %w", op, errCAS)
	}

	group.Name = name
	group.MaxParticipants = maxParticipants
	group.EndDate = endDate
	group.CurrentPrice = price
	group.DiscountCurve = curve
	group.Version++
	group.UpdatedAt = now
	view := newGroupView(group, now)
	return &view, nil
}
