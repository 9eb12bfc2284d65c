package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LeaveGroup marks userID's membership as departed while the group is open.
// The deposit is returned by the refund sweep.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID uint64) (view *GroupView, err error) {
	const op = "lifecycle.LeaveGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID), userAttr(userID))
	defer func() { endSpan(span, err) }()

	var msgs []notify.Message
	view, msgs, err = s.leaveLocked(ctx, op, groupID, userID)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Send(ctx, msgs...)
	return view, nil
}

func (s *Service) leaveLocked(ctx context.Context, op string, groupID, userID uint64) (*GroupView, []notify.Message, error) {
	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, nil, errLock
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		view, msgs, errLeave := s.tryLeave(ctx, op, groupID, userID)
		if errors.Is(errLeave, errStaleGroup) {
			continue
		}
		return view, msgs, errLeave
	}
	return nil, nil, apperr.Conflict(op, "group %d is busy, retry later", groupID)
}

func (s *Service) tryLeave(ctx context.Context, op string, groupID, userID uint64) (*GroupView, []notify.Message, error) {
	group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
	if errLoad != nil {
		return nil, nil, errLoad
	}
	member, errMember := s.activeMembership(ctx, s.db, groupID, userID)
	if errMember != nil {
		return nil, nil, fmt.Errorf("%s: load membership: %w", op, errMember)
	}
	if member == nil {
		return nil, nil, apperr.NotFound(op, "no active membership in group %d", groupID)
	}
	if group.Status != models.GroupStatusOpen {
		return nil, nil, apperr.InvalidState(op, "cannot leave a group that is %s", group.Status)
	}

	now := s.now()
	count := group.CurrentParticipants - 1
	if count < 0 {
		count = 0
	}
	price := pricing.Round(pricing.ComputePrice(group.BasePrice, count, group.Tiers()))

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GroupMember{}).
			Where("id = ? AND left_at IS NULL", member.ID).
			Updates(map[string]any{"left_at": now, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("%s: mark member departed: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return errStaleGroup
		}
		return casGroup(tx, group, models.GroupStatusOpen, now, map[string]any{
			"current_participants": count,
			"current_price":        price,
		})
	})
	if errTx != nil {
		return nil, nil, errTx
	}

	group.CurrentParticipants = count
	group.CurrentPrice = price
	group.Version++
	group.UpdatedAt = now
	member.LeftAt = &now

	log.WithFields(log.Fields{"group_id": groupID, "user_id": userID, "count": count}).Info("member left group")

	msgs := []notify.Message{departureRefundMessage(group, member)}
	remaining, errMembers := s.activeMembers(ctx, groupID)
	if errMembers != nil {
		log.WithError(errMembers).WithField("group_id", groupID).Warn("failed to load members for leave notification")
	}
	for i := range remaining {
		msgs = append(msgs, updateMessage(group, remaining[i].UserID,
			fmt.Sprintf("A member left %s. %d/%d participants, price now %s.",
				group.Name, count, group.MaxParticipants, price.StringFixed(2))))
	}
	view := newGroupView(group, now)
	return &view, msgs, nil
}
