package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

// CancelGroup withdraws an open group. Deposits are returned by the refund sweep.
func (s *Service) CancelGroup(ctx context.Context, groupID, actorID uint64) (view *GroupView, err error) {
	const op = "lifecycle.CancelGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID), userAttr(actorID))
	defer func() { endSpan(span, err) }()

	group, errCancel := s.cancelLocked(ctx, op, groupID)
	if errCancel != nil {
		return nil, errCancel
	}

	log.WithFields(log.Fields{"group_id": groupID, "actor_id": actorID}).Info("group cancelled")
	metrics.Transition(string(models.GroupStatusOpen), string(models.GroupStatusCancelled), transitionSourceCancel)

	members, errMembers := s.activeMembers(ctx, groupID)
	if errMembers != nil {
		log.WithError(errMembers).WithField("group_id", groupID).Warn("failed to load members for cancel notification")
	}
	s.dispatcher.Send(ctx, cancelledMessages(group, members)...)

	cancelled := newGroupView(group, s.now())
	return &cancelled, nil
}

func (s *Service) cancelLocked(ctx context.Context, op string, groupID uint64) (*models.Group, error) {
	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, errLock
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
		if errLoad != nil {
			return nil, errLoad
		}
		if !group.Status.CanTransitionTo(models.GroupStatusCancelled) {
			return nil, apperr.InvalidState(op, "cannot cancel a group that is %s", group.Status)
		}
		now := s.now()
		errCAS := casGroup(s.db.WithContext(ctx), group, models.GroupStatusOpen, now, map[string]any{
			"status": models.GroupStatusCancelled,
		})
		if errors.Is(errCAS, errStaleGroup) {
			continue
		}
		if errCAS != nil {
			return nil, fmt.Errorf("%s: update group: %w", op, errCAS)
		}
		group.Status = models.GroupStatusCancelled
		group.Version++
		group.UpdatedAt = now
		return group, nil
	}
	return nil, apperr.Conflict(op, "group %d is busy, retry later", groupID)
}
