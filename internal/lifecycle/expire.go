package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/evaluator"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

// ExpireGroup resolves an open group whose deadline has passed: CLOSED when
// the threshold was reached, FAILED otherwise. It reports the resulting status
// and whether this call made the transition. Groups that are not open or not
// yet expired are left untouched.
func (s *Service) ExpireGroup(ctx context.Context, groupID uint64) (status models.GroupStatus, changed bool, err error) {
	const op = "lifecycle.ExpireGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID))
	defer func() { endSpan(span, err) }()

	group, changed, err := s.expireLocked(ctx, op, groupID)
	if err != nil || !changed {
		if group != nil {
			status = group.Status
		}
		return status, false, err
	}

	metrics.Transition(string(models.GroupStatusOpen), string(group.Status), transitionSourceSweep)
	log.WithFields(log.Fields{
		"group_id": groupID,
		"status":   group.Status,
		"count":    group.CurrentParticipants,
	}).Info("expired group resolved")

	members, errMembers := s.activeMembers(ctx, groupID)
	if errMembers != nil {
		log.WithError(errMembers).WithField("group_id", groupID).Warn("failed to load members for expiration notification")
	}
	if group.Status == models.GroupStatusClosed {
		s.dispatcher.Send(ctx, SuccessMessages(group, members)...)
	} else {
		s.dispatcher.Send(ctx, FailureMessages(group, members)...)
	}
	return group.Status, true, nil
}

func (s *Service) expireLocked(ctx context.Context, op string, groupID uint64) (*models.Group, bool, error) {
	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, false, errLock
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
		if errLoad != nil {
			return nil, false, errLoad
		}
		now := s.now()
		if group.Status != models.GroupStatusOpen || !evaluator.IsExpired(group.EndDate, now) {
			return group, false, nil
		}
		updates := map[string]any{}
		next := models.GroupStatusFailed
		if evaluator.ThresholdReached(group.CurrentParticipants, group.MinParticipants) {
			next = models.GroupStatusClosed
			updates["completed_at"] = now
		}
		updates["status"] = next
		errCAS := casGroup(s.db.WithContext(ctx), group, models.GroupStatusOpen, now, updates)
		if errors.Is(errCAS, errStaleGroup) {
			continue
		}
		if errCAS != nil {
			return nil, false, fmt.Errorf("%s: update group: %w", op, errCAS)
		}
		group.Status = next
		if next == models.GroupStatusClosed {
			group.CompletedAt = &now
		}
		group.Version++
		group.UpdatedAt = now
		return group, true, nil
	}
	return nil, false, apperr.Conflict(op, "group %d is busy, retry later", groupID)
}
