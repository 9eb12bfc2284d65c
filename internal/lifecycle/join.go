package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/db"
	"github.com/router-for-me/GroupBuyBusiness/internal/evaluator"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JoinGroup charges the deposit and adds userID to the group. Reaching the
// threshold closes the group in the same write.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID uint64, paymentMethod string) (result *JoinResult, err error) {
	const op = "lifecycle.JoinGroup"
	ctx, span := startSpan(ctx, op, groupAttr(groupID), userAttr(userID))
	defer func() { endSpan(span, err) }()
	defer func() { metrics.JoinAttempts.WithLabelValues(joinOutcome(err)).Inc() }()

	method, ok := payment.ParseMethod(paymentMethod)
	if !ok {
		return nil, apperr.Validation(op, "unsupported payment method %q", paymentMethod)
	}

	var msgs []notify.Message
	result, msgs, err = s.joinLocked(ctx, op, groupID, userID, method)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Send(ctx, msgs...)
	return result, nil
}

func (s *Service) joinLocked(ctx context.Context, op string, groupID, userID uint64, method payment.Method) (*JoinResult, []notify.Message, error) {
	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, nil, errLock
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		result, msgs, errJoin := s.tryJoin(ctx, op, groupID, userID, method)
		if errors.Is(errJoin, errStaleGroup) {
			metrics.JoinAttempts.WithLabelValues("retried").Inc()
			log.WithFields(log.Fields{"group_id": groupID, "attempt": attempt}).Debug("join lost version race, retrying")
			continue
		}
		return result, msgs, errJoin
	}
	return nil, nil, apperr.Conflict(op, "group %d is busy, retry later", groupID)
}

func (s *Service) tryJoin(ctx context.Context, op string, groupID, userID uint64, method payment.Method) (*JoinResult, []notify.Message, error) {
	group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
	if errLoad != nil {
		return nil, nil, errLoad
	}
	now := s.now()
	if group.Status != models.GroupStatusOpen {
		return nil, nil, apperr.InvalidState(op, "group is not open (status %s)", group.Status)
	}
	if evaluator.IsExpired(group.EndDate, now) {
		return nil, nil, apperr.InvalidState(op, "group has expired")
	}
	if evaluator.IsFull(group.CurrentParticipants, group.MaxParticipants) {
		return nil, nil, apperr.InvalidState(op, "group is full")
	}
	existing, errMember := s.activeMembership(ctx, s.db, groupID, userID)
	if errMember != nil {
		return nil, nil, fmt.Errorf("%s: load membership: %w", op, errMember)
	}
	if existing != nil {
		return nil, nil, apperr.Conflict(op, "user is already a member of this group")
	}

	deposit := pricing.Round(pricing.ComputeDeposit(group.CurrentPrice, s.depositPercent))
	receipt, errCharge := s.payments.Charge(ctx, payment.ChargeRequest{
		UserID:  userID,
		GroupID: groupID,
		Amount:  deposit,
		Method:  method,
		Purpose: payment.PurposeDeposit,
	})
	if errCharge != nil {
		if errors.Is(errCharge, payment.ErrDeclined) {
			return nil, nil, apperr.Wrap(apperr.KindPaymentDeclined, op, errCharge, "deposit payment declined")
		}
		return nil, nil, fmt.Errorf("%s: charge deposit: %w", op, errCharge)
	}

	count := group.CurrentParticipants + 1
	price := pricing.Round(pricing.ComputePrice(group.BasePrice, count, group.Tiers()))
	closing := evaluator.ThresholdReached(count, group.MinParticipants)

	member := models.GroupMember{
		GroupID:            groupID,
		UserID:             userID,
		DepositPaid:        deposit,
		DepositStatus:      models.PaymentStatusCompleted,
		FinalPaymentStatus: models.PaymentStatusPending,
		PaymentMethod:      string(method),
		PaymentReference:   receipt.Reference,
		JoinedAt:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	updates := map[string]any{
		"current_participants": count,
		"current_price":        price,
	}
	if closing {
		updates["status"] = models.GroupStatusClosed
		updates["completed_at"] = now
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Omit("User").Create(&member).Error; errCreate != nil {
			if db.IsUniqueViolation(errCreate) {
				return apperr.Conflict(op, "user is already a member of this group")
			}
			return fmt.Errorf("%s: insert member: %w", op, errCreate)
		}
		return casGroup(tx, group, models.GroupStatusOpen, now, updates)
	})
	if errTx != nil {
		s.refundCharge(ctx, userID, groupID, deposit, receipt.Reference)
		if !errors.Is(errTx, errStaleGroup) && apperr.KindOf(errTx) == apperr.KindInternal {
			return nil, nil, fmt.Errorf("%s: commit: %w", op, errTx)
		}
		return nil, nil, errTx
	}

	group.CurrentParticipants = count
	group.CurrentPrice = price
	group.Version++
	group.UpdatedAt = now
	if closing {
		group.Status = models.GroupStatusClosed
		group.CompletedAt = &now
		metrics.Transition(string(models.GroupStatusOpen), string(models.GroupStatusClosed), transitionSourceJoin)
	}

	log.WithFields(log.Fields{
		"group_id": groupID,
		"user_id":  userID,
		"count":    count,
		"closed":   closing,
	}).Info("member joined group")

	msgs, errMsgs := s.joinMessages(ctx, group, closing)
	if errMsgs != nil {
		log.WithError(errMsgs).WithField("group_id", groupID).Warn("failed to build join notifications")
	}
	return &JoinResult{
		Group:   newGroupView(group, now),
		Member:  newMemberView(&member),
		Deposit: deposit,
	}, msgs, nil
}

// refundCharge returns a deposit whose membership write did not commit.
func (s *Service) refundCharge(ctx context.Context, userID, groupID uint64, amount decimal.Decimal, reference string) {
	_, errRefund := s.payments.Refund(context.WithoutCancel(ctx), payment.RefundRequest{
		UserID:    userID,
		GroupID:   groupID,
		Amount:    amount,
		Reference: reference,
	})
	if errRefund != nil {
		metrics.Refunds.WithLabelValues("compensation_failed").Inc()
		log.WithError(errRefund).WithFields(log.Fields{
			"group_id":  groupID,
			"user_id":   userID,
			"reference": reference,
		}).Error("failed to refund uncommitted deposit")
		return
	}
	metrics.Refunds.WithLabelValues("compensated").Inc()
}

func joinOutcome(err error) string {
	if err == nil {
		return "joined"
	}
	return apperr.KindOf(err).String()
}
