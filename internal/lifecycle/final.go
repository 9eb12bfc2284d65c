package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	"github.com/router-for-me/GroupBuyBusiness/internal/pricing"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PayFinalBalance charges the remainder of the closed price. The group
// completes once every active member has paid.
func (s *Service) PayFinalBalance(ctx context.Context, groupID, userID uint64, paymentMethod string) (result *FinalPaymentResult, err error) {
	const op = "lifecycle.PayFinalBalance"
	ctx, span := startSpan(ctx, op, groupAttr(groupID), userAttr(userID))
	defer func() { endSpan(span, err) }()

	method, ok := payment.ParseMethod(paymentMethod)
	if !ok {
		return nil, apperr.Validation(op, "unsupported payment method %q", paymentMethod)
	}

	var msgs []notify.Message
	result, msgs, err = s.payFinalLocked(ctx, op, groupID, userID, method)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Send(ctx, msgs...)
	return result, nil
}

func (s *Service) payFinalLocked(ctx context.Context, op string, groupID, userID uint64, method payment.Method) (*FinalPaymentResult, []notify.Message, error) {
	unlock, errLock := s.lockGroup(ctx, op, groupID)
	if errLock != nil {
		return nil, nil, errLock
	}
	defer unlock()

	group, errLoad := s.loadGroup(ctx, s.db, op, groupID)
	if errLoad != nil {
		return nil, nil, errLoad
	}
	if group.Status != models.GroupStatusClosed {
		return nil, nil, apperr.InvalidState(op, "final balance is only due on CLOSED groups (status %s)", group.Status)
	}
	member, errMember := s.activeMembership(ctx, s.db, groupID, userID)
	if errMember != nil {
		return nil, nil, fmt.Errorf("%s: load membership: %w", op, errMember)
	}
	if member == nil {
		return nil, nil, apperr.NotFound(op, "no active membership in group %d", groupID)
	}
	if member.FinalPaymentStatus == models.PaymentStatusCompleted {
		return nil, nil, apperr.Conflict(op, "final balance already paid")
	}

	now := s.now()
	amount := pricing.Round(pricing.ComputeFinalBalance(group.CurrentPrice, member.DepositPaid))
	if amount.IsNegative() {
		return nil, nil, apperr.InvalidState(op, "deposit %s exceeds the final price %s", member.DepositPaid.StringFixed(2), group.CurrentPrice.StringFixed(2))
	}
	var receipt payment.Receipt
	if amount.IsPositive() {
		var errCharge error
		receipt, errCharge = s.payments.Charge(ctx, payment.ChargeRequest{
			UserID:  userID,
			GroupID: groupID,
			Amount:  amount,
			Method:  method,
			Purpose: payment.PurposeFinalBalance,
		})
		if errCharge != nil {
			if errors.Is(errCharge, payment.ErrDeclined) {
				if errMark := s.db.WithContext(ctx).Model(&models.GroupMember{}).
					Where("id = ?", member.ID).
					Updates(map[string]any{"final_payment_status": models.PaymentStatusFailed, "updated_at": now}).Error; errMark != nil {
					log.WithError(errMark).WithField("member_id", member.ID).Warn("failed to record declined final payment")
				}
				return nil, nil, apperr.Wrap(apperr.KindPaymentDeclined, op, errCharge, "final payment declined")
			}
			return nil, nil, fmt.Errorf("%s: charge final balance: %w", op, errCharge)
		}
	}

	var (
		completed bool
		errWrite  error
	)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if attempt > 1 {
			if group, errWrite = s.loadGroup(ctx, s.db, op, groupID); errWrite != nil {
				break
			}
		}
		completed, errWrite = s.tryRecordFinal(ctx, op, group, member, amount, now)
		if !errors.Is(errWrite, errStaleGroup) {
			break
		}
		log.WithFields(log.Fields{"group_id": groupID, "attempt": attempt}).Debug("final payment lost version race, retrying")
	}
	if errors.Is(errWrite, errStaleGroup) {
		errWrite = apperr.Conflict(op, "group %d is busy, retry later", groupID)
	}
	if errWrite != nil {
		if amount.IsPositive() {
			s.refundCharge(ctx, userID, groupID, amount, receipt.Reference)
		}
		return nil, nil, errWrite
	}

	member.FinalPaid = amount
	member.FinalPaymentStatus = models.PaymentStatusCompleted
	member.UpdatedAt = now
	var msgs []notify.Message
	group.Version++
	group.UpdatedAt = now
	if completed {
		group.Status = models.GroupStatusCompleted
		metrics.Transition(string(models.GroupStatusClosed), string(models.GroupStatusCompleted), transitionSourcePay)
		log.WithField("group_id", groupID).Info("group completed")
		members, errMembers := s.activeMembers(ctx, groupID)
		if errMembers != nil {
			log.WithError(errMembers).WithField("group_id", groupID).Warn("failed to load members for completion notification")
		}
		msgs = completedMessages(group, members)
	}

	return &FinalPaymentResult{
		Group:  newGroupView(group, now),
		Member: newMemberView(member),
		Amount: amount,
	}, msgs, nil
}

// tryRecordFinal marks the member paid and bumps the group version in one
// transaction, completing the group when nobody active is left unpaid. Every
// payment writes the group row, so concurrent payers serialize on it and the
// last one always observes the others.
func (s *Service) tryRecordFinal(ctx context.Context, op string, group *models.Group, member *models.GroupMember, amount decimal.Decimal, now time.Time) (bool, error) {
	if group.Status != models.GroupStatusClosed {
		return false, apperr.InvalidState(op, "final balance is only due on CLOSED groups (status %s)", group.Status)
	}
	completed := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GroupMember{}).
			Where("id = ? AND left_at IS NULL AND final_payment_status <> ?", member.ID, models.PaymentStatusCompleted).
			Updates(map[string]any{
				"final_paid":           amount,
				"final_payment_status": models.PaymentStatusCompleted,
				"updated_at":           now,
			})
		if res.Error != nil {
			return fmt.Errorf("%s: mark final payment: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict(op, "final balance already paid")
		}
		var unpaid int64
		if errCount := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND left_at IS NULL AND final_payment_status <> ?", group.ID, models.PaymentStatusCompleted).
			Count(&unpaid).Error; errCount != nil {
			return fmt.Errorf("%s: count unpaid members: %w", op, errCount)
		}
		updates := map[string]any{}
		if unpaid == 0 {
			updates["status"] = models.GroupStatusCompleted
		}
		if errCAS := casGroup(tx, group, models.GroupStatusClosed, now, updates); errCAS != nil {
			if errors.Is(errCAS, errStaleGroup) {
				return errCAS
			}
			return fmt.Errorf("%s: update group: %w", op, errCAS)
		}
		completed = unpaid == 0
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	return completed, nil
}
