package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/evaluator"
	"github.com/router-for-me/GroupBuyBusiness/internal/lifecycle"
	"github.com/router-for-me/GroupBuyBusiness/internal/metrics"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

// Job names accepted by RunOnce and the sweep command.
const (
	JobExpiration = "expiration"
	JobRefund     = "refund"
	JobReminder   = "reminder"
)

const (
	defaultReminderWindow    = 24 * time.Hour
	defaultMaxRefundAttempts = 5
	defaultBatchSize         = 200
)

var tracer = otel.Tracer("github.com/router-for-me/GroupBuyBusiness/internal/jobs")

// SweeperOptions configures a Sweeper. Zero values select defaults.
type SweeperOptions struct {
	Notifier          notify.Notifier
	NotifyTimeout     time.Duration
	Now               func() time.Time
	ReminderWindow    time.Duration
	MaxRefundAttempts int
	BatchSize         int
}

// Sweeper implements the periodic group sweeps.
type Sweeper struct {
	db                *gorm.DB
	groups            *lifecycle.Service
	payments          payment.Provider
	dispatcher        *notify.Dispatcher
	now               func() time.Time
	reminderWindow    time.Duration
	maxRefundAttempts int
	batchSize         int
}

// NewSweeper constructs a Sweeper.
func NewSweeper(db *gorm.DB, groups *lifecycle.Service, payments payment.Provider, opts SweeperOptions) *Sweeper {
	s := &Sweeper{
		db:                db,
		groups:            groups,
		payments:          payments,
		dispatcher:        notify.NewDispatcher(opts.Notifier, opts.NotifyTimeout),
		now:               opts.Now,
		reminderWindow:    opts.ReminderWindow,
		maxRefundAttempts: opts.MaxRefundAttempts,
		batchSize:         opts.BatchSize,
	}
	if s.now == nil {
		s.now = groups.Now
	}
	if s.reminderWindow <= 0 {
		s.reminderWindow = defaultReminderWindow
	}
	if s.maxRefundAttempts <= 0 {
		s.maxRefundAttempts = defaultMaxRefundAttempts
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	return s
}

// Jobs returns the three sweeps scheduled on the given intervals.
func (s *Sweeper) Jobs(expiration, refund, reminder time.Duration) []Job {
	return []Job{
		{Name: JobExpiration, Interval: expiration, Run: s.ExpireGroups},
		{Name: JobRefund, Interval: refund, Run: s.RefundDeposits},
		{Name: JobReminder, Interval: reminder, Run: s.SendReminders},
	}
}

// ExpireGroups resolves every open group past its deadline and returns how
// many changed status. Groups resolved concurrently by a join are skipped.
func (s *Sweeper) ExpireGroups(ctx context.Context) (int, error) {
	now := s.now()
	changed := 0
	var errs []error
	var lastID uint64
	for {
		var ids []uint64
		if errFind := s.db.WithContext(ctx).Model(&models.Group{}).
			Where("status = ? AND end_date < ? AND id > ?", models.GroupStatusOpen, now, lastID).
			Order("id ASC").
			Limit(s.batchSize).
			Pluck("id", &ids).Error; errFind != nil {
			errs = append(errs, fmt.Errorf("jobs: expiration: find expired groups: %w", errFind))
			break
		}
		for _, id := range ids {
			if errCtx := ctx.Err(); errCtx != nil {
				return changed, errors.Join(append(errs, errCtx)...)
			}
			lastID = id
			_, ok, errExpire := s.groups.ExpireGroup(ctx, id)
			if errExpire != nil {
				errs = append(errs, fmt.Errorf("group %d: %w", id, errExpire))
				continue
			}
			if ok {
				changed++
			}
		}
		if len(ids) < s.batchSize {
			break
		}
	}
	return changed, errors.Join(errs...)
}

// RefundDeposits returns deposits of failed or cancelled groups and of
// departed members. A declined refund is recorded and retried on the next
// run until the attempt cap is reached. Returns the number refunded.
func (s *Sweeper) RefundDeposits(ctx context.Context) (int, error) {
	refunded := 0
	var errs []error
	var lastID uint64
	for {
		var members []models.GroupMember
		if errFind := s.db.WithContext(ctx).
			Model(&models.GroupMember{}).
			Select("group_members.*").
			Joins("JOIN buying_groups ON buying_groups.id = group_members.group_id").
			Where("group_members.id > ?", lastID).
			Where("group_members.deposit_status IN ?", []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusFailed}).
			Where("group_members.final_payment_status = ?", models.PaymentStatusPending).
			Where("group_members.refund_attempts < ?", s.maxRefundAttempts).
			Where("(buying_groups.status IN ? OR group_members.left_at IS NOT NULL)",
				[]models.GroupStatus{models.GroupStatusFailed, models.GroupStatusCancelled}).
			Order("group_members.id ASC").
			Limit(s.batchSize).
			Find(&members).Error; errFind != nil {
			errs = append(errs, fmt.Errorf("jobs: refund: find candidates: %w", errFind))
			break
		}
		for i := range members {
			if errCtx := ctx.Err(); errCtx != nil {
				return refunded, errors.Join(append(errs, errCtx)...)
			}
			lastID = members[i].ID
			ok, errRefund := s.refundMember(ctx, &members[i])
			if errRefund != nil {
				errs = append(errs, errRefund)
				continue
			}
			if ok {
				refunded++
			}
		}
		if len(members) < s.batchSize {
			break
		}
	}
	return refunded, errors.Join(errs...)
}

func (s *Sweeper) refundMember(ctx context.Context, member *models.GroupMember) (bool, error) {
	now := s.now()
	fields := log.Fields{"member_id": member.ID, "group_id": member.GroupID, "user_id": member.UserID}

	if member.DepositPaid.IsPositive() {
		_, errRefund := s.payments.Refund(ctx, payment.RefundRequest{
			UserID:    member.UserID,
			GroupID:   member.GroupID,
			Amount:    member.DepositPaid,
			Reference: member.PaymentReference,
		})
		if errRefund != nil {
			metrics.Refunds.WithLabelValues("failed").Inc()
			log.WithError(errRefund).WithFields(fields).Warn("deposit refund failed, will retry")
			errMark := s.db.WithContext(ctx).Model(&models.GroupMember{}).
				Where("id = ?", member.ID).
				Updates(map[string]any{
					"deposit_status":  models.PaymentStatusFailed,
					"refund_attempts": gorm.Expr("refund_attempts + 1"),
					"updated_at":      now,
				}).Error
			if errMark != nil {
				return false, fmt.Errorf("jobs: refund: record failure for member %d: %w", member.ID, errMark)
			}
			return false, nil
		}
	}

	if errMark := s.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("id = ?", member.ID).
		Updates(map[string]any{
			"deposit_status": models.PaymentStatusRefunded,
			"updated_at":     now,
		}).Error; errMark != nil {
		return false, fmt.Errorf("jobs: refund: mark member %d refunded: %w", member.ID, errMark)
	}
	metrics.Refunds.WithLabelValues("refunded").Inc()
	log.WithFields(fields).Info("deposit refunded")

	s.dispatcher.Send(ctx, notify.Message{
		UserID: member.UserID,
		Kind:   notify.KindDepositRefund,
		Title:  "Deposit refunded",
		Body:   fmt.Sprintf("Your deposit of %s has been refunded.", member.DepositPaid.StringFixed(2)),
		Data: map[string]any{
			"groupId": member.GroupID,
			"amount":  member.DepositPaid.StringFixed(2),
		},
	})
	return true, nil
}

// SendReminders notifies active members of open groups that end within the
// reminder window. Returns the number of groups reminded.
func (s *Sweeper) SendReminders(ctx context.Context) (int, error) {
	now := s.now()
	reminded := 0
	var errs []error
	var lastID uint64
	for {
		var groups []models.Group
		if errFind := s.db.WithContext(ctx).
			Where("status = ? AND end_date >= ? AND end_date <= ? AND id > ?", models.GroupStatusOpen, now, now.Add(s.reminderWindow), lastID).
			Order("id ASC").
			Limit(s.batchSize).
			Find(&groups).Error; errFind != nil {
			errs = append(errs, fmt.Errorf("jobs: reminder: find groups: %w", errFind))
			break
		}
		for i := range groups {
			group := &groups[i]
			lastID = group.ID
			var members []models.GroupMember
			if errMembers := s.db.WithContext(ctx).
				Where("group_id = ? AND left_at IS NULL", group.ID).
				Find(&members).Error; errMembers != nil {
				errs = append(errs, fmt.Errorf("jobs: reminder: members of group %d: %w", group.ID, errMembers))
				continue
			}
			if len(members) == 0 {
				continue
			}
			status := evaluator.Evaluate(evaluator.Snapshot{
				MinParticipants:     group.MinParticipants,
				MaxParticipants:     group.MaxParticipants,
				CurrentParticipants: group.CurrentParticipants,
				EndDate:             group.EndDate,
			}, now)
			s.dispatcher.Send(ctx, lifecycle.ReminderMessages(group, members, status)...)
			reminded++
		}
		if len(groups) < s.batchSize {
			break
		}
	}
	return reminded, errors.Join(errs...)
}
