// Package lifecycle implements the group state machine: creation, joins,
// departures, updates, cancellation, final payments and expiration.
//
// Every write takes the per-group lock and commits through a conditional
// update keyed on the group's version, so concurrent writers in other
// processes cannot push a group past capacity or close it twice.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/apperr"
	"github.com/router-for-me/GroupBuyBusiness/internal/grouplock"
	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"github.com/router-for-me/GroupBuyBusiness/internal/notify"
	"github.com/router-for-me/GroupBuyBusiness/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	defaultDepositPercent  = 10
	defaultPageSize        = 20
	defaultMaxPageSize     = 100
	defaultLockTTL         = 15 * time.Second
	maxWriteAttempts       = 8
	minGroupNameLength     = 3
	minGroupParticipants   = 2
	tracerName             = "github.com/router-for-me/GroupBuyBusiness/internal/lifecycle"
	transitionSourceJoin   = "join"
	transitionSourceSweep  = "sweep"
	transitionSourceCancel = "cancel"
	transitionSourcePay    = "final_payment"
)

var tracer = otel.Tracer(tracerName)

// errStaleGroup reports that the conditional update matched no row.
var errStaleGroup = errors.New("lifecycle: group changed concurrently")

// Options configures a Service. Zero values select defaults.
type Options struct {
	Locks           grouplock.Locker
	Payments        payment.Provider
	Notifier        notify.Notifier
	NotifyTimeout   time.Duration
	Now             func() time.Time
	DepositPercent  decimal.Decimal
	DefaultPageSize int
	MaxPageSize     int
	LockTTL         time.Duration
	// MinCapacity is the smallest maxParticipants a group may have. Zero
	// only requires maxParticipants >= minParticipants.
	MinCapacity     int
}

// Service runs group lifecycle operations against the database.
type Service struct {
	db              *gorm.DB
	locks           grouplock.Locker
	payments        payment.Provider
	dispatcher      *notify.Dispatcher
	now             func() time.Time
	depositPercent  decimal.Decimal
	defaultPageSize int
	maxPageSize     int
	lockTTL         time.Duration
	minCapacity     int
}

// New constructs a Service.
func New(db *gorm.DB, opts Options) *Service {
	s := &Service{
		db:              db,
		locks:           opts.Locks,
		payments:        opts.Payments,
		dispatcher:      notify.NewDispatcher(opts.Notifier, opts.NotifyTimeout),
		now:             opts.Now,
		depositPercent:  opts.DepositPercent,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		lockTTL:         opts.LockTTL,
		minCapacity:     opts.MinCapacity,
	}
	if s.locks == nil {
		s.locks = grouplock.NewMemoryLocker()
	}
	if s.payments == nil {
		s.payments = payment.NewStubProvider(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.depositPercent.IsZero() {
		s.depositPercent = decimal.NewFromInt(defaultDepositPercent)
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = defaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = defaultMaxPageSize
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) lockGroup(ctx context.Context, op string, groupID uint64) (grouplock.Unlock, error) {
	unlock, err := s.locks.Lock(ctx, grouplock.GroupKey(groupID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock group %d: %w", op, groupID, err)
	}
	return unlock, nil
}

func (s *Service) loadGroup(ctx context.Context, conn *gorm.DB, op string, groupID uint64) (*models.Group, error) {
	var group models.Group
	if errFind := conn.WithContext(ctx).Preload("Product").Where("id = ?", groupID).Take(&group).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "group %d not found", groupID)
		}
		return nil, fmt.Errorf("%s: load group: %w", op, errFind)
	}
	return &group, nil
}

func (s *Service) activeMembership(ctx context.Context, conn *gorm.DB, groupID, userID uint64) (*models.GroupMember, error) {
	var member models.GroupMember
	errFind := conn.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Take(&member).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	return &member, nil
}

func (s *Service) activeMembers(ctx context.Context, groupID uint64) ([]models.GroupMember, error) {
	var members []models.GroupMember
	if errFind := s.db.WithContext(ctx).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Order("joined_at ASC").
		Find(&members).Error; errFind != nil {
		return nil, errFind
	}
	return members, nil
}

// casGroup applies updates only if the group still has the version and
// status the caller read.
func casGroup(tx *gorm.DB, group *models.Group, expected models.GroupStatus, now time.Time, updates map[string]any) error {
	updates["version"] = group.Version + 1
	updates["updated_at"] = now
	res := tx.Model(&models.Group{}).
		Where("id = ? AND version = ? AND status = ?", group.ID, group.Version, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleGroup
	}
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func groupAttr(groupID uint64) attribute.KeyValue {
	return attribute.Int64("group.id", int64(groupID))
}

func userAttr(userID uint64) attribute.KeyValue {
	return attribute.Int64("user.id", int64(userID))
}
