package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/GroupBuyBusiness/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotificationNotFound is returned when marking an unknown notification.
var ErrNotificationNotFound = errors.New("notify: notification not found")

// StoreNotifier persists notifications in the inbox table.
type StoreNotifier struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStoreNotifier constructs a StoreNotifier.
func NewStoreNotifier(db *gorm.DB, now func() time.Time) *StoreNotifier {
	if now == nil {
		now = time.Now
	}
	return &StoreNotifier{db: db, now: now}
}

// Notify implements Notifier.
func (s *StoreNotifier) Notify(ctx context.Context, msg Message) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("notify store: nil db")
	}
	var data datatypes.JSON
	if len(msg.Data) > 0 {
		raw, errMarshal := json.Marshal(msg.Data)
		if errMarshal != nil {
			return fmt.Errorf("notify store: marshal data: %w", errMarshal)
		}
		data = datatypes.JSON(raw)
	}
	row := models.Notification{
		UserID:    msg.UserID,
		Kind:      string(msg.Kind),
		Title:     msg.Title,
		Message:   msg.Body,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("notify store: create: %w", errCreate)
	}
	return nil
}

// List returns the newest notifications of a user.
func (s *StoreNotifier) List(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if errFind := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("notify store: list: %w", errFind)
	}
	return rows, nil
}

// MarkRead stamps a notification of userID as read.
func (s *StoreNotifier) MarkRead(ctx context.Context, userID, id uint64) error {
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Where("read_at IS NULL").
		Update("read_at", s.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("notify store: mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if errCount := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; errCount != nil {
			return fmt.Errorf("notify store: mark read: %w", errCount)
		}
		if count == 0 {
			return ErrNotificationNotFound
		}
	}
	return nil
}
