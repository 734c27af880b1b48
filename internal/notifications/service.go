// Package notifications serves the in-app inbox written by the booking
// service and the reminder scanner.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type Filter struct {
	UnreadOnly bool
	Offset     int
	Limit      int
}

type Page struct {
	Items  []models.Notification
	Total  int64
	Unread int64
}

// List returns the caller's notifications, newest first. Total counts the
// filtered set; Unread is the caller's overall unread count.
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter) (*Page, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", actor.UserID)
	if f.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	page := &Page{}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.UserID, false).
		Count(&page.Unread).Error; err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("counting notifications: %w", err)
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&page.Items).Error; err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return page, nil
}

// MarkRead only touches the caller's own notifications.
func (s *Service) MarkRead(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, actor.UserID).
		Updates(map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("marking notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor auth.Principal) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.UserID, false).
		Updates(map[string]any{"is_read": true, "read_at": s.now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("marking notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
