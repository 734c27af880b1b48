package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationBookingCreated   NotificationType = "booking_created"
	NotificationBookingUpdated   NotificationType = "booking_updated"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingConfirmed NotificationType = "booking_confirmed"
	NotificationReminder         NotificationType = "booking_reminder"
)

type Notification struct {
	Base
	UserID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_user_read,priority:1" json:"user_id"`
	Type         NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title        string           `gorm:"not null" json:"title"`
	Message      string           `json:"message"`
	ResourceType string           `json:"resource_type,omitempty"`
	ResourceID   string           `json:"resource_id,omitempty"`
	IsRead       bool             `gorm:"index:idx_notifications_user_read,priority:2" json:"is_read"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
