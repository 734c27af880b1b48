package models

import (
	"time"

	"github.com/google/uuid"
)

type RepeatType string

const (
	RepeatNone   RepeatType = "none"
	RepeatDaily  RepeatType = "daily"
	RepeatWeekly RepeatType = "weekly"
	RepeatCustom RepeatType = "custom"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusPending, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is the head of a (possibly recurring) series. Occurrences are never
// stored; they are expanded from the repeat fields on demand.
type Booking struct {
	Base
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	RoomID      uuid.UUID `gorm:"type:uuid;not null;index:idx_bookings_room_window,priority:1" json:"room_id"`
	OrganizerID uuid.UUID `gorm:"type:uuid;not null;index" json:"organizer_id"`

	StartTime time.Time `gorm:"not null;index:idx_bookings_room_window,priority:2" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	// SeriesEnd is the end of the last occurrence, kept so range queries can
	// prune without expanding every series.
	SeriesEnd time.Time `gorm:"not null;index:idx_bookings_room_window,priority:3" json:"series_end"`

	Participants StringList `gorm:"type:text" json:"participants"`

	RepeatType     RepeatType `gorm:"type:varchar(16);not null" json:"repeat_type"`
	RepeatInterval int        `json:"repeat_interval"`
	RepeatCount    int        `json:"repeat_count"`
	RepeatUntil    *time.Time `json:"repeat_until,omitempty"`
	CustomDays     IntList    `gorm:"type:text" json:"custom_days"`

	Status      BookingStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	CancelledBy *uuid.UUID    `gorm:"type:uuid" json:"cancelled_by,omitempty"`

	RemindMe        bool       `json:"remind_me"`
	ReminderMinutes int        `json:"reminder_minutes"`
	ReminderSent    bool       `gorm:"index" json:"reminder_sent"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`

	AttachmentKey         string `json:"-"`
	AttachmentName        string `json:"attachment_name,omitempty"`
	AttachmentContentType string `json:"attachment_content_type,omitempty"`
	AttachmentSize        int64  `json:"attachment_size,omitempty"`

	CalendarEventID string `json:"-"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) IsRecurring() bool {
	return b.RepeatType != "" && b.RepeatType != RepeatNone
}

// Blocks reports whether the booking occupies its room. Only confirmed
// bookings do.
func (b *Booking) Blocks() bool {
	return b.Status == BookingStatusConfirmed
}

func (b *Booking) ReminderLead() time.Duration {
	return time.Duration(b.ReminderMinutes) * time.Minute
}
