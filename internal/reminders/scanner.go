// Package reminders sends the one reminder email a booking may ask for.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
	"gorm.io/gorm"
)

const batchSize = 500

type Result struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Stale   int `json:"stale"`
}

type Scanner struct {
	db      *gorm.DB
	sender  mail.Sender
	logger  *slog.Logger
	loc     *time.Location
	baseURL string
	maxLead time.Duration
	now     func() time.Time
}

type Option func(*Scanner)

func WithClock(now func() time.Time) Option   { return func(s *Scanner) { s.now = now } }
func WithLocation(loc *time.Location) Option { return func(s *Scanner) { s.loc = loc } }
func WithBaseURL(url string) Option          { return func(s *Scanner) { s.baseURL = strings.TrimRight(url, "/") } }

// NewScanner needs the same maximum lead the booking service enforces; it
// bounds the candidate query.
func NewScanner(db *gorm.DB, sender mail.Sender, logger *slog.Logger, maxLead time.Duration, opts ...Option) *Scanner {
	s := &Scanner{
		db:      db,
		sender:  sender,
		logger:  logger,
		loc:     time.UTC,
		maxLead: maxLead,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan delivers due reminders. A booking is claimed (reminder_sent flipped
// from false to true) before its email is sent, so concurrent or repeated
// scans send at most one reminder per booking. A failed send is logged and
// not retried.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	var res Result

	var candidates []models.Booking
	if err := s.db.WithContext(ctx).
		Where("remind_me = ? AND reminder_sent = ? AND status = ? AND start_time <= ?",
			true, false, models.BookingStatusConfirmed, now.Add(s.maxLead)).
		Order("start_time").
		Limit(batchSize).
		Find(&candidates).Error; err != nil {
		return res, fmt.Errorf("loading reminder candidates: %w", err)
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b := &candidates[i]
		if now.Before(b.StartTime.Add(-b.ReminderLead())) {
			continue
		}

		claimed, err := s.claim(ctx, b.ID, now)
		if err != nil {
			return res, err
		}
		if !claimed {
			continue
		}
		res.Claimed++

		if !now.Before(b.EndTime) {
			res.Stale++
			s.logger.Info("skipping reminder for finished booking", "booking_id", b.ID)
			continue
		}

		if err := s.deliver(ctx, b); err != nil {
			res.Failed++
			s.logger.Error("failed to send reminder", "booking_id", b.ID, "error", err)
			continue
		}
		res.Sent++
	}

	if res.Claimed > 0 {
		s.logger.Info("reminder scan finished",
			"claimed", res.Claimed,
			"sent", res.Sent,
			"failed", res.Failed,
			"stale", res.Stale,
		)
	}
	return res, nil
}

func (s *Scanner) claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]any{"reminder_sent": true, "reminder_sent_at": now})
	if r.Error != nil {
		return false, fmt.Errorf("claiming reminder: %w", r.Error)
	}
	return r.RowsAffected == 1, nil
}

func (s *Scanner) deliver(ctx context.Context, b *models.Booking) error {
	db := s.db.WithContext(ctx)

	var organizer models.User
	if err := db.First(&organizer, "id = ?", b.OrganizerID).Error; err != nil {
		return fmt.Errorf("loading organizer: %w", err)
	}
	var room models.Room
	if err := db.Unscoped().First(&room, "id = ?", b.RoomID).Error; err != nil {
		return fmt.Errorf("loading room: %w", err)
	}

	data := mail.BookingData{Booking: b, Room: &room, Location: s.loc}
	if s.baseURL != "" {
		data.Link = fmt.Sprintf("%s/bookings/%s", s.baseURL, b.ID)
	}
	msg, err := mail.BookingMessage(models.NotificationReminder, data, mail.Recipients(organizer.Email, b.Participants))
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		return err
	}

	n := models.Notification{
		UserID:       b.OrganizerID,
		Type:         models.NotificationReminder,
		Title:        "Upcoming: " + b.Title,
		Message:      fmt.Sprintf("Starts %s in %s", b.StartTime.In(s.loc).Format(time.Kitchen), room.Name),
		ResourceType: "booking",
		ResourceID:   b.ID.String(),
	}
	if err := db.Create(&n).Error; err != nil {
		s.logger.Warn("failed to store reminder notification", "booking_id", b.ID, "error", err)
	}
	return nil
}
