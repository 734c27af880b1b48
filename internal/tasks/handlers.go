package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/reminders"
	"gorm.io/gorm"
)

// ReminderScanner is satisfied by *reminders.Scanner.
type ReminderScanner interface {
	Scan(ctx context.Context) (reminders.Result, error)
}

// CalendarSyncer is satisfied by *calendar.Syncer.
type CalendarSyncer interface {
	SyncBooking(ctx context.Context, bookingID uuid.UUID) error
}

type Handler struct {
	db      *gorm.DB
	logger  *slog.Logger
	sender  mail.Sender
	scanner ReminderScanner
	syncer  CalendarSyncer
	loc     *time.Location
	baseURL string
}

type HandlerOption func(*Handler)

func WithCalendarSyncer(s CalendarSyncer) HandlerOption {
	return func(h *Handler) { h.syncer = s }
}

func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) { h.loc = loc }
}

func WithBaseURL(url string) HandlerOption {
	return func(h *Handler) { h.baseURL = strings.TrimRight(url, "/") }
}

// NewHandler takes the sender that actually delivers mail (SMTP), not the
// queueing Dispatcher.
func NewHandler(db *gorm.DB, logger *slog.Logger, sender mail.Sender, scanner ReminderScanner, opts ...HandlerOption) *Handler {
	h := &Handler{
		db:      db,
		logger:  logger,
		sender:  sender,
		scanner: scanner,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReminderScan, h.HandleReminderScan)
	mux.HandleFunc(TypeSendEmail, h.HandleSendEmail)
	mux.HandleFunc(TypeBookingNotify, h.HandleBookingNotify)
	mux.HandleFunc(TypeCalendarSync, h.HandleCalendarSync)
}

func (h *Handler) HandleReminderScan(ctx context.Context, t *asynq.Task) error {
	result, err := h.scanner.Scan(ctx)
	if err != nil {
		h.logger.Error("reminder scan failed", "error", err)
		return err
	}
	if result.Claimed > 0 {
		h.logger.Info("reminder scan completed",
			"claimed", result.Claimed,
			"sent", result.Sent,
			"failed", result.Failed,
			"stale", result.Stale,
		)
	}
	return nil
}

func (h *Handler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return h.send(ctx, mail.Message{To: payload.To, Subject: payload.Subject, Body: payload.Body})
}

func (h *Handler) HandleBookingNotify(ctx context.Context, t *asynq.Task) error {
	var payload BookingNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	kind, ok := notificationKinds[payload.Kind]
	if !ok {
		return fmt.Errorf("unknown booking event %q: %w", payload.Kind, asynq.SkipRetry)
	}

	db := h.db.WithContext(ctx)
	var b models.Booking
	if err := db.First(&b, "id = ?", payload.BookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("booking vanished before notification", "booking_id", payload.BookingID)
			return nil
		}
		return fmt.Errorf("loading booking: %w", err)
	}
	var organizer models.User
	if err := db.First(&organizer, "id = ?", b.OrganizerID).Error; err != nil {
		return fmt.Errorf("loading organizer: %w", err)
	}
	var room models.Room
	if err := db.Unscoped().First(&room, "id = ?", b.RoomID).Error; err != nil {
		return fmt.Errorf("loading room: %w", err)
	}

	data := mail.BookingData{Booking: &b, Room: &room, Location: h.loc}
	if h.baseURL != "" {
		data.Link = fmt.Sprintf("%s/bookings/%s", h.baseURL, b.ID)
	}
	msg, err := mail.BookingMessage(kind, data, mail.Recipients(organizer.Email, b.Participants))
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	h.logger.Debug("sending booking notification", "booking_id", b.ID, "event", payload.Kind, "recipients", len(msg.To))
	return h.send(ctx, msg)
}

func (h *Handler) HandleCalendarSync(ctx context.Context, t *asynq.Task) error {
	var payload CalendarSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if h.syncer == nil {
		return nil
	}
	if err := h.syncer.SyncBooking(ctx, payload.BookingID); err != nil {
		h.logger.Error("calendar sync failed", "booking_id", payload.BookingID, "error", err)
		return err
	}
	return nil
}

// send treats an unconfigured mailer as final: retrying cannot help until an
// admin saves settings.
func (h *Handler) send(ctx context.Context, msg mail.Message) error {
	err := h.sender.Send(ctx, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mail.ErrNotConfigured), errors.Is(err, mail.ErrNoRecipients):
		h.logger.Warn("email dropped", "subject", msg.Subject, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		h.logger.Error("email delivery failed", "subject", msg.Subject, "error", err)
		return err
	}
}

var notificationKinds = map[booking.EventKind]models.NotificationType{
	booking.EventCreated:   models.NotificationBookingCreated,
	booking.EventUpdated:   models.NotificationBookingUpdated,
	booking.EventCancelled: models.NotificationBookingCancelled,
	booking.EventConfirmed: models.NotificationBookingConfirmed,
}
