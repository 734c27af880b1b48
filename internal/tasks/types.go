package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/mail"
)

// Task type names
const (
	TypeReminderScan  = "reminder:scan"
	TypeSendEmail     = "email:send"
	TypeBookingNotify = "booking:notify"
	TypeCalendarSync  = "calendar:sync_booking"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// EmailPayload is a fully rendered message.
type EmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func NewEmailTask(msg mail.Message) (*asynq.Task, error) {
	data, err := json.Marshal(EmailPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// BookingNotifyPayload is rendered by the worker, which reloads the booking
// so the email reflects committed state.
type BookingNotifyPayload struct {
	BookingID uuid.UUID         `json:"booking_id"`
	Kind      booking.EventKind `json:"kind"`
}

func NewBookingNotifyTask(payload BookingNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingNotify, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

type CalendarSyncPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func NewCalendarSyncTask(payload CalendarSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCalendarSync, data, asynq.Queue(QueueLow), asynq.MaxRetry(3)), nil
}

// ReminderScanPayload is empty - the scan covers every booking
type ReminderScanPayload struct{}

func NewReminderScanTask() *asynq.Task {
	return asynq.NewTask(TypeReminderScan, nil, asynq.Queue(QueueCritical), asynq.MaxRetry(0))
}
