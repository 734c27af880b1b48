package tasks

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher is the API server's side of the queue. It turns booking changes
// and account tokens into tasks for the worker.
type Dispatcher struct {
	client   Enqueuer
	baseURL  string
	tokenTTL time.Duration
}

var (
	_ booking.Dispatcher = (*Dispatcher)(nil)
	_ auth.Notifier      = (*Dispatcher)(nil)
	_ mail.Sender        = (*Dispatcher)(nil)
)

func NewDispatcher(client Enqueuer, baseURL string, tokenTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokenTTL: tokenTTL,
	}
}

func (d *Dispatcher) BookingChanged(ctx context.Context, kind booking.EventKind, b *models.Booking) error {
	notify, err := NewBookingNotifyTask(BookingNotifyPayload{BookingID: b.ID, Kind: kind})
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, notify); err != nil {
		return fmt.Errorf("enqueueing booking notification: %w", err)
	}

	sync, err := NewCalendarSyncTask(CalendarSyncPayload{BookingID: b.ID})
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, sync); err != nil {
		return fmt.Errorf("enqueueing calendar sync: %w", err)
	}
	return nil
}

// Send queues an already rendered message.
func (d *Dispatcher) Send(ctx context.Context, msg mail.Message) error {
	if len(msg.To) == 0 {
		return mail.ErrNoRecipients
	}
	task, err := NewEmailTask(msg)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing email: %w", err)
	}
	return nil
}

func (d *Dispatcher) ActivationIssued(ctx context.Context, user *models.User, token string) error {
	msg, err := mail.ActivationMessage(user, d.link("/activate", token), d.tokenTTL)
	if err != nil {
		return err
	}
	return d.Send(ctx, msg)
}

func (d *Dispatcher) PasswordResetIssued(ctx context.Context, user *models.User, token string) error {
	msg, err := mail.PasswordResetMessage(user, d.link("/reset-password", token), d.tokenTTL)
	if err != nil {
		return err
	}
	return d.Send(ctx, msg)
}

func (d *Dispatcher) link(path, token string) string {
	return d.baseURL + path + "?token=" + url.QueryEscape(token)
}
