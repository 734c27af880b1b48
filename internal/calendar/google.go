package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// Events is the slice of the Google Calendar API the syncer needs.
type Events interface {
	Insert(ctx context.Context, calendarID string, ev *gcal.Event) (string, error)
	Update(ctx context.Context, calendarID, eventID string, ev *gcal.Event) error
	Delete(ctx context.Context, calendarID, eventID string) error
}

// EventsFactory builds an Events client authorised by ts.
type EventsFactory func(ctx context.Context, ts oauth2.TokenSource) (Events, error)

type googleEvents struct {
	svc *gcal.Service
}

func GoogleEvents(ctx context.Context, ts oauth2.TokenSource) (Events, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating calendar client: %w", err)
	}
	return &googleEvents{svc: svc}, nil
}

func (g *googleEvents) Insert(ctx context.Context, calendarID string, ev *gcal.Event) (string, error) {
	created, err := g.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (g *googleEvents) Update(ctx context.Context, calendarID, eventID string, ev *gcal.Event) error {
	_, err := g.svc.Events.Update(calendarID, eventID, ev).Context(ctx).Do()
	return err
}

func (g *googleEvents) Delete(ctx context.Context, calendarID, eventID string) error {
	err := g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusGone || apiErr.Code == http.StatusNotFound) {
		return nil
	}
	return err
}

// OAuthConfig returns the client configuration used to refresh stored tokens.
func OAuthConfig(cfg config.CalendarConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}
}

type Option func(*Syncer)

func WithEventsFactory(f EventsFactory) Option {
	return func(s *Syncer) { s.events = f }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Syncer) { s.loc = loc }
}

// Syncer mirrors bookings into the organizer's Google calendar.
type Syncer struct {
	db     *gorm.DB
	creds  *Credentials
	oauth  *oauth2.Config
	events EventsFactory
	logger *slog.Logger
	loc    *time.Location
}

func NewSyncer(db *gorm.DB, creds *Credentials, oauth *oauth2.Config, logger *slog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		db:     db,
		creds:  creds,
		oauth:  oauth,
		events: GoogleEvents,
		logger: logger,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncBooking inserts, updates or deletes the event for a booking. Bookings
// whose organizer has no linked calendar are skipped.
func (s *Syncer) SyncBooking(ctx context.Context, bookingID uuid.UUID) error {
	var b models.Booking
	if err := s.db.WithContext(ctx).Unscoped().First(&b, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("loading booking: %w", err)
	}

	cred, tok, err := s.creds.token(ctx, b.OrganizerID)
	if errors.Is(err, ErrNotLinked) {
		return nil
	}
	if err != nil {
		return err
	}

	ts := s.oauth.TokenSource(ctx, tok)
	client, err := s.events(ctx, ts)
	if err != nil {
		return err
	}

	syncErr := s.push(ctx, client, cred.CalendarID, &b)

	var refreshed *oauth2.Token
	if current, err := ts.Token(); err == nil && current.AccessToken != tok.AccessToken {
		refreshed = current
	}
	if err := s.creds.record(ctx, cred, refreshed, syncErr); err != nil {
		s.logger.Warn("failed to record calendar sync", "booking_id", b.ID, "error", err)
	}

	if syncErr != nil {
		return fmt.Errorf("syncing booking %s: %w", b.ID, syncErr)
	}
	return nil
}

func (s *Syncer) push(ctx context.Context, client Events, calendarID string, b *models.Booking) error {
	if b.Status == models.BookingStatusCancelled || b.DeletedAt.Valid {
		if b.CalendarEventID == "" {
			return nil
		}
		if err := client.Delete(ctx, calendarID, b.CalendarEventID); err != nil {
			return err
		}
		s.logger.Info("calendar event deleted", "booking_id", b.ID, "event_id", b.CalendarEventID)
		return s.setEventID(ctx, b, "")
	}

	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", b.RoomID).Error; err != nil {
		return fmt.Errorf("loading room: %w", err)
	}
	ev := s.event(b, &room)

	if b.CalendarEventID != "" {
		return client.Update(ctx, calendarID, b.CalendarEventID, ev)
	}
	id, err := client.Insert(ctx, calendarID, ev)
	if err != nil {
		return err
	}
	s.logger.Info("calendar event created", "booking_id", b.ID, "event_id", id)
	return s.setEventID(ctx, b, id)
}

func (s *Syncer) setEventID(ctx context.Context, b *models.Booking, id string) error {
	return s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", b.ID).
		UpdateColumn("calendar_event_id", id).Error
}

func (s *Syncer) event(b *models.Booking, room *models.Room) *gcal.Event {
	location := room.Name
	if room.Location != "" {
		location += ", " + room.Location
	}
	ev := &gcal.Event{
		Summary:     b.Title,
		Description: b.Description,
		Location:    location,
		Start: &gcal.EventDateTime{
			DateTime: b.StartTime.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: b.EndTime.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
	}
	if b.Status == models.BookingStatusPending {
		ev.Status = "tentative"
	}
	for _, p := range b.Participants {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: p})
	}
	if opt := RecurrenceOption(b, s.loc); opt != nil {
		ev.Recurrence = []string{"RRULE:" + opt.RRuleString()}
	}
	return ev
}
