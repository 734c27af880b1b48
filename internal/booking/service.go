package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventCancelled EventKind = "cancelled"
	EventConfirmed EventKind = "confirmed"
)

// Dispatcher receives committed booking changes for asynchronous follow-up
// work (emails, calendar sync). Errors are logged, never returned to callers.
type Dispatcher interface {
	BookingChanged(ctx context.Context, kind EventKind, b *models.Booking) error
}

type Service struct {
	db         *gorm.DB
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
	audit      *audit.Recorder
	dispatcher Dispatcher
	store      storage.ObjectStore
	maxLead    time.Duration
	maxUpload  int64
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option           { return func(s *Service) { s.loc = loc } }
func WithClock(now func() time.Time) Option            { return func(s *Service) { s.now = now } }
func WithAuditRecorder(r *audit.Recorder) Option       { return func(s *Service) { s.audit = r } }
func WithDispatcher(d Dispatcher) Option               { return func(s *Service) { s.dispatcher = d } }
func WithObjectStore(store storage.ObjectStore) Option { return func(s *Service) { s.store = store } }

// WithMaxReminderLead bounds reminder_minutes so the reminder scan can limit
// its candidate query.
func WithMaxReminderLead(d time.Duration) Option { return func(s *Service) { s.maxLead = d } }

func WithMaxUpload(n int64) Option { return func(s *Service) { s.maxUpload = n } }

func NewService(db *gorm.DB, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:        db,
		logger:    logger,
		loc:       time.UTC,
		now:       time.Now,
		maxLead:   24 * time.Hour,
		maxUpload: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

type RepeatInput struct {
	Type     models.RepeatType
	Interval int
	Count    int
	Until    *time.Time
	Weekdays []int
}

type CreateInput struct {
	Title        string
	Description  string
	RoomID       uuid.UUID
	OrganizerID  uuid.UUID // admins may book on behalf of someone else
	Start        time.Time
	End          time.Time
	Participants []string
	Repeat       RepeatInput
	Status       models.BookingStatus
	RemindMe     bool
	ReminderMins int
	Override     bool
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title        *string
	Description  *string
	RoomID       *uuid.UUID
	Start        *time.Time
	End          *time.Time
	Participants *[]string
	Repeat       *RepeatInput
	RemindMe     *bool
	ReminderMins *int
	Override     bool
}

// Result is returned by every write. Conflicts is non-empty only when an
// admin override committed despite clashes.
type Result struct {
	Booking *models.Booking `json:"booking"`
	CheckResult
}

func applyRepeat(b *models.Booking, r RepeatInput) {
	b.RepeatType = r.Type
	if b.RepeatType == "" {
		b.RepeatType = models.RepeatNone
	}
	b.RepeatInterval = r.Interval
	b.RepeatCount = r.Count
	b.RepeatUntil = nil
	if r.Until != nil {
		until := r.Until.UTC()
		b.RepeatUntil = &until
	}
	b.CustomDays = nil
	if b.RepeatType == models.RepeatCustom {
		b.CustomDays = models.IntList(r.Weekdays)
	}
}

// prepare validates b in place and returns its expansion. Nothing is written.
func (s *Service) prepare(b *models.Booking) (Series, error) {
	verr := &ValidationError{}

	b.Title = validation.CleanText(b.Title, validation.MaxTitleLength)
	b.Description = validation.CleanText(b.Description, validation.MaxDescriptionLength)
	if b.Title == "" {
		verr.add("title", "title is required")
	}
	if b.RoomID == uuid.Nil {
		verr.add("room_id", "room is required")
	}

	participants, perrs := validation.NormalizeParticipants(b.Participants)
	for field, msg := range perrs {
		if field == "participants" {
			verr.add("participants", msg)
		} else {
			verr.add("participants", fmt.Sprintf("%s: %s", field, msg))
		}
	}
	b.Participants = participants

	if b.RemindMe {
		lead := time.Duration(b.ReminderMinutes) * time.Minute
		if !validation.IsValidReminderMinutes(b.ReminderMinutes) || lead > s.maxLead {
			verr.add("reminder_minutes", fmt.Sprintf("reminder lead must be between 0 and %d minutes", int(s.maxLead/time.Minute)))
		}
	}

	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()

	var series Series
	if b.StartTime.IsZero() || b.EndTime.IsZero() {
		verr.add("start_time", "start and end are required")
	} else {
		var err error
		series, err = Expand(RuleFromBooking(b, s.loc))
		if err != nil {
			verr.add(ruleField(err), err.Error())
		} else {
			b.SeriesEnd = series.Last().End
		}
	}

	return series, verr.orNil()
}

func lockRoom(tx *gorm.DB, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storageError("locking room", err)
	}
	return &room, nil
}

// loadBlocking returns the confirmed bookings in roomID whose series span
// intersects window, expanded.
func (s *Service) loadBlocking(tx *gorm.DB, roomID uuid.UUID, window Interval, exclude uuid.UUID) ([]Existing, error) {
	query := tx.Where(
		"room_id = ? AND status = ? AND start_time < ? AND series_end > ?",
		roomID, models.BookingStatusConfirmed, window.End, window.Start,
	)
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}

	var rows []models.Booking
	if err := query.Order("start_time").Find(&rows).Error; err != nil {
		return nil, storageError("loading bookings", err)
	}
	return s.toExisting(rows), nil
}

func (s *Service) toExisting(rows []models.Booking) []Existing {
	out := make([]Existing, 0, len(rows))
	for i := range rows {
		b := &rows[i]
		series, err := Expand(RuleFromBooking(b, s.loc))
		if err != nil {
			// rows are validated on write; fall back to the first occurrence
			s.logger.Warn("stored booking does not expand", "booking_id", b.ID, "error", err)
			series = Single(Interval{Start: b.StartTime, End: b.EndTime})
		}
		out = append(out, Existing{
			BookingID:   b.ID,
			Title:       b.Title,
			OrganizerID: b.OrganizerID,
			Series:      series,
		})
	}
	return out
}

// commit runs the insert-iff-no-conflict sequence. The room row lock
// serializes writers per room so the loser sees the winner's booking.
func (s *Service) commit(ctx context.Context, b *models.Booking, series Series, override bool, write func(tx *gorm.DB) error) (CheckResult, error) {
	var result CheckResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, b.RoomID)
		if err != nil {
			return err
		}
		if !room.IsActive {
			return ErrRoomInactive
		}
		if room.Capacity > 0 && len(b.Participants) > room.Capacity {
			return &ValidationError{Fields: map[string]string{
				"participants": fmt.Sprintf("room holds %d people", room.Capacity),
			}}
		}

		if b.Blocks() {
			existing, err := s.loadBlocking(tx, b.RoomID, series.Span(), b.ID)
			if err != nil {
				return err
			}
			result = Check(CheckRequest{
				Candidates:       series.Slice(),
				Existing:         existing,
				ExcludeBookingID: b.ID,
				Override:         override,
			})
			if result.Blocked() {
				return &ConflictError{Conflicts: result.Conflicts}
			}
		}

		return write(tx)
	})
	if err != nil {
		return CheckResult{}, classify("committing booking", err)
	}
	return result, nil
}

// classify passes domain errors through and marks everything else retryable.
func classify(op string, err error) error {
	var verr *ValidationError
	var cerr *ConflictError
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr),
		errors.Is(err, ErrStorage), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomInactive),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrCancelled),
		errors.Is(err, ErrNotPending), errors.Is(err, ErrModified),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return storageError(op, err)
}

func notify(tx *gorm.DB, userID uuid.UUID, kind models.NotificationType, title, message string, bookingID uuid.UUID) error {
	n := models.Notification{
		UserID:       userID,
		Type:         kind,
		Title:        title,
		Message:      message,
		ResourceType: audit.ResourceBooking,
		ResourceID:   bookingID.String(),
	}
	if err := tx.Create(&n).Error; err != nil {
		return storageError("creating notification", err)
	}
	return nil
}

func (s *Service) after(ctx context.Context, actor auth.Principal, action string, kind EventKind, b *models.Booking, result CheckResult) {
	details := map[string]any{
		"title":   b.Title,
		"room_id": b.RoomID,
		"start":   b.StartTime,
		"status":  b.Status,
	}
	if result.Overridden {
		details["overridden_conflicts"] = len(result.Conflicts)
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       action,
		ResourceType: audit.ResourceBooking,
		ResourceID:   b.ID.String(),
		Details:      details,
	})

	if s.dispatcher != nil {
		if err := s.dispatcher.BookingChanged(ctx, kind, b); err != nil {
			s.logger.Error("failed to dispatch booking event", "booking_id", b.ID, "event", kind, "error", err)
		}
	}
}

func (s *Service) Create(ctx context.Context, actor auth.Principal, input CreateInput) (*Result, error) {
	if !actor.CanWrite() {
		return nil, ErrForbidden
	}

	organizer := actor.UserID
	if input.OrganizerID != uuid.Nil && input.OrganizerID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		organizer = input.OrganizerID
	}

	status := input.Status
	if status == "" {
		status = models.BookingStatusConfirmed
	}

	b := &models.Booking{
		Title:           input.Title,
		Description:     input.Description,
		RoomID:          input.RoomID,
		OrganizerID:     organizer,
		StartTime:       input.Start,
		EndTime:         input.End,
		Participants:    models.StringList(input.Participants),
		Status:          status,
		RemindMe:        input.RemindMe,
		ReminderMinutes: input.ReminderMins,
	}
	applyRepeat(b, input.Repeat)

	series, err := s.prepare(b)
	if status != models.BookingStatusConfirmed && status != models.BookingStatusPending {
		verr, _ := err.(*ValidationError)
		if verr == nil {
			verr = &ValidationError{}
		}
		verr.add("status", "new bookings are confirmed or pending")
		err = verr
	}
	if err != nil {
		return nil, err
	}

	result, err := s.commit(ctx, b, series, input.Override && actor.IsAdmin(), func(tx *gorm.DB) error {
		if organizer != actor.UserID {
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ? AND is_active = ?", organizer, true).Count(&count).Error; err != nil {
				return storageError("checking organizer", err)
			}
			if count == 0 {
				return &ValidationError{Fields: map[string]string{"organizer_id": "unknown or inactive user"}}
			}
		}
		if err := tx.Create(b).Error; err != nil {
			return storageError("creating booking", err)
		}
		return notify(tx, organizer, models.NotificationBookingCreated,
			"Booking created", fmt.Sprintf("%q is booked from %s", b.Title, b.StartTime.In(s.loc).Format(time.RFC1123)), b.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"room_id", b.RoomID,
		"occurrences", series.Len(),
		"overridden", result.Overridden,
	)
	s.after(ctx, actor, audit.ActionBookingCreate, EventCreated, b, result)

	return &Result{Booking: b, CheckResult: result}, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("loading booking", err)
	}
	return &b, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, input UpdateInput) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.OrganizerID) {
		return nil, ErrForbidden
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, ErrCancelled
	}

	prevStart, prevLead := b.StartTime, b.ReminderMinutes

	if input.Title != nil {
		b.Title = *input.Title
	}
	if input.Description != nil {
		b.Description = *input.Description
	}
	if input.RoomID != nil {
		b.RoomID = *input.RoomID
	}
	if input.Start != nil {
		b.StartTime = *input.Start
	}
	if input.End != nil {
		b.EndTime = *input.End
	}
	if input.Participants != nil {
		b.Participants = models.StringList(*input.Participants)
	}
	if input.Repeat != nil {
		applyRepeat(b, *input.Repeat)
	}
	if input.RemindMe != nil {
		b.RemindMe = *input.RemindMe
	}
	if input.ReminderMins != nil {
		b.ReminderMinutes = *input.ReminderMins
	}

	series, err := s.prepare(b)
	if err != nil {
		return nil, err
	}

	// Only user-editable columns are written. Reminder, calendar and
	// attachment state belong to other writers and may have moved on since load.
	changes := map[string]any{
		"title":            b.Title,
		"description":      b.Description,
		"room_id":          b.RoomID,
		"start_time":       b.StartTime,
		"end_time":         b.EndTime,
		"series_end":       b.SeriesEnd,
		"participants":     b.Participants,
		"repeat_type":      b.RepeatType,
		"repeat_interval":  b.RepeatInterval,
		"repeat_count":     b.RepeatCount,
		"repeat_until":     b.RepeatUntil,
		"custom_days":      b.CustomDays,
		"remind_me":        b.RemindMe,
		"reminder_minutes": b.ReminderMinutes,
	}
	if !b.StartTime.Equal(prevStart) || b.ReminderMinutes != prevLead {
		changes["reminder_sent"] = false
		changes["reminder_sent_at"] = nil
	}

	loadedStatus := b.Status
	result, err := s.commit(ctx, b, series, input.Override && actor.IsAdmin(), func(tx *gorm.DB) error {
		// commit ran (or skipped) the conflict check for loadedStatus
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", b.ID, loadedStatus).
			Updates(changes)
		if res.Error != nil {
			return storageError("updating booking", res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Booking
			if err := tx.Select("status").First(&current, "id = ?", b.ID).Error; err != nil {
				return storageError("reloading booking", err)
			}
			if current.Status == models.BookingStatusCancelled {
				return ErrCancelled
			}
			return ErrModified
		}
		if err := tx.First(b, "id = ?", b.ID).Error; err != nil {
			return storageError("reloading booking", err)
		}
		return notify(tx, b.OrganizerID, models.NotificationBookingUpdated,
			"Booking updated", fmt.Sprintf("%q now starts %s", b.Title, b.StartTime.In(s.loc).Format(time.RFC1123)), b.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking updated", "booking_id", b.ID, "room_id", b.RoomID)
	s.after(ctx, actor, audit.ActionBookingUpdate, EventUpdated, b, result)

	return &Result{Booking: b, CheckResult: result}, nil
}

// Cancel retires a booking through its status. Rows are never deleted.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id uuid.UUID) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.OrganizerID) {
		return nil, ErrForbidden
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, ErrCancelled
	}

	now := s.now().UTC()
	actorID := actor.UserID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status <> ?", b.ID, models.BookingStatusCancelled).
			Updates(map[string]any{
				"status":       models.BookingStatusCancelled,
				"cancelled_at": now,
				"cancelled_by": actorID,
			})
		if res.Error != nil {
			return storageError("cancelling booking", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrCancelled
		}
		return notify(tx, b.OrganizerID, models.NotificationBookingCancelled,
			"Booking cancelled", fmt.Sprintf("%q was cancelled", b.Title), b.ID)
	})
	if err != nil {
		return nil, classify("cancelling booking", err)
	}

	b.Status = models.BookingStatusCancelled
	b.CancelledAt = &now
	b.CancelledBy = &actorID

	s.logger.Info("booking cancelled", "booking_id", b.ID, "by", actorID)
	s.after(ctx, actor, audit.ActionBookingCancel, EventCancelled, b, CheckResult{})
	return b, nil
}

// Confirm promotes a pending booking. It runs the same conflict check as a
// new confirmed booking because pending bookings never hold the slot.
func (s *Service) Confirm(ctx context.Context, actor auth.Principal, id uuid.UUID, override bool) (*Result, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.OrganizerID) {
		return nil, ErrForbidden
	}
	if b.Status != models.BookingStatusPending {
		return nil, ErrNotPending
	}

	series, err := Expand(RuleFromBooking(b, s.loc))
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{ruleField(err): err.Error()}}
	}

	b.Status = models.BookingStatusConfirmed
	result, err := s.commit(ctx, b, series, override && actor.IsAdmin(), func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", b.ID, models.BookingStatusPending).
			Update("status", models.BookingStatusConfirmed)
		if res.Error != nil {
			return storageError("confirming booking", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotPending
		}
		return notify(tx, b.OrganizerID, models.NotificationBookingConfirmed,
			"Booking confirmed", fmt.Sprintf("%q is confirmed", b.Title), b.ID)
	})
	if err != nil {
		return nil, err
	}

	s.after(ctx, actor, audit.ActionBookingConfirm, EventConfirmed, b, result)
	return &Result{Booking: b, CheckResult: result}, nil
}
