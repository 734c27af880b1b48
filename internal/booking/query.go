package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"gorm.io/gorm"
)

// Get is open to every authenticated role.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.load(ctx, id)
}

type ListFilter struct {
	RoomID      uuid.UUID
	OrganizerID uuid.UUID
	Status      models.BookingStatus
	From        *time.Time
	To          *time.Time
	Offset      int
	Limit       int
}

// List filters by series span, so a recurring booking is returned when any
// part of its series falls inside [From, To).
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Booking, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.RoomID != uuid.Nil {
		query = query.Where("room_id = ?", f.RoomID)
	}
	if f.OrganizerID != uuid.Nil {
		query = query.Where("organizer_id = ?", f.OrganizerID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.From != nil {
		query = query.Where("series_end > ?", f.From.UTC())
	}
	if f.To != nil {
		query = query.Where("start_time < ?", f.To.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storageError("counting bookings", err)
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	var bookings []models.Booking
	if err := query.Order("start_time ASC").Offset(f.Offset).Limit(f.Limit).Find(&bookings).Error; err != nil {
		return nil, 0, storageError("listing bookings", err)
	}
	return bookings, total, nil
}

// Occurrences expands a stored booking. A non-nil window keeps only the
// occurrences that intersect it.
func (s *Service) Occurrences(ctx context.Context, id uuid.UUID, window *Interval) ([]Interval, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	series, err := Expand(RuleFromBooking(b, s.loc))
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{ruleField(err): err.Error()}}
	}

	out := make([]Interval, 0, series.Len())
	for occ := range series.All() {
		if window == nil || occ.Overlaps(*window) {
			out = append(out, occ)
		}
	}
	return out, nil
}

// Check is a dry run of Create (or of Update when excludeID is set). It
// validates, expands and reports conflicts without writing anything.
func (s *Service) Check(ctx context.Context, actor auth.Principal, input CreateInput, excludeID uuid.UUID) (*CheckResult, error) {
	b := &models.Booking{
		Base:            models.Base{ID: excludeID},
		Title:           input.Title,
		RoomID:          input.RoomID,
		StartTime:       input.Start,
		EndTime:         input.End,
		Participants:    models.StringList(input.Participants),
		Status:          models.BookingStatusConfirmed,
		RemindMe:        input.RemindMe,
		ReminderMinutes: input.ReminderMins,
	}
	if b.Title == "" {
		b.Title = "availability check"
	}
	applyRepeat(b, input.Repeat)

	series, err := s.prepare(b)
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", b.RoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storageError("loading room", err)
	}
	if !room.IsActive {
		return nil, ErrRoomInactive
	}

	existing, err := s.loadBlocking(s.db.WithContext(ctx), b.RoomID, series.Span(), excludeID)
	if err != nil {
		return nil, err
	}
	result := Check(CheckRequest{
		Candidates:       series.Slice(),
		Existing:         existing,
		ExcludeBookingID: excludeID,
		Override:         input.Override && actor.IsAdmin(),
	})
	return &result, nil
}

// Availability reports, for each active room (or only the given ones), whether
// it is free during window.
func (s *Service) Availability(ctx context.Context, window Interval, roomIDs ...uuid.UUID) ([]RoomStatus, error) {
	if !window.End.After(window.Start) {
		return nil, &ValidationError{Fields: map[string]string{"end": ErrInvalidInterval.Error()}}
	}

	db := s.db.WithContext(ctx)
	roomQuery := db.Where("is_active = ?", true)
	if len(roomIDs) > 0 {
		roomQuery = roomQuery.Where("id IN ?", roomIDs)
	}
	var rooms []models.Room
	if err := roomQuery.Order("name").Find(&rooms).Error; err != nil {
		return nil, storageError("loading rooms", err)
	}
	if len(rooms) == 0 {
		return []RoomStatus{}, nil
	}

	refs := make([]RoomRef, 0, len(rooms))
	ids := make([]uuid.UUID, 0, len(rooms))
	for _, r := range rooms {
		refs = append(refs, RoomRef{ID: r.ID, Name: r.Name})
		ids = append(ids, r.ID)
	}

	var rows []models.Booking
	if err := db.Where(
		"room_id IN ? AND status = ? AND start_time < ? AND series_end > ?",
		ids, models.BookingStatusConfirmed, window.End.UTC(), window.Start.UTC(),
	).Find(&rows).Error; err != nil {
		return nil, storageError("loading bookings", err)
	}

	byRoom := make(map[uuid.UUID][]Existing)
	for i, e := range s.toExisting(rows) {
		byRoom[rows[i].RoomID] = append(byRoom[rows[i].RoomID], e)
	}

	statuses := Availability(refs, byRoom, window)

	organizerIDs := make([]uuid.UUID, 0)
	for _, st := range statuses {
		if st.OrganizerID != nil {
			organizerIDs = append(organizerIDs, *st.OrganizerID)
		}
	}
	if len(organizerIDs) > 0 {
		var users []models.User
		if err := db.Select("id", "name", "email").Where("id IN ?", organizerIDs).Find(&users).Error; err != nil {
			return nil, storageError("loading organizers", err)
		}
		names := make(map[uuid.UUID]string, len(users))
		for _, u := range users {
			names[u.ID] = u.Name
			if u.Name == "" {
				names[u.ID] = u.Email
			}
		}
		for i := range statuses {
			if statuses[i].OrganizerID != nil {
				statuses[i].Organizer = names[*statuses[i].OrganizerID]
			}
		}
	}

	return statuses, nil
}

// RoomCalendar returns the confirmed bookings of a room whose series has not
// ended before since.
func (s *Service) RoomCalendar(ctx context.Context, roomID uuid.UUID, since time.Time) (*models.Room, []models.Booking, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRoomNotFound
		}
		return nil, nil, storageError("loading room", err)
	}

	var bookings []models.Booking
	if err := s.db.WithContext(ctx).
		Where("room_id = ? AND status = ? AND series_end > ?", roomID, models.BookingStatusConfirmed, since.UTC()).
		Order("start_time").
		Find(&bookings).Error; err != nil {
		return nil, nil, storageError("loading bookings", err)
	}
	return &room, bookings, nil
}

type Stats struct {
	ActiveRooms   int64 `json:"active_rooms"`
	RoomsFreeNow  int   `json:"rooms_free_now"`
	MyUpcoming    int64 `json:"my_upcoming"`
	BookingsToday int   `json:"bookings_today"`
}

// DashboardStats counts occurrences, not booking rows, for "today".
func (s *Service) DashboardStats(ctx context.Context, actor auth.Principal) (*Stats, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	stats := &Stats{}

	if err := db.Model(&models.Room{}).Where("is_active = ?", true).Count(&stats.ActiveRooms).Error; err != nil {
		return nil, storageError("counting rooms", err)
	}

	free, err := s.Availability(ctx, At(now))
	if err != nil {
		return nil, err
	}
	for _, st := range free {
		if st.Free {
			stats.RoomsFreeNow++
		}
	}

	if err := db.Model(&models.Booking{}).
		Where("organizer_id = ? AND status <> ? AND series_end > ?", actor.UserID, models.BookingStatusCancelled, now.UTC()).
		Count(&stats.MyUpcoming).Error; err != nil {
		return nil, storageError("counting bookings", err)
	}

	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	today := Interval{Start: dayStart.UTC(), End: dayStart.AddDate(0, 0, 1).UTC()}

	var rows []models.Booking
	if err := db.Where("status = ? AND start_time < ? AND series_end > ?",
		models.BookingStatusConfirmed, today.End, today.Start).Find(&rows).Error; err != nil {
		return nil, storageError("loading bookings", err)
	}
	for _, e := range s.toExisting(rows) {
		for occ := range e.Series.All() {
			if occ.Start.After(today.End) {
				break
			}
			if occ.Overlaps(today) {
				stats.BookingsToday++
			}
		}
	}

	return stats, nil
}
