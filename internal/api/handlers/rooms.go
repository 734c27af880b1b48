package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/calendar"
)

// calendarHistory is how far back a room feed reaches.
const calendarHistory = 30 * 24 * time.Hour

type RoomHandler struct {
	bookings *booking.Service
	users    *auth.Service
}

func NewRoomHandler(bookings *booking.Service, users *auth.Service) *RoomHandler {
	return &RoomHandler{bookings: bookings, users: users}
}

// List hides inactive rooms unless an admin asks for them.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true" &&
		middleware.GetPrincipal(r.Context()).IsAdmin()

	rooms, err := h.bookings.ListRooms(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	room, err := h.bookings.GetRoom(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.RoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.bookings.CreateRoom(r.Context(), middleware.GetPrincipal(r.Context()), req.Input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.RoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.bookings.UpdateRoom(r.Context(), middleware.GetPrincipal(r.Context()), id, req.Input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.bookings.DeactivateRoom(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Calendar serves the room's confirmed bookings as an iCalendar feed.
func (h *RoomHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	now := time.Now()
	room, bookings, err := h.bookings.RoomCalendar(r.Context(), id, now.Add(-calendarHistory))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	emails := make(map[uuid.UUID]string)
	feed := make([]calendar.Feed, 0, len(bookings))
	for i := range bookings {
		b := &bookings[i]
		email, seen := emails[b.OrganizerID]
		if !seen {
			if u, err := h.users.GetUserByID(r.Context(), b.OrganizerID); err == nil {
				email = u.Email
			}
			emails[b.OrganizerID] = email
		}
		feed = append(feed, calendar.Feed{Booking: b, Room: room, OrganizerEmail: email})
	}

	writeCalendar(w, r, room.Name, slug(room.Name)+".ics", feed, h.bookings.Location(), now)
}

// Availability answers for every active room, or the ids in ?room_id=a,b.
func (h *RoomHandler) Availability(w http.ResponseWriter, r *http.Request) {
	window, ok := availabilityWindow(w, r)
	if !ok {
		return
	}

	var ids []uuid.UUID
	if raw := r.URL.Query().Get("room_id"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				writeValidation(w, map[string]string{"room_id": "Invalid room ID"})
				return
			}
			ids = append(ids, id)
		}
	}

	h.writeAvailability(w, r, window, ids...)
}

func (h *RoomHandler) RoomAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	window, ok := availabilityWindow(w, r)
	if !ok {
		return
	}
	if _, err := h.bookings.GetRoom(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeAvailability(w, r, window, id)
}

func (h *RoomHandler) writeAvailability(w http.ResponseWriter, r *http.Request, window booking.Interval, ids ...uuid.UUID) {
	statuses, err := h.bookings.Availability(r.Context(), window, ids...)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AvailabilityResponse{Start: window.Start, End: window.End, Rooms: statuses})
}

// availabilityWindow reads ?at= (an instant) or ?start=&end=. The default is now.
func availabilityWindow(w http.ResponseWriter, r *http.Request) (booking.Interval, bool) {
	at, err := queryTime(r, "at")
	if err != nil {
		writeValidation(w, map[string]string{"at": "Must be an RFC 3339 timestamp"})
		return booking.Interval{}, false
	}
	start, err := queryTime(r, "start")
	if err != nil {
		writeValidation(w, map[string]string{"start": "Must be an RFC 3339 timestamp"})
		return booking.Interval{}, false
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeValidation(w, map[string]string{"end": "Must be an RFC 3339 timestamp"})
		return booking.Interval{}, false
	}

	switch {
	case start != nil || end != nil:
		if start == nil || end == nil {
			writeValidation(w, map[string]string{"start": "start and end must be given together"})
			return booking.Interval{}, false
		}
		return booking.Interval{Start: *start, End: *end}, true
	case at != nil:
		return booking.At(*at), true
	default:
		return booking.At(time.Now()), true
	}
}

func writeCalendar(w http.ResponseWriter, r *http.Request, name, filename string, feed []calendar.Feed, loc *time.Location, now time.Time) {
	var buf bytes.Buffer
	if err := calendar.WriteCalendar(&buf, name, feed, loc, now); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "calendar"
	}
	return out
}
