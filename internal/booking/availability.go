package booking

import (
	"time"

	"github.com/google/uuid"
)

type RoomRef struct {
	ID   uuid.UUID
	Name string
}

// RoomStatus answers "is this room free during the window". When busy, the
// Booking fields describe the earliest occurrence touching the window.
type RoomStatus struct {
	RoomID      uuid.UUID  `json:"room_id"`
	RoomName    string     `json:"room_name"`
	Free        bool       `json:"free"`
	BookingID   *uuid.UUID `json:"booking_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	OrganizerID *uuid.UUID `json:"organizer_id,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	BusyUntil   *time.Time `json:"busy_until,omitempty"`
}

// Availability runs the conflict test for each room independently. existing
// is keyed by room ID.
func Availability(rooms []RoomRef, existing map[uuid.UUID][]Existing, window Interval) []RoomStatus {
	out := make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		status := RoomStatus{RoomID: room.ID, RoomName: room.Name, Free: true}

		result := Check(CheckRequest{
			Candidates: []Interval{window},
			Existing:   existing[room.ID],
		})
		if len(result.Conflicts) > 0 {
			c := result.Conflicts[0]
			bookingID, organizerID, until := c.BookingID, c.OrganizerID, c.Occurrence.End
			status.Free = false
			status.BookingID = &bookingID
			status.Title = c.Title
			status.OrganizerID = &organizerID
			status.BusyUntil = &until
		}

		out = append(out, status)
	}
	return out
}
