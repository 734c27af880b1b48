package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/database/models"
)

const dateLayout = "2006-01-02"

type RepeatRequest struct {
	Type     string `json:"type"`
	Interval int    `json:"interval,omitempty"`
	Count    int    `json:"count,omitempty"`
	// Until is an inclusive calendar date (YYYY-MM-DD) in the booking time zone.
	Until    string `json:"until,omitempty"`
	Weekdays []int  `json:"weekdays,omitempty"`
}

// Input converts the request; a bad date is reported under repeat_until.
func (r *RepeatRequest) Input(loc *time.Location, errors map[string]string) booking.RepeatInput {
	if r == nil {
		return booking.RepeatInput{Type: models.RepeatNone}
	}
	in := booking.RepeatInput{
		Type:     models.RepeatType(r.Type),
		Interval: r.Interval,
		Count:    r.Count,
		Weekdays: r.Weekdays,
	}
	if r.Until != "" {
		until, err := time.ParseInLocation(dateLayout, r.Until, loc)
		if err != nil {
			errors["repeat_until"] = "Until must be a date (YYYY-MM-DD)"
		} else {
			in.Until = &until
		}
	}
	switch in.Type {
	case "", models.RepeatNone, models.RepeatDaily, models.RepeatWeekly, models.RepeatCustom:
	default:
		errors["repeat_type"] = "Repeat type must be none, daily, weekly or custom"
	}
	return in
}

type CreateBookingRequest struct {
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	RoomID          string         `json:"room_id"`
	OrganizerID     string         `json:"organizer_id,omitempty"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Participants    []string       `json:"participants,omitempty"`
	Repeat          *RepeatRequest `json:"repeat,omitempty"`
	Status          string         `json:"status,omitempty"`
	RemindMe        bool           `json:"remind_me"`
	ReminderMinutes int            `json:"reminder_minutes,omitempty"`
	Override        bool           `json:"override,omitempty"`
}

// Input converts the request into service input. Business rules are checked
// by the booking service; only decoding problems are reported here.
func (r CreateBookingRequest) Input(loc *time.Location) (booking.CreateInput, map[string]string) {
	errors := make(map[string]string)

	roomID, err := uuid.Parse(r.RoomID)
	if err != nil {
		errors["room_id"] = "Invalid room ID"
	}
	var organizerID uuid.UUID
	if r.OrganizerID != "" {
		if organizerID, err = uuid.Parse(r.OrganizerID); err != nil {
			errors["organizer_id"] = "Invalid organizer ID"
		}
	}

	return booking.CreateInput{
		Title:        r.Title,
		Description:  r.Description,
		RoomID:       roomID,
		OrganizerID:  organizerID,
		Start:        r.StartTime,
		End:          r.EndTime,
		Participants: r.Participants,
		Repeat:       r.Repeat.Input(loc, errors),
		Status:       models.BookingStatus(r.Status),
		RemindMe:     r.RemindMe,
		ReminderMins: r.ReminderMinutes,
		Override:     r.Override,
	}, errors
}

type UpdateBookingRequest struct {
	Title           *string        `json:"title,omitempty"`
	Description     *string        `json:"description,omitempty"`
	RoomID          *string        `json:"room_id,omitempty"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Participants    *[]string      `json:"participants,omitempty"`
	Repeat          *RepeatRequest `json:"repeat,omitempty"`
	RemindMe        *bool          `json:"remind_me,omitempty"`
	ReminderMinutes *int           `json:"reminder_minutes,omitempty"`
	Override        bool           `json:"override,omitempty"`
}

func (r UpdateBookingRequest) Input(loc *time.Location) (booking.UpdateInput, map[string]string) {
	errors := make(map[string]string)
	in := booking.UpdateInput{
		Title:        r.Title,
		Description:  r.Description,
		Start:        r.StartTime,
		End:          r.EndTime,
		Participants: r.Participants,
		RemindMe:     r.RemindMe,
		ReminderMins: r.ReminderMinutes,
		Override:     r.Override,
	}
	if r.RoomID != nil {
		id, err := uuid.Parse(*r.RoomID)
		if err != nil {
			errors["room_id"] = "Invalid room ID"
		} else {
			in.RoomID = &id
		}
	}
	if r.Repeat != nil {
		repeat := r.Repeat.Input(loc, errors)
		in.Repeat = &repeat
	}
	return in, errors
}

type ConfirmRequest struct {
	Override bool `json:"override,omitempty"`
}

// ConflictResponse is the 409 body: every clash, not just the first.
type ConflictResponse struct {
	Error     string             `json:"error"`
	Conflicts []booking.Conflict `json:"conflicts"`
}

type CheckResponse struct {
	Available bool               `json:"available"`
	Conflicts []booking.Conflict `json:"conflicts"`
}

type OccurrencesResponse struct {
	BookingID   string             `json:"booking_id"`
	Occurrences []booking.Interval `json:"occurrences"`
}

type AvailabilityResponse struct {
	Start time.Time            `json:"start"`
	End   time.Time            `json:"end"`
	Rooms []booking.RoomStatus `json:"rooms"`
}

// CheckBookingRequest is a dry run; ExcludeBookingID is set when checking an edit.
type CheckBookingRequest struct {
	CreateBookingRequest
	ExcludeBookingID string `json:"exclude_booking_id,omitempty"`
}
