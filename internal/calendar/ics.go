// Package calendar exports bookings as iCalendar and pushes them to
// connected Google calendars.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/teambition/rrule-go"
)

const productID = "-//roombook//Room Booking//EN"

var weekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RecurrenceOption converts a booking's repeat fields into an RRULE. It
// returns nil for single bookings.
func RecurrenceOption(b *models.Booking, loc *time.Location) *rrule.ROption {
	if loc == nil {
		loc = time.UTC
	}
	opt := &rrule.ROption{Count: b.RepeatCount, Interval: b.RepeatInterval}
	switch b.RepeatType {
	case models.RepeatDaily:
		opt.Freq = rrule.DAILY
	case models.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
	case models.RepeatCustom:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 0
		for _, d := range b.CustomDays {
			if d >= 0 && d < len(weekdays) {
				opt.Byweekday = append(opt.Byweekday, weekdays[d])
			}
		}
	default:
		return nil
	}
	if b.RepeatUntil != nil {
		// the stored date is inclusive in the booking time zone
		y, m, d := b.RepeatUntil.In(loc).Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}
	return opt
}

// Event builds the VEVENT for a booking. Times are written in loc so that
// recurring events keep their wall-clock time across DST changes.
func Event(b *models.Booking, room *models.Room, organizerEmail string, loc *time.Location, stamp time.Time) *ical.Event {
	if loc == nil {
		loc = time.UTC
	}
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, b.ID.String()+"@roombook")
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, b.StartTime.In(loc))
	ev.Props.SetDateTime(ical.PropDateTimeEnd, b.EndTime.In(loc))
	ev.Props.SetText(ical.PropSummary, b.Title)
	if b.Description != "" {
		ev.Props.SetText(ical.PropDescription, b.Description)
	}
	if room != nil {
		location := room.Name
		if room.Location != "" {
			location += ", " + room.Location
		}
		ev.Props.SetText(ical.PropLocation, location)
	}

	switch b.Status {
	case models.BookingStatusCancelled:
		ev.Props.SetText(ical.PropStatus, "CANCELLED")
	case models.BookingStatusPending:
		ev.Props.SetText(ical.PropStatus, "TENTATIVE")
	default:
		ev.Props.SetText(ical.PropStatus, "CONFIRMED")
	}

	if organizerEmail != "" {
		org := ical.NewProp(ical.PropOrganizer)
		org.Value = "mailto:" + organizerEmail
		ev.Props.Set(org)
	}
	for _, p := range b.Participants {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = "mailto:" + p
		ev.Props.Add(attendee)
	}

	if opt := RecurrenceOption(b, loc); opt != nil {
		ev.Props.SetRecurrenceRule(opt)
	}
	return ev
}

// Feed pairs a booking with what Event needs to render it.
type Feed struct {
	Booking        *models.Booking
	Room           *models.Room
	OrganizerEmail string
}

// WriteCalendar encodes the bookings as a single VCALENDAR.
func WriteCalendar(w io.Writer, name string, items []Feed, loc *time.Location, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}
	for _, item := range items {
		cal.Children = append(cal.Children, Event(item.Booking, item.Room, item.OrganizerEmail, loc, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}
