package mail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hugh/roombook/internal/database/models"
)

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"when": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("Mon Jan 2 2006, 15:04 MST")
	},
}).Parse(`
{{define "reminder"}}Reminder: "{{.Booking.Title}}" starts {{when .Booking.StartTime .Location}}.

Room: {{.Room.Name}}{{if .Room.Location}} ({{.Room.Location}}){{end}}
Ends: {{when .Booking.EndTime .Location}}
{{if .Link}}
Details: {{.Link}}
{{end}}{{end}}

{{define "booking_created"}}"{{.Booking.Title}}" has been booked in {{.Room.Name}}.

Starts: {{when .Booking.StartTime .Location}}
Ends: {{when .Booking.EndTime .Location}}{{if ne .Booking.RepeatType "none"}}
Repeats: {{.Booking.RepeatType}}{{end}}
{{if .Link}}
Details: {{.Link}}
{{end}}{{end}}

{{define "booking_updated"}}"{{.Booking.Title}}" in {{.Room.Name}} has changed.

Starts: {{when .Booking.StartTime .Location}}
Ends: {{when .Booking.EndTime .Location}}
{{if .Link}}
Details: {{.Link}}
{{end}}{{end}}

{{define "booking_cancelled"}}"{{.Booking.Title}}" in {{.Room.Name}} on {{when .Booking.StartTime .Location}} has been cancelled.
{{end}}

{{define "booking_confirmed"}}"{{.Booking.Title}}" in {{.Room.Name}} on {{when .Booking.StartTime .Location}} is now confirmed.
{{end}}

{{define "activation"}}Hello {{.Name}},

An account has been created for you. Choose a password to activate it:

{{.Link}}

The link expires in {{.TTL}}.
{{end}}

{{define "password_reset"}}Hello {{.Name}},

Use the link below to reset your password:

{{.Link}}

The link expires in {{.TTL}}. If you did not ask for a reset you can ignore this email.
{{end}}
`))

type BookingData struct {
	Booking  *models.Booking
	Room     *models.Room
	Location *time.Location
	Link     string
}

type AccountData struct {
	Name string
	Link string
	TTL  time.Duration
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// BookingMessage renders one of the booking templates addressed to to.
func BookingMessage(kind models.NotificationType, data BookingData, to []string) (Message, error) {
	var name, subject string
	switch kind {
	case models.NotificationReminder:
		name, subject = "reminder", "Reminder: "+data.Booking.Title
	case models.NotificationBookingCreated:
		name, subject = "booking_created", "Booked: "+data.Booking.Title
	case models.NotificationBookingUpdated:
		name, subject = "booking_updated", "Updated: "+data.Booking.Title
	case models.NotificationBookingCancelled:
		name, subject = "booking_cancelled", "Cancelled: "+data.Booking.Title
	case models.NotificationBookingConfirmed:
		name, subject = "booking_confirmed", "Confirmed: "+data.Booking.Title
	default:
		return Message{}, fmt.Errorf("no template for %q", kind)
	}
	if data.Location == nil {
		data.Location = time.UTC
	}

	body, err := render(name, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, Body: body}, nil
}

func ActivationMessage(user *models.User, link string, ttl time.Duration) (Message, error) {
	body, err := render("activation", AccountData{Name: displayName(user), Link: link, TTL: ttl})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{user.Email}, Subject: "Activate your account", Body: body}, nil
}

func PasswordResetMessage(user *models.User, link string, ttl time.Duration) (Message, error) {
	body, err := render("password_reset", AccountData{Name: displayName(user), Link: link, TTL: ttl})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{user.Email}, Subject: "Reset your password", Body: body}, nil
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Recipients returns the organizer followed by the participants, deduplicated.
func Recipients(organizer string, participants []string) []string {
	seen := make(map[string]bool, len(participants)+1)
	out := make([]string, 0, len(participants)+1)
	for _, addr := range append([]string{organizer}, participants...) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
