package models

import (
	"time"

	"github.com/google/uuid"
)

type CalendarProvider string

const (
	CalendarProviderGoogle CalendarProvider = "google"
)

// CalendarCredential stores a user's calendar OAuth token. The token JSON is
// age-encrypted and never leaves the server.
type CalendarCredential struct {
	Base
	UserID         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_calendar_user_provider,priority:1" json:"user_id"`
	Provider       CalendarProvider `gorm:"type:varchar(32);not null;uniqueIndex:idx_calendar_user_provider,priority:2" json:"provider"`
	CalendarID     string           `json:"calendar_id"`
	AccountEmail   string           `json:"account_email"`
	EncryptedToken []byte           `gorm:"not null" json:"-"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
}

func (CalendarCredential) TableName() string {
	return "calendar_credentials"
}

// EmailSettings is a single-row table edited by admins; it overrides the SMTP
// settings from the environment once saved.
type EmailSettings struct {
	Base
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Username          string `json:"username"`
	EncryptedPassword []byte `json:"-"`
	FromAddress       string `json:"from_address"`
	FromName          string `json:"from_name"`
	Enabled           bool   `json:"enabled"`
}

func (EmailSettings) TableName() string {
	return "email_settings"
}
