package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

type User struct {
	Base
	Email              string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash       string `json:"-"`
	Name               string `json:"name"`
	Role               Role   `gorm:"type:varchar(16);not null" json:"role"`
	IsActive           bool   `json:"is_active"`
	MustChangePassword bool   `json:"must_change_password"`

	// Activation is the first-login flow: an admin creates the account and the
	// user sets a password through a one-time link.
	ActivationTokenHash string     `gorm:"index" json:"-"`
	ActivationExpiresAt *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// PasswordResetToken is single use; only the SHA-256 of the token is stored.
type PasswordResetToken struct {
	Base
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
