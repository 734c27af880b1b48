package dto

import (
	"time"

	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/database/models"
	"golang.org/x/oauth2"
)

type EmailSettingsRequest struct {
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	Username    string  `json:"username,omitempty"`
	Password    *string `json:"password,omitempty"`
	FromAddress string  `json:"from_address"`
	FromName    string  `json:"from_name,omitempty"`
	Enabled     bool    `json:"enabled"`
}

func (r EmailSettingsRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Enabled && r.Host == "" {
		errors["host"] = "Host is required when enabled"
	}
	if r.Port < 0 || r.Port > 65535 {
		errors["port"] = "Port must be between 1 and 65535"
	}
	if r.FromAddress != "" && !validation.IsValidEmail(r.FromAddress) {
		errors["from_address"] = "Invalid email address"
	}
	return errors
}

// EmailSettingsResponse never includes the password, only whether one is set.
type EmailSettingsResponse struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	HasPassword bool      `json:"has_password"`
	FromAddress string    `json:"from_address"`
	FromName    string    `json:"from_name"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func EmailSettingsFromModel(s *models.EmailSettings) EmailSettingsResponse {
	return EmailSettingsResponse{
		Host:        s.Host,
		Port:        s.Port,
		Username:    s.Username,
		HasPassword: len(s.EncryptedPassword) > 0,
		FromAddress: s.FromAddress,
		FromName:    s.FromName,
		Enabled:     s.Enabled,
		UpdatedAt:   s.UpdatedAt,
	}
}

type CalendarCredentialRequest struct {
	CalendarID   string        `json:"calendar_id,omitempty"`
	AccountEmail string        `json:"account_email,omitempty"`
	Token        *oauth2.Token `json:"token"`
}

func (r CalendarCredentialRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Token == nil {
		errors["token"] = "Token is required"
	}
	if r.AccountEmail != "" && !validation.IsValidEmail(r.AccountEmail) {
		errors["account_email"] = "Invalid email address"
	}
	return errors
}
