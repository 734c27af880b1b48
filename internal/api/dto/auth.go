package dto

import (
	"time"

	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/database/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

// TokenPasswordRequest serves both activation and password reset.
type TokenPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r TokenPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	return errors
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r PasswordResetRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidEmail(r.Email) {
		errors["email"] = "A valid email is required"
	}
	return errors
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.CurrentPassword == "" {
		errors["current_password"] = "Current password is required"
	}
	if ok, msg := validation.IsValidPassword(r.NewPassword); !ok {
		errors["new_password"] = msg
	}
	return errors
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Role               string     `json:"role"`
	IsActive           bool       `json:"is_active"`
	MustChangePassword bool       `json:"must_change_password"`
	Activated          bool       `json:"activated"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func UserFromModel(u *models.User) UserDTO {
	return UserDTO{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		Role:               string(u.Role),
		IsActive:           u.IsActive,
		MustChangePassword: u.MustChangePassword,
		Activated:          u.PasswordHash != "",
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
	}
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
}

func (r CreateUserRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidEmail(r.Email) {
		errors["email"] = "A valid email is required"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	if r.Role != "" && !models.Role(r.Role).Valid() {
		errors["role"] = "Role must be admin, user or viewer"
	}
	if r.Password != "" {
		if ok, msg := validation.IsValidPassword(r.Password); !ok {
			errors["password"] = msg
		}
	}
	return errors
}

// CreateUserResponse carries the activation token exactly once.
type CreateUserResponse struct {
	User            UserDTO `json:"user"`
	ActivationToken string  `json:"activation_token,omitempty"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (r UpdateUserRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil && *r.Name == "" {
		errors["name"] = "Name cannot be empty"
	}
	if r.Role != nil && !models.Role(*r.Role).Valid() {
		errors["role"] = "Role must be admin, user or viewer"
	}
	return errors
}
