package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/auth"
)

type AuthHandler struct {
	authService  *auth.Service
	secure       bool
	cookieMaxAge time.Duration
}

// NewAuthHandler issues session cookies alongside the bearer token. secure
// marks them HTTPS-only.
func NewAuthHandler(authService *auth.Service, secure bool, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{authService: authService, secure: secure, cookieMaxAge: sessionTTL}
}

func (h *AuthHandler) setSession(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookieMaxAge.Seconds()),
	})
	if csrf, err := middleware.NewCSRFToken(); err == nil {
		middleware.SetCSRFCookie(w, r, csrf)
	}
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, resp *auth.AuthResponse) {
	h.setSession(w, r, resp.Token)
	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token: resp.Token,
		User:  dto.UserFromModel(resp.User),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, auth.ErrInactiveUser):
			writeError(w, http.StatusForbidden, "Account is inactive")
		case errors.Is(err, auth.ErrNotActivated):
			writeError(w, http.StatusForbidden, "Account has not been activated")
		default:
			writeServiceError(w, r, err)
		}
		return
	}

	h.respondWithSession(w, r, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{middleware.TokenCookie, middleware.CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == middleware.TokenCookie,
			MaxAge:   -1,
		})
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// Activate sets the first password from an emailed token and signs the user in.
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	resp, err := h.authService.Activate(r.Context(), req.Token, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.respondWithSession(w, r, resp)
}

// RequestPasswordReset always answers 202 so callers cannot probe for accounts.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, auth.ErrThrottled) {
			slog.InfoContext(r.Context(), "password reset throttled")
		} else {
			slog.ErrorContext(r.Context(), "password reset request failed", "error", err)
		}
	}
	writeJSON(w, http.StatusAccepted, dto.SuccessResponse{Message: "If the account exists, a reset link has been sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password updated"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UserFromModel(user))
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	err := h.authService.ChangePassword(r.Context(), middleware.GetPrincipal(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password changed"})
}
