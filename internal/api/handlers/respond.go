package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/calendar"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/notifications"
)

// retryAfterSeconds is sent with 503 responses for transient storage failures.
const retryAfterSeconds = "5"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func writeValidation(w http.ResponseWriter, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) dto.PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := dto.PaginationParams{Page: page, PerPage: perPage}
	p.Normalize()
	return p
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	var cerr *booking.ConflictError

	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr.Fields)
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, dto.ConflictResponse{
			Error:     "Room is already booked",
			Conflicts: cerr.Conflicts,
		})
	case errors.Is(err, booking.ErrStorage), errors.Is(err, booking.ErrStoreUnavailable):
		slog.WarnContext(r.Context(), "storage unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrRoomNotFound),
		errors.Is(err, booking.ErrNoAttachment),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, notifications.ErrNotFound),
		errors.Is(err, calendar.ErrNotLinked):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden),
		errors.Is(err, auth.ErrForbidden),
		errors.Is(err, mail.ErrForbidden),
		errors.Is(err, calendar.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, booking.ErrRoomInactive):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrCancelled),
		errors.Is(err, booking.ErrNotPending),
		errors.Is(err, booking.ErrModified),
		errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrInvalidResetToken),
		errors.Is(err, auth.ErrSelfLockout),
		errors.Is(err, calendar.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInactiveUser),
		errors.Is(err, auth.ErrNotActivated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
