package handlers

import (
	"net/http"

	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/calendar"
)

// CalendarHandler manages the caller's own Google Calendar link. The token
// itself is never returned.
type CalendarHandler struct {
	creds *calendar.Credentials
}

func NewCalendarHandler(creds *calendar.Credentials) *CalendarHandler {
	return &CalendarHandler{creds: creds}
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred, err := h.creds.Get(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *CalendarHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req dto.CalendarCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	cred, err := h.creds.Link(r.Context(), middleware.GetPrincipal(r.Context()), calendar.LinkInput{
		CalendarID:   req.CalendarID,
		AccountEmail: req.AccountEmail,
		Token:        *req.Token,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *CalendarHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Unlink(r.Context(), middleware.GetPrincipal(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
