package handlers

import (
	"net/http"

	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/mail"
)

type SettingsHandler struct {
	email *mail.SettingsService
}

func NewSettingsHandler(email *mail.SettingsService) *SettingsHandler {
	return &SettingsHandler{email: email}
}

func (h *SettingsHandler) GetEmail(w http.ResponseWriter, r *http.Request) {
	settings, err := h.email.Get(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.EmailSettingsFromModel(settings))
}

// UpdateEmail keeps the stored password when the request omits it.
func (h *SettingsHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	settings, err := h.email.Update(r.Context(), middleware.GetPrincipal(r.Context()), mail.SettingsInput{
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		Password:    req.Password,
		FromAddress: req.FromAddress,
		FromName:    req.FromName,
		Enabled:     req.Enabled,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.EmailSettingsFromModel(settings))
}
